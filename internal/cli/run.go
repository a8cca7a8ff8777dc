package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blagoySimandov/certmapper/internal/config"
	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/pipeline"
	"github.com/blagoySimandov/certmapper/internal/services"
	"github.com/blagoySimandov/certmapper/internal/spreadsheet"
)

type runOptions struct {
	file         string
	columns      []string
	certHeader   string
	remarkHeader string
	start        int
	end          int
	workers      int
	out          string
}

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Map the certificates of a workbook through the agent",
		Long: `Send every selected row of the workbook to the agent, one conversation per row,
and write the mapped certificate name and remark into the chosen columns.

The updated workbook is saved as updated_<name> next to the input unless --out is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg := config.Load()
			if cfg.Debug {
				logger.SetLevel("debug")
			}
			if opts.workers <= 0 {
				opts.workers = cfg.MaxWorkers
			}

			backend, definition, err := services.NewBackendFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			tracker, err := services.NewUsageTracker()
			if err != nil {
				return err
			}
			client, err := services.NewAgentClient(backend, services.NewAgentHandleProvider(backend, definition), services.WithUsageTracker(tracker))
			if err != nil {
				return err
			}

			driver := pipeline.NewDriver(client, pipeline.WithRowTimeout(cfg.RowTimeout))
			if err := runMapping(ctx, cmd.OutOrStdout(), driver, opts); err != nil {
				return err
			}

			usage := tracker.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Usage: %d conversations, %d failed runs, %d prompt / %d completion tokens\n",
				usage.Conversations, usage.FailedRuns, usage.PromptTokens, usage.CompletionTokens)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Workbook path or gs://bucket/object (.xlsx or .csv)")
	cmd.Flags().StringSliceVarP(&opts.columns, "columns", "c", nil, "Columns to send to the agent")
	cmd.Flags().StringVar(&opts.certHeader, "cert-header", "", "Column that receives the new certificate name")
	cmd.Flags().StringVar(&opts.remarkHeader, "remark-header", "", "Column that receives the remark")
	cmd.Flags().IntVar(&opts.start, "start", 2, "First sheet row to process (inclusive)")
	cmd.Flags().IntVar(&opts.end, "end", 0, "Last sheet row to process (inclusive, 0 for the last row)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Concurrent conversations (defaults to MAX_WORKERS)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Where to write the updated workbook")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("cert-header")
	cmd.MarkFlagRequired("remark-header")

	return cmd
}

func runMapping(ctx context.Context, out io.Writer, driver *pipeline.Driver, opts runOptions) error {
	src, err := openSource(ctx, opts.file)
	if err != nil {
		return err
	}
	defer src.store.Close()

	wb, err := src.load(ctx)
	if err != nil {
		return err
	}
	defer wb.Close()

	for _, h := range append([]string{opts.certHeader, opts.remarkHeader}, opts.columns...) {
		if !wb.HasHeader(h) {
			return fmt.Errorf("%w: %q (columns: %v)", spreadsheet.ErrUnknownHeader, h, wb.Headers())
		}
	}
	if opts.start < 2 {
		return fmt.Errorf("start row must be at least 2, got %d", opts.start)
	}
	if opts.end != 0 && opts.end < opts.start {
		return fmt.Errorf("end row %d is before start row %d", opts.end, opts.start)
	}

	rng := models.RowRange{Start: opts.start, End: opts.end}
	fmt.Fprintf(out, "Sending columns %v of %s to the agent\n", opts.columns, src.name)

	progress := color.New(color.FgCyan)
	outcomes := driver.ProcessRange(ctx, wb.Rows(), opts.columns, rng, opts.workers, func(completed, total int) {
		fmt.Fprintf(out, "%s %d/%d\n", progress.Sprint("progress"), completed, total)
	})

	failed := 0
	for _, o := range outcomes {
		if o.Result.IsPlaceholder() {
			failed++
			fmt.Fprintf(out, "  row %d: %s %v\n", o.RowNumber, color.New(color.FgRed).Sprint("FAILED"), map[string]interface{}(o.Result))
			continue
		}
		fmt.Fprintf(out, "  row %d: %s %s (%s)\n", o.RowNumber, color.New(color.FgGreen).Sprint("OK"), o.Result.CertificateName(), o.Result.Remark())
	}

	if err := wb.WriteOutcomes(outcomes, opts.certHeader, opts.remarkHeader); err != nil {
		return err
	}

	target := src.outputName()
	if err := saveWorkbook(ctx, wb, src, opts.out); err != nil {
		return err
	}
	if opts.out != "" {
		target = opts.out
	}

	summary := color.New(color.FgGreen)
	if failed > 0 {
		summary = color.New(color.FgYellow)
	}
	fmt.Fprintf(out, "%s %d rows processed, %d failed. Updated file saved as %s\n",
		summary.Sprint("Done."), len(outcomes), failed, target)
	return nil
}

func saveWorkbook(ctx context.Context, wb *spreadsheet.Workbook, src *source, out string) error {
	var (
		w   io.WriteCloser
		err error
	)
	if out != "" {
		w, err = os.Create(out)
	} else {
		w, err = src.store.Create(ctx, src.outputName())
	}
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := wb.Save(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
