package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// HeadersCmd returns the headers command
func HeadersCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "headers",
		Short: "Print the header row of a workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := loadWorkbook(cmd.Context(), file)
			if err != nil {
				return err
			}
			defer wb.Close()

			out := cmd.OutOrStdout()
			for i, h := range wb.Headers() {
				fmt.Fprintf(out, "%3d  %s\n", i+1, h)
			}
			fmt.Fprintf(out, "%d data rows (sheet rows 2-%d)\n", wb.RowCount(), wb.RowCount()+1)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workbook path or gs://bucket/object")
	cmd.MarkFlagRequired("file")
	return cmd
}
