package mapper

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/blagoySimandov/certmapper/internal/blob"
	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/pipeline"
	"github.com/blagoySimandov/certmapper/internal/state"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const uploadCSV = "Product,Certificate,Mapped,Remark\nLamp,CE-1,,\nFan,CE-2,,\nHub,CE-3,,\n"

func newTestMapper(t *testing.T, runner pipeline.RowRunner) *JobMapper {
	t.Helper()
	blobs, err := blob.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return NewJobMapper(pipeline.NewDriver(runner), state.NewStateManager(state.NewMemoryStore()), blobs, 2)
}

func mappingRunner() pipeline.RowRunner {
	return pipeline.RowRunnerFunc(func(ctx context.Context, input models.RowInput) (models.RowResult, error) {
		v, _ := input.Get("Certificate")
		if v == "CE-2" {
			return nil, errors.New("agent unavailable")
		}
		return models.RowResult{models.KeyNewCertificateName: v + "/2024", models.KeyRemark: "updated"}, nil
	})
}

func TestJobMapperEndToEnd(t *testing.T) {
	ctx := context.Background()
	m := newTestMapper(t, mappingRunner())

	job, err := m.Upload(ctx, "user-1", "products.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if job.TotalRows != 3 || len(job.Headers) != 4 {
		t.Fatalf("unexpected job %+v", job)
	}

	cfg := models.JobConfig{
		Columns:           []string{"Certificate"},
		CertificateHeader: "Mapped",
		RemarkHeader:      "Remark",
		Range:             models.RowRange{Start: 2, End: 3},
	}
	if err := m.Start(ctx, job.JobID, cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	m.Wait()

	progress, err := m.Progress(ctx, job.JobID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if progress.Status != models.JobStatusCompleted || progress.Completed != 2 || progress.Total != 2 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	records, err := m.Results(ctx, job.JobID, 0, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(records) != 2 || records[0].CertificateName != "CE-1/2024" || !records[1].Failed {
		t.Fatalf("unexpected records %+v", records)
	}
	if got := records[1].Result["Certificate"]; got != "Error: agent unavailable" {
		t.Fatalf("unexpected failure placeholder %v", got)
	}

	r, name, err := m.Download(ctx, job.JobID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if name != "updated_products.csv" {
		t.Fatalf("unexpected download name %q", name)
	}
	want := "Product,Certificate,Mapped,Remark\nLamp,CE-1,CE-1/2024,updated\nFan,CE-2,,\nHub,CE-3,,\n"
	if string(data) != want {
		t.Fatalf("unexpected export:\n%s", data)
	}

	if err := m.Start(ctx, job.JobID, cfg); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got %v", err)
	}
}

func TestJobMapperRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	m := newTestMapper(t, mappingRunner())
	job, err := m.Upload(ctx, "", "products.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	tests := []models.JobConfig{
		{Columns: []string{"Nope"}, CertificateHeader: "Mapped", RemarkHeader: "Remark"},
		{Columns: []string{"Certificate"}, CertificateHeader: "Missing", RemarkHeader: "Remark"},
		{Columns: []string{"Certificate"}, CertificateHeader: "Mapped", RemarkHeader: "Remark", Range: models.RowRange{Start: 5, End: 3}},
		{Columns: []string{"Certificate"}, CertificateHeader: "Mapped", RemarkHeader: "Remark", Range: models.RowRange{Start: 1, End: 3}},
	}
	for i, cfg := range tests {
		if err := m.Start(ctx, job.JobID, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestJobMapperUploadRejectsUnknownFormat(t *testing.T) {
	m := newTestMapper(t, mappingRunner())
	if _, err := m.Upload(context.Background(), "", "notes.txt", strings.NewReader("x")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestJobMapperCancel(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 3)
	runner := pipeline.RowRunnerFunc(func(ctx context.Context, input models.RowInput) (models.RowResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := newTestMapper(t, runner)

	job, err := m.Upload(ctx, "", "products.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := m.Cancel(ctx, job.JobID); !errors.Is(err, ErrJobNotRunning) {
		t.Fatalf("expected ErrJobNotRunning, got %v", err)
	}

	cfg := models.JobConfig{Columns: []string{"Certificate"}, CertificateHeader: "Mapped", RemarkHeader: "Remark", MaxWorkers: 1}
	if err := m.Start(ctx, job.JobID, cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("row never started")
	}
	if err := m.Cancel(ctx, job.JobID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	m.Wait()

	progress, _ := m.Progress(ctx, job.JobID)
	if progress.Status != models.JobStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", progress.Status)
	}
	records, _ := m.Results(ctx, job.JobID, 0, 0)
	if len(records) != 3 {
		t.Fatalf("expected a record for every row, got %d", len(records))
	}
	for _, r := range records {
		if r.Result["Certificate"] != "Error: context canceled" {
			t.Fatalf("unexpected cancelled row %+v", r.Result)
		}
	}
	if _, _, err := m.Download(ctx, job.JobID); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}

func TestJobMapperShutdownCancelsRunningJobs(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 6)
	runner := pipeline.RowRunnerFunc(func(ctx context.Context, input models.RowInput) (models.RowResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := newTestMapper(t, runner)

	cfg := models.JobConfig{Columns: []string{"Certificate"}, CertificateHeader: "Mapped", RemarkHeader: "Remark", MaxWorkers: 1}
	var jobIDs []string
	for i := 0; i < 2; i++ {
		job, err := m.Upload(ctx, "", "products.csv", strings.NewReader(uploadCSV))
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if err := m.Start(ctx, job.JobID, cfg); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		jobIDs = append(jobIDs, job.JobID)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("rows never started")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for _, jobID := range jobIDs {
		progress, _ := m.Progress(ctx, jobID)
		if progress.Status != models.JobStatusCancelled {
			t.Fatalf("expected %s to be CANCELLED, got %s", jobID, progress.Status)
		}
		records, _ := m.Results(ctx, jobID, 0, 0)
		if len(records) != 3 {
			t.Fatalf("expected a record for every row of %s, got %d", jobID, len(records))
		}
	}
}

func TestJobMapperShutdownHonoursDeadline(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	runner := pipeline.RowRunnerFunc(func(ctx context.Context, input models.RowInput) (models.RowResult, error) {
		started <- struct{}{}
		<-release
		return nil, ctx.Err()
	})
	m := newTestMapper(t, runner)

	job, err := m.Upload(ctx, "", "products.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cfg := models.JobConfig{Columns: []string{"Certificate"}, CertificateHeader: "Mapped", RemarkHeader: "Remark", MaxWorkers: 1}
	if err := m.Start(ctx, job.JobID, cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = m.Shutdown(shutdownCtx)
	close(release)
	m.Wait()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
