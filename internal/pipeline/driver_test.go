package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/blagoySimandov/certmapper/internal/models"
)

type recordingRunner struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingRunner) Run(ctx context.Context, input models.RowInput) (models.RowResult, error) {
	r.mu.Lock()
	r.messages = append(r.messages, input.Message())
	r.mu.Unlock()
	v, _ := input.Get("Certificate")
	return models.RowResult{models.KeyNewCertificateName: "new " + v, models.KeyRemark: "checked"}, nil
}

func sheetRows() []models.Row {
	return []models.Row{
		{Number: 2, Fields: []models.Field{{Name: "Product", Value: "Lamp"}, {Name: "Certificate", Value: "CE-1"}, {Name: "Notes", Value: "x"}}},
		{Number: 3, Fields: []models.Field{{Name: "Product", Value: "Fan"}, {Name: "Certificate", Value: "CE-2"}, {Name: "Notes", Value: "y"}}},
		{Number: 4, Fields: []models.Field{{Name: "Product", Value: "Hub"}, {Name: "Certificate", Value: "CE-3"}, {Name: "Notes", Value: "z"}}},
	}
}

func TestProcessBatchProjectsColumns(t *testing.T) {
	runner := &recordingRunner{}
	results := NewDriver(runner).ProcessBatch(context.Background(), sheetRows()[:1], []string{"Certificate", "Product", "Missing"}, 4, nil)

	if len(results) != 1 || results[0].CertificateName() != "new CE-1" {
		t.Fatalf("unexpected results %v", results)
	}
	if len(runner.messages) != 1 || runner.messages[0] != "Product: Lamp, Certificate: CE-1" {
		t.Fatalf("unexpected message %v", runner.messages)
	}
}

func TestProcessBatchNoColumnsSendsEmptyMessage(t *testing.T) {
	runner := &recordingRunner{}
	NewDriver(runner).ProcessBatch(context.Background(), sheetRows()[:1], nil, 1, nil)
	if len(runner.messages) != 1 || runner.messages[0] != "" {
		t.Fatalf("expected one empty message, got %q", runner.messages)
	}
}

func TestProcessRange(t *testing.T) {
	tests := []struct {
		name string
		rng  models.RowRange
		want []int
	}{
		{name: "all rows", rng: models.RowRange{}, want: []int{2, 3, 4}},
		{name: "inner range", rng: models.RowRange{Start: 3, End: 3}, want: []int{3}},
		{name: "open end", rng: models.RowRange{Start: 3}, want: []int{3, 4}},
		{name: "past the sheet", rng: models.RowRange{Start: 4, End: 20}, want: []int{4}},
		{name: "entirely outside", rng: models.RowRange{Start: 30, End: 40}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var final models.Progress
			outcomes := NewDriver(&recordingRunner{}).ProcessRange(context.Background(), sheetRows(), []string{"Certificate"}, tt.rng, 2,
				func(completed, total int) { final = models.Progress{Completed: completed, Total: total} })

			if len(outcomes) != len(tt.want) {
				t.Fatalf("expected %d outcomes, got %d", len(tt.want), len(outcomes))
			}
			for i, o := range outcomes {
				if o.RowNumber != tt.want[i] {
					t.Fatalf("outcome %d: row %d, want %d", i, o.RowNumber, tt.want[i])
				}
				cert, _ := o.Input.Get("Certificate")
				if o.Result.CertificateName() != "new "+cert {
					t.Fatalf("outcome %d paired with the wrong result: %v", i, o.Result)
				}
			}
			if len(tt.want) > 0 && final.Completed != len(tt.want) {
				t.Fatalf("unexpected final progress %+v", final)
			}
		})
	}
}
