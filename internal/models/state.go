package models

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

func (s JobStatus) Finished() bool {
	return s == JobStatusCancelled || s == JobStatusCompleted || s == JobStatusFailed
}

// JobConfig is what the user picked in the upload form.
type JobConfig struct {
	Columns           []string `json:"columns"`
	CertificateHeader string   `json:"certificate_header"`
	RemarkHeader      string   `json:"remark_header"`
	Range             RowRange `json:"range"`
	MaxWorkers        int      `json:"max_workers"`
}

type Job struct {
	JobID       string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	FileName    string     `json:"file_name"`
	FilePath    string     `json:"file_path"`
	OutputPath  *string    `json:"output_path,omitempty"`
	Headers     []string   `json:"headers"`
	Config      *JobConfig `json:"config,omitempty"`
	Status      JobStatus  `json:"status"`
	TotalRows   int        `json:"total_rows"`
	Completed   int        `json:"completed"`
	Error       *string    `json:"error,omitempty"`
	Usage       TokenUsage `json:"usage"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RowRecord is the persisted outcome of one row.
type RowRecord struct {
	RowNumber       int       `json:"row_number"`
	Input           []Field   `json:"input"`
	Result          RowResult `json:"result"`
	CertificateName string    `json:"certificate_name"`
	Remark          string    `json:"remark"`
	Failed          bool      `json:"failed"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewRowRecord(outcome RowOutcome) *RowRecord {
	return &RowRecord{
		RowNumber:       outcome.RowNumber,
		Input:           outcome.Input.Fields(),
		Result:          outcome.Result,
		CertificateName: outcome.Result.CertificateName(),
		Remark:          outcome.Result.Remark(),
		Failed:          outcome.Result.IsPlaceholder(),
		UpdatedAt:       time.Now(),
	}
}

type JobProgress struct {
	JobID     string     `json:"job_id"`
	Status    JobStatus  `json:"status"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}
