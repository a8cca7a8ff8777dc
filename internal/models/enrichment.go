package models

import "time"

type UploadResponse struct {
	JobID    string   `json:"job_id"`
	Headers  []string `json:"headers"`
	RowCount int      `json:"row_count"`
}

type StartJobRequest struct {
	Columns           []string `json:"columns"`
	CertificateHeader string   `json:"certificate_header"`
	RemarkHeader      string   `json:"remark_header"`
	StartRow          int      `json:"start_row"`
	EndRow            int      `json:"end_row"`
	MaxWorkers        int      `json:"max_workers,omitempty"`
}

func (r StartJobRequest) ToJobConfig() JobConfig {
	return JobConfig{
		Columns:           r.Columns,
		CertificateHeader: r.CertificateHeader,
		RemarkHeader:      r.RemarkHeader,
		Range:             RowRange{Start: r.StartRow, End: r.EndRow},
		MaxWorkers:        r.MaxWorkers,
	}
}

type StartJobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type JobSummary struct {
	JobID     string     `json:"job_id"`
	FileName  string     `json:"file_name"`
	Status    JobStatus  `json:"status"`
	TotalRows int        `json:"total_rows"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type JobListResponse struct {
	Jobs       []*JobSummary `json:"jobs"`
	TotalCount int           `json:"total_count"`
}

func ToJobSummary(job *Job) *JobSummary {
	return &JobSummary{
		JobID:     job.JobID,
		FileName:  job.FileName,
		Status:    job.Status,
		TotalRows: job.TotalRows,
		CreatedAt: job.CreatedAt,
		StartedAt: job.StartedAt,
	}
}
