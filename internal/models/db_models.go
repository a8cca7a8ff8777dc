package models

import (
	"time"

	"github.com/uptrace/bun"
)

type JobDB struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	JobID            string     `bun:"job_id,pk" json:"job_id"`
	UserID           string     `bun:"user_id,notnull,default:''" json:"user_id"`
	FileName         string     `bun:"file_name,notnull" json:"file_name"`
	FilePath         string     `bun:"file_path,notnull" json:"file_path"`
	OutputPath       *string    `bun:"output_path" json:"output_path"`
	Headers          []string   `bun:"headers,type:jsonb" json:"headers"`
	Config           *JobConfig `bun:"config,type:jsonb" json:"config"`
	Status           JobStatus  `bun:"status,notnull,default:'PENDING'" json:"status"`
	TotalRows        int        `bun:"total_rows,notnull,default:0" json:"total_rows"`
	Completed        int        `bun:"completed,notnull,default:0" json:"completed"`
	Error            *string    `bun:"error" json:"error"`
	PromptTokens     int        `bun:"prompt_tokens,notnull,default:0" json:"prompt_tokens"`
	CompletionTokens int        `bun:"completion_tokens,notnull,default:0" json:"completion_tokens"`
	StartedAt        *time.Time `bun:"started_at" json:"started_at"`
	CompletedAt      *time.Time `bun:"completed_at" json:"completed_at"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

type RowResultDB struct {
	bun.BaseModel `bun:"table:row_results,alias:rr"`

	JobID           string                 `bun:"job_id,pk" json:"job_id"`
	RowNumber       int                    `bun:"row_number,pk" json:"row_number"`
	Input           []Field                `bun:"input,type:jsonb" json:"input"`
	Result          map[string]interface{} `bun:"result,type:jsonb" json:"result"`
	CertificateName string                 `bun:"certificate_name" json:"certificate_name"`
	Remark          string                 `bun:"remark" json:"remark"`
	Failed          bool                   `bun:"failed,notnull,default:false" json:"failed"`
	UpdatedAt       time.Time              `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (j *JobDB) ToJob() *Job {
	return &Job{
		JobID:      j.JobID,
		UserID:     j.UserID,
		FileName:   j.FileName,
		FilePath:   j.FilePath,
		OutputPath: j.OutputPath,
		Headers:    j.Headers,
		Config:     j.Config,
		Status:     j.Status,
		TotalRows:  j.TotalRows,
		Completed:  j.Completed,
		Error:      j.Error,
		Usage: TokenUsage{
			PromptTokens:     j.PromptTokens,
			CompletionTokens: j.CompletionTokens,
			TotalTokens:      j.PromptTokens + j.CompletionTokens,
		},
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func (r *RowResultDB) ToRowRecord() *RowRecord {
	return &RowRecord{
		RowNumber:       r.RowNumber,
		Input:           r.Input,
		Result:          RowResult(r.Result),
		CertificateName: r.CertificateName,
		Remark:          r.Remark,
		Failed:          r.Failed,
		UpdatedAt:       r.UpdatedAt,
	}
}

func RowResultFromApp(jobID string, record *RowRecord) *RowResultDB {
	return &RowResultDB{
		JobID:           jobID,
		RowNumber:       record.RowNumber,
		Input:           record.Input,
		Result:          record.Result,
		CertificateName: record.CertificateName,
		Remark:          record.Remark,
		Failed:          record.Failed,
		UpdatedAt:       record.UpdatedAt,
	}
}
