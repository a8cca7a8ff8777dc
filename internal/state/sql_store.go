package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/blagoySimandov/certmapper/internal/models"
)

// SQLStore persists jobs and row results with bun. Postgres DSNs use pgdriver; anything else is
// handed to SQLite.
type SQLStore struct {
	db *bun.DB
}

// OpenDB opens the database named by dsn without touching the schema.
func OpenDB(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		return db, nil
	}

	sqldb, err := sql.Open("sqlite3", strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func NewSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}

	store := &SQLStore{db: db}
	if err := store.InitializeDatabase(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *SQLStore) InitializeDatabase(ctx context.Context) error {
	return CreateSchema(ctx, s.db)
}

// CreateSchema creates the tables and indexes if they are missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*models.JobDB)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*models.RowResultDB)(nil)).
		IfNotExists().
		ForeignKey(`("job_id") REFERENCES "jobs" ("job_id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create row_results table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.JobDB)(nil)).
		Index("idx_jobs_user_id").
		Column("user_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_id index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.JobDB)(nil)).
		Index("idx_jobs_status").
		Column("status").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create status index: %w", err)
	}

	return nil
}

// DropSchema removes everything CreateSchema created.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{(*models.RowResultDB)(nil), (*models.JobDB)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	row := &models.JobDB{
		JobID:     job.JobID,
		UserID:    job.UserID,
		FileName:  job.FileName,
		FilePath:  job.FilePath,
		Headers:   job.Headers,
		Status:    job.Status,
		TotalRows: job.TotalRows,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if row.Status == "" {
		row.Status = models.JobStatusPending
	}

	_, err := s.db.NewInsert().
		Model(row).
		ExcludeColumn("config", "output_path", "error", "started_at", "completed_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *SQLStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.JobDB
	err := s.db.NewSelect().
		Model(&job).
		Where("job_id = ?", jobID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job.ToJob(), nil
}

func (s *SQLStore) ListJobs(ctx context.Context, userID string, offset, limit int) ([]*models.Job, error) {
	var jobs []*models.JobDB
	query := s.db.NewSelect().
		Model(&jobs).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	query = paginate(query, offset, limit)

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	out := make([]*models.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.ToJob()
	}
	return out, nil
}

func (s *SQLStore) StartJob(ctx context.Context, jobID string, cfg *models.JobConfig, totalRows int) error {
	now := time.Now()
	res, err := s.db.NewUpdate().
		Model((*models.JobDB)(nil)).
		Set("status = ?", models.JobStatusRunning).
		Set("config = ?", cfg).
		Set("total_rows = ?", totalRows).
		Set("completed = 0").
		Set("started_at = ?", now).
		Set("updated_at = ?", now).
		Where("job_id = ?", jobID).
		Where("status = ?", models.JobStatusPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotPending, jobID)
	}
	return nil
}

func (s *SQLStore) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg *string) error {
	return s.updateJob(ctx, jobID, "set job status", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.Set("status = ?", status)
		if errMsg != nil {
			q = q.Set("error = ?", *errMsg)
		}
		if status.Finished() {
			q = q.Set("completed_at = ?", time.Now())
		}
		return q
	})
}

// SetJobProgress never lowers the stored count.
func (s *SQLStore) SetJobProgress(ctx context.Context, jobID string, completed int) error {
	return s.updateJob(ctx, jobID, "set job progress", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("completed = ?", completed).Where("completed < ?", completed)
	})
}

func (s *SQLStore) SetJobOutput(ctx context.Context, jobID, outputPath string) error {
	return s.updateJob(ctx, jobID, "set job output", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("output_path = ?", outputPath)
	})
}

func (s *SQLStore) IncrementJobUsage(ctx context.Context, jobID string, promptTokens, completionTokens int) error {
	return s.updateJob(ctx, jobID, "increment job usage", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("prompt_tokens = prompt_tokens + ?", promptTokens).
			Set("completion_tokens = completion_tokens + ?", completionTokens)
	})
}

func (s *SQLStore) updateJob(ctx context.Context, jobID, action string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	query := s.db.NewUpdate().
		Model((*models.JobDB)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("job_id = ?", jobID)

	if _, err := apply(query).Exec(ctx); err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}

func (s *SQLStore) SaveRowResults(ctx context.Context, jobID string, records []*models.RowRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rows := make([]*models.RowResultDB, len(records))
		for i, r := range records {
			rows[i] = models.RowResultFromApp(jobID, r)
		}

		query := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (job_id, row_number) DO UPDATE")
		for _, col := range []string{"input", "result", "certificate_name", "remark", "failed", "updated_at"} {
			query = query.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to save row results: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetRowResults(ctx context.Context, jobID string, offset, limit int) ([]*models.RowRecord, error) {
	var rows []models.RowResultDB
	query := s.db.NewSelect().
		Model(&rows).
		Where("job_id = ?", jobID).
		Order("row_number ASC")

	query = paginate(query, offset, limit)

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to get row results: %w", err)
	}

	records := make([]*models.RowRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToRowRecord()
	}
	return records, nil
}

// paginate applies offset and limit. SQLite rejects OFFSET without LIMIT, so an offset alone
// gets an unbounded limit.
func paginate(query *bun.SelectQuery, offset, limit int) *bun.SelectQuery {
	if offset > 0 {
		query = query.Offset(offset)
		if limit <= 0 {
			limit = math.MaxInt32
		}
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}

func (s *SQLStore) DB() *bun.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
