package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"go.uber.org/multierr"

	"fanout/internal/models"
)

// JobRepository is a repository manager for jobs.
type JobRepository interface {
	// CreateJob creates a new job.
	CreateJob(ctx context.Context, input *CreateJobInput) (*models.Job, error)
	// GetJob gets job by id, with results of its requests.
	GetJob(ctx context.Context, id uuid.UUID) (_ *models.JobWithResults, exists bool, _ error)
	// UpdateJob updates job.
	UpdateJob(ctx context.Context, input *UpdateJobInput) error
	// SaveResults stores request results of a job, existing results are replaced.
	SaveResults(ctx context.Context, jobID uuid.UUID, results []models.JobResult) error
}

// jobDB is a repository manager for jobs.
type jobDB struct {
	db DBTX
}

// NewJobDB inits new instance of jobDB.
func NewJobDB(db DBTX) JobRepository {
	return jobDB{
		db: db,
	}
}

// CreateJobInput is input for CreateJob.
type CreateJobInput struct {
	Size           int
	TimeoutMS      int64
	IncludeContent bool
	Requests       []models.JobRequest
}

// CreateJob creates a new job.
func (q jobDB) CreateJob(ctx context.Context, input *CreateJobInput) (*models.Job, error) {
	if input == nil {
		return nil, errors.New("input is nil")
	}
	requests := input.Requests
	if requests == nil {
		requests = []models.JobRequest{}
	}

	query := sq.Insert("jobs").
		Columns("status", "size", "timeout_ms", "include_content", "requests").
		Values(models.JobStatusNew, input.Size, input.TimeoutMS, input.IncludeContent, requests).
		Suffix("RETURNING id")

	sqlQuery, args, err := query.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		Status:         models.JobStatusNew,
		Size:           input.Size,
		TimeoutMS:      input.TimeoutMS,
		IncludeContent: input.IncludeContent,
		Requests:       requests,
	}
	return job, q.db.QueryRow(ctx, sqlQuery, args...).Scan(&job.ID)
}

// GetJob gets job by id.
func (q jobDB) GetJob(ctx context.Context, id uuid.UUID) (_ *models.JobWithResults, exists bool, _ error) {
	query := sq.Select(
		"id",
		"status",
		"size",
		"timeout_ms",
		"include_content",
		"requests",
		"error",
	).
		From("jobs").
		Where(sq.Eq{"id": id})

	sqlQuery, args, err := query.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, false, err
	}

	job := &models.JobWithResults{}
	err = q.db.QueryRow(ctx, sqlQuery, args...).Scan(
		&job.ID,
		&job.Status,
		&job.Size,
		&job.TimeoutMS,
		&job.IncludeContent,
		&job.Requests,
		&job.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if job.Results, err = q.getResults(ctx, id); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (q jobDB) getResults(ctx context.Context, jobID uuid.UUID) ([]models.JobResult, error) {
	query := sq.Select("idx", "status_code", "headers", "content_length", "text", "error").
		From("job_results").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("idx")

	sqlQuery, args, err := query.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.JobResult
	for rows.Next() {
		var r models.JobResult
		if err := rows.Scan(&r.Index, &r.StatusCode, &r.Headers, &r.ContentLength, &r.Text, &r.Error); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateJobInput is input for UpdateJob.
type UpdateJobInput struct {
	ID     uuid.UUID
	Status *models.JobStatus
	Error  *string
}

// setUpdateFields sets fields for update query.
func (i *UpdateJobInput) setUpdateFields(query sq.UpdateBuilder) sq.UpdateBuilder {
	query = query.Set("updated_at", sq.Expr("now()"))
	if i.Status != nil {
		query = query.Set("status", *i.Status)
	}
	if i.Error != nil {
		query = query.Set("error", *i.Error)
	}
	return query
}

// UpdateJob updates job.
func (q jobDB) UpdateJob(ctx context.Context, input *UpdateJobInput) error {
	if input == nil || input.ID == uuid.Nil {
		return errors.New("input is nil or id is empty")
	}

	query := sq.Update("jobs").Where(sq.Eq{"id": input.ID})
	query = input.setUpdateFields(query)

	sqlQuery, args, err := query.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx, sqlQuery, args...)
	return err
}

// SaveResults sends all inserts in one batch.
func (q jobDB) SaveResults(ctx context.Context, jobID uuid.UUID, results []models.JobResult) (err error) {
	if jobID == uuid.Nil {
		return errors.New("job id is empty")
	}
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		headers := r.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		sqlQuery, args, err := sq.Insert("job_results").
			Columns("job_id", "idx", "status_code", "headers", "content_length", "text", "error").
			Values(jobID, r.Index, r.StatusCode, headers, r.ContentLength, r.Text, r.Error).
			Suffix(
				"ON CONFLICT (job_id, idx) DO UPDATE SET " +
					"status_code = EXCLUDED.status_code, headers = EXCLUDED.headers, " +
					"content_length = EXCLUDED.content_length, text = EXCLUDED.text, error = EXCLUDED.error",
			).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		batch.Queue(sqlQuery, args...)
	}

	br := q.db.SendBatch(ctx, batch)
	defer func() {
		err = multierr.Append(err, br.Close())
	}()
	for i := range results {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "cannot save result %d", results[i].Index)
		}
	}
	return nil
}
