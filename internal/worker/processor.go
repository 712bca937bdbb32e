package worker

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fanout/internal/models"
	"fanout/internal/repository"
	"fanout/pkg/batch"
	"fanout/pkg/request"
)

// reportTimeout bounds the wait for failure reports once the batch has returned.
const reportTimeout = 5 * time.Second

var errRequestUnreported = errors.New("request failed without a failure report")

// Processor is a handler for processing jobs.
type Processor interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
	WithLogger(logger *zap.Logger) Processor
}

// processor is a handler for processing jobs.
type processor struct {
	jobRepository repository.JobRepository
	runner        *batch.Runner
	logger        *zap.Logger
	reportTimeout time.Duration
}

// New creates a new processor.
func New(jobRepository repository.JobRepository, runner *batch.Runner, logger *zap.Logger) (Processor, error) {
	if jobRepository == nil {
		return nil, errors.New("must specify repository.JobRepository")
	}
	if runner == nil {
		return nil, errors.New("must specify *batch.Runner")
	}
	if logger == nil {
		return nil, errors.New("must specify *zap.Logger")
	}
	return processor{
		jobRepository: jobRepository,
		runner:        runner,
		logger:        logger,
		reportTimeout: reportTimeout,
	}, nil
}

// updateJob updates job.
// Safe to call after job is done.
func (p processor) updateJob(ctx context.Context, job *models.JobWithResults, input *repository.UpdateJobInput) error {
	if job.Status == models.JobStatusDone {
		return nil
	}
	input.ID = job.ID
	job.Status = *input.Status
	if input.Error != nil {
		job.Error = input.Error
	}
	return p.jobRepository.UpdateJob(ctx, input)
}

// WithLogger returns a new processor with a new logger.
func (p processor) WithLogger(logger *zap.Logger) Processor {
	return processor{
		jobRepository: p.jobRepository,
		runner:        p.runner.WithLogger(logger),
		logger:        logger,
		reportTimeout: p.reportTimeout,
	}
}

// ProcessJob sends all requests of the job and stores their results.
// Failed requests do not fail the job, they are summarized in the job error.
func (p processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	logg := p.logger.With(zap.String("job_id", jobID.String()))

	job, exists, err := p.jobRepository.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		logg.Info("job not found")
		return nil
	}

	if job.Status == models.JobStatusDone {
		logg.Info("job already done")
		return nil
	}
	defer func() {
		err := p.updateJob(ctx, job, &repository.UpdateJobInput{Status: models.JobStatusError.Pointer()})
		if err != nil {
			logg.Error("failed to update job status", zap.Error(err))
		}
	}()

	err = p.updateJob(ctx, job, &repository.UpdateJobInput{
		Status: models.JobStatusInProcess.Pointer(),
	})
	if err != nil {
		return err
	}

	results, failures, err := p.runJob(ctx, &job.Job)
	if err != nil {
		return err
	}

	if err := p.jobRepository.SaveResults(ctx, job.ID, results); err != nil {
		return err
	}

	input := &repository.UpdateJobInput{Status: models.JobStatusDone.Pointer()}
	if failures != nil {
		summary := failures.Error()
		input.Error = &summary
	}
	logg.With(
		zap.Int("requests", len(results)),
		zap.Int("failed", len(multierr.Errors(failures))),
	).Info("job done")

	return p.updateJob(ctx, job, input)
}

// runJob runs the job requests as one batch.
// The returned results are indexed like job.Requests, failures aggregates the failed requests.
func (p processor) runJob(ctx context.Context, job *models.Job) (results []models.JobResult, failures error, err error) {
	results = make([]models.JobResult, len(job.Requests))
	reqs := make([]*request.Request, 0, len(job.Requests))
	position := make(map[*request.Request]int, len(job.Requests))
	for i, jobReq := range job.Requests {
		results[i].Index = i
		req, err := jobReq.Descriptor()
		if err != nil {
			results[i].Error = pointer(err.Error())
			failures = multierr.Append(failures, errors.Wrapf(err, "request %d", i))
			continue
		}
		position[req] = i
		reqs = append(reqs, req)
	}

	failed := make(chan *batch.RequestError, len(reqs))
	opts := []batch.Option{
		batch.WithIncludeContent(job.IncludeContent),
		batch.WithTimeout(time.Duration(job.TimeoutMS) * time.Millisecond),
		batch.WithOnFailure(func(err error) {
			var reqErr *batch.RequestError
			if errors.As(err, &reqErr) {
				failed <- reqErr
			}
		}),
	}
	if job.Size > 0 {
		opts = append(opts, batch.WithSize(job.Size))
	}

	responses, err := p.runner.Run(ctx, reqs, opts...)
	if err != nil {
		return nil, nil, err
	}

	pending := make(map[int]struct{})
	for i, res := range responses {
		idx := position[reqs[i]]
		if res == nil {
			pending[idx] = struct{}{}
			continue
		}
		results[idx] = newJobResult(idx, res, job.IncludeContent)
	}

	reported, err := p.awaitFailures(ctx, results, pending, position, failed)
	if err != nil {
		return nil, nil, err
	}
	return results, multierr.Append(failures, reported), nil
}

// awaitFailures records the failure reports of the pending results.
// Reports arrive asynchronously, at most once per failed request; the ones
// still missing after reportTimeout get a generic error.
func (p processor) awaitFailures(
	ctx context.Context,
	results []models.JobResult,
	pending map[int]struct{},
	position map[*request.Request]int,
	failed <-chan *batch.RequestError,
) (failures error, err error) {
	timer := time.NewTimer(p.reportTimeout)
	defer timer.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reqErr := <-failed:
			idx := position[reqErr.Request]
			delete(pending, idx)
			results[idx].Error = pointer(reqErr.Err.Error())
			failures = multierr.Append(failures, reqErr)
		case <-timer.C:
			for idx := range pending {
				results[idx].Error = pointer(errRequestUnreported.Error())
				failures = multierr.Append(failures, errors.Wrapf(errRequestUnreported, "request %d", idx))
			}
			return failures, nil
		}
	}
	return failures, nil
}

// newJobResult converts a response to a stored result.
// Text containing NUL cannot be stored in a text column, only its length is kept.
func newJobResult(idx int, res *batch.Response, includeContent bool) models.JobResult {
	result := models.JobResult{
		Index:      idx,
		StatusCode: pointer(res.StatusCode()),
		Headers:    res.Header(),
	}
	if content := res.Content(); content != nil {
		result.ContentLength = pointer(int64(len(content)))
	}
	if text, ok := res.Text(); ok && includeContent && !strings.ContainsRune(text, 0) {
		result.Text = &text
	}
	return result
}

func pointer[T any](v T) *T {
	return &v
}
