package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/multierr"

	"fanout/internal/models"
	"fanout/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// maxBodyBytes limits the size of a create job request.
const maxBodyBytes = 10 << 20

// createJobInput is the body of POST /jobs.
type createJobInput struct {
	Size           int                 `json:"size"`
	TimeoutMS      int64               `json:"timeout_ms"`
	IncludeContent *bool               `json:"include_content"`
	Requests       []models.JobRequest `json:"requests"`
}

// validate checks the job settings and every request of the job.
func (in *createJobInput) validate(maxRequests int) error {
	if len(in.Requests) == 0 {
		return errors.New("requests must not be empty")
	}
	if maxRequests > 0 && len(in.Requests) > maxRequests {
		return errors.Errorf("too many requests: %d > %d", len(in.Requests), maxRequests)
	}
	if in.Size < 0 {
		return errors.New("size must not be negative")
	}
	if in.TimeoutMS < 0 {
		return errors.New("timeout_ms must not be negative")
	}
	var errs error
	for i, req := range in.Requests {
		if _, err := req.Descriptor(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "requests[%d]", i))
		}
	}
	return errs
}

// CreateJob creates new job and enqueues it.
func (h *handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	input := &createJobInput{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(input); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid body"))
		return
	}
	if err := input.validate(h.cfg.MaxRequests); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	includeContent := true
	if input.IncludeContent != nil {
		includeContent = *input.IncludeContent
	}

	job, err := h.jobRepository.CreateJob(ctx, &repository.CreateJobInput{
		Size:           input.Size,
		TimeoutMS:      input.TimeoutMS,
		IncludeContent: includeContent,
		Requests:       input.Requests,
	})
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if err = h.jobSender.SendJob(ctx, h.jobQueueURL, job.ID); err != nil {
		updErr := h.jobRepository.UpdateJob(
			ctx,
			&repository.UpdateJobInput{ID: job.ID, Status: models.JobStatusError.Pointer()},
		)
		if updErr != nil {
			err = errors.Wrapf(err, "failed to update job status while processing sendJob err: %s", updErr)
		}
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("id")
	e.Str(job.ID.String())
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// GetJob returns job status and results.
func (h *handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid job id"))
		return
	}

	job, exists, err := h.jobRepository.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !exists {
		h.writeError(w, r, http.StatusNotFound, errors.Errorf("job %s not found", jobID))
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeJob(e, job)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func encodeJob(e *jx.Encoder, job *models.JobWithResults) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(job.ID.String())
	e.FieldStart("status")
	e.Str(string(job.Status))
	e.FieldStart("requests")
	e.Int(len(job.Requests))
	if job.Error != nil {
		e.FieldStart("error")
		e.Str(*job.Error)
	}
	e.FieldStart("results")
	e.ArrStart()
	for _, result := range job.Results {
		encodeResult(e, result)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, result models.JobResult) {
	e.ObjStart()
	e.FieldStart("index")
	e.Int(result.Index)
	if result.StatusCode != nil {
		e.FieldStart("http_status_code")
		e.Int(*result.StatusCode)
	}
	if result.Headers != nil {
		e.FieldStart("headers")
		e.ObjStart()
		for k, v := range result.Headers {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	if result.ContentLength != nil {
		e.FieldStart("length")
		e.Int64(*result.ContentLength)
	}
	if result.Text != nil {
		e.FieldStart("text")
		e.Str(*result.Text)
	}
	if result.Error != nil {
		e.FieldStart("error")
		e.Str(*result.Error)
	}
	e.ObjEnd()
}
