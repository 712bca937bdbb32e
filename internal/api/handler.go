package api

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanout/internal/repository"
)

// jobSender is an interface for sending job ids to the job queue.
type jobSender interface {
	SendJob(ctx context.Context, queueURL *string, jobID uuid.UUID) error
}

// handler serves the jobs API.
type handler struct {
	jobSender     jobSender
	jobQueueURL   *string
	cfg           *Config
	jobRepository repository.JobRepository
	logger        *zap.Logger
}

// newServer creates the API routes and their handler, paths are relative to the mount prefix.
func newServer(
	cfg *Config,
	jobSender jobSender,
	jobQueueURL *string,
	jobRepository repository.JobRepository,
	logger *zap.Logger,
) (*http.ServeMux, *handler, error) {
	if cfg == nil {
		return nil, nil, errors.New("must specify *Config")
	}
	if jobSender == nil {
		return nil, nil, errors.New("must specify jobSender")
	}
	if jobQueueURL == nil {
		return nil, nil, errors.New("must specify jobQueueURL")
	}
	if jobRepository == nil {
		return nil, nil, errors.New("must specify repository.JobRepository")
	}
	h := &handler{
		cfg:           cfg,
		jobSender:     jobSender,
		jobQueueURL:   jobQueueURL,
		jobRepository: jobRepository,
		logger:        logger,
	}

	srv := http.NewServeMux()
	srv.HandleFunc("GET /health", h.GetHealthStatus)
	srv.HandleFunc("POST /jobs", h.CreateJob)
	srv.HandleFunc("GET /jobs/{id}", h.GetJob)
	return srv, h, nil
}

// NewHandler creates a new http.Handler.
func NewHandler(
	cfg *Config,
	jobSender jobSender,
	jobQueueURL *string,
	jobRepository repository.JobRepository,
	logger *zap.Logger,
) (http.Handler, error) {
	if logger == nil {
		return nil, errors.New("must specify *zap.Logger")
	}

	srv, _, err := newServer(cfg, jobSender, jobQueueURL, jobRepository, logger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MountPrefix+"/", http.StripPrefix(cfg.MountPrefix, srv))

	return loggingMiddleware{panicMiddleware{mux, logger}, logger}, nil
}

// errorMessage of internal errors, details are only logged.
const errorMessage = "An unexpected error occurred while processing the request. " +
	"Please try again later or contact support."

// writeError writes a JSON error body, errors with code >= 500 are logged.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	message := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		).Error("Internal server error", zap.Error(err))
		message = errorMessage
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("error_message")
	e.Str(message)
	e.ObjEnd()

	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
