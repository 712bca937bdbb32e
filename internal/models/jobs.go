package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"fanout/pkg/request"
)

type JobStatus string

const (
	JobStatusNew       JobStatus = "new"
	JobStatusDone      JobStatus = "done"
	JobStatusError     JobStatus = "error"
	JobStatusInProcess JobStatus = "in_process"
)

// Pointer returns *JobStatus.
func (js JobStatus) Pointer() *JobStatus {
	return &js
}

// Job is a batch of requests sent together.
type Job struct {
	// ID
	ID uuid.UUID `json:"id"`
	// Processing status
	Status JobStatus `json:"status"`
	// Max concurrent requests, 0 means default
	Size int `json:"size"`
	// Per-request timeout in milliseconds, 0 means none
	TimeoutMS int64 `json:"timeout_ms"`
	// Store response bodies
	IncludeContent bool `json:"include_content"`
	// Requests in submission order
	Requests []JobRequest `json:"requests"`
	// Summary of failed requests
	Error *string `json:"error,omitempty"`
}

// JobRequest is one stored request of a job.
type JobRequest struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Params      map[string]string `json:"params,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	SkipHeaders []string          `json:"skip_headers,omitempty"`
	// Data is a text body (JSON string) or a form (JSON object).
	Data  json.RawMessage `json:"data,omitempty"`
	JSON  json.RawMessage `json:"json,omitempty"`
	Proxy string          `json:"proxy,omitempty"`
}

// Descriptor converts the stored request to a request descriptor.
func (r JobRequest) Descriptor() (*request.Request, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, errors.New("url is empty")
	}
	if !isNull(r.Data) && !isNull(r.JSON) {
		return nil, errors.New("data and json are mutually exclusive")
	}

	opts := []request.Option{
		request.WithParams(r.Params),
		request.WithHeaders(r.Headers),
		request.WithSkipHeaders(r.SkipHeaders...),
	}
	if r.Proxy != "" {
		opts = append(opts, request.WithProxy(r.Proxy))
	}
	if !isNull(r.Data) {
		var data any
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, errors.Wrap(err, "invalid data")
		}
		switch v := data.(type) {
		case string:
			opts = append(opts, request.WithText(v))
		case map[string]any:
			opts = append(opts, request.WithForm(v))
		default:
			return nil, errors.Errorf("data must be a string or an object, got %T", data)
		}
	}
	if !isNull(r.JSON) {
		opts = append(opts, request.WithJSON(r.JSON))
	}

	req := request.New(r.Method, r.URL, opts...)
	if req == nil {
		return nil, errors.Errorf("unsupported method %q", r.Method)
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// JobResult is the outcome of one request of a job.
type JobResult struct {
	// Index of the request in the job
	Index int `json:"index"`
	// Response status code
	StatusCode *int `json:"status_code"`
	// Response headers
	Headers map[string]string `json:"headers"`
	// Response content length
	ContentLength *int64 `json:"length"`
	// Response text, when content is stored
	Text *string `json:"text"`
	// Request error
	Error *string `json:"error"`
}

// JobWithResults is a job with the results of its requests.
type JobWithResults struct {
	Job
	Results []JobResult
}
