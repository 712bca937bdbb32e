package batch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"fanout/pkg/request"
)

// defaultHeaders are generated for every request unless the request
// suppresses them or sets its own value.
var defaultHeaders = []string{"User-Agent", "Accept", "Accept-Encoding"} //nolint:gochecknoglobals

// executor runs the requests of one batch.
type executor struct {
	cfg       *config
	gate      *Gate
	session   *session
	telemetry *telemetry
	logger    *zap.Logger
}

// execute sends one request and returns its Response, or nil on failure.
// Exactly one of the notification targets is dispatched, if registered.
func (e *executor) execute(ctx context.Context, req *request.Request) *Response {
	logg := e.logger.With(zap.String("method", req.Method().String()), zap.String("url", req.URL()))

	res, err := e.send(ctx, req)
	if err != nil {
		reqErr := &RequestError{Request: req, Err: err}
		logg.Debug("Request failed", zap.Error(err))
		if fn := e.cfg.onFailure; fn != nil {
			e.notify(func() { fn(reqErr) })
		}
		return nil
	}

	logg.Debug("Request done", zap.Int("status_code", res.StatusCode()))
	if fn := e.cfg.onSuccess; fn != nil {
		e.notify(func() { fn(res) })
	}
	return res
}

// send holds a gate slot for the network phase only.
// A panic while sending fails the request like any other error.
func (e *executor) send(ctx context.Context, req *request.Request) (res *Response, err error) {
	ctx, done := e.telemetry.startRequest(ctx, req)
	defer func() {
		var statusCode int
		if res != nil {
			statusCode = res.StatusCode()
		}
		done(statusCode, err)
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"Panic",
				zap.Error(panicError(r)),
				zap.ByteString("stacktrace", debug.Stack()),
			)
			res, err = nil, panicError(r)
		}
	}()

	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()

	if e.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.timeout)
		defer cancel()
	}

	httpReq, err := e.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	client, err := e.session.client(req.Proxy())
	if err != nil {
		return nil, err
	}

	httpRes, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpRes.Body.Close()

	var content []byte
	if e.cfg.includeContent {
		if content, err = readBody(httpRes); err != nil {
			return nil, err
		}
	}

	return newResponse(req.URL(), httpRes.StatusCode, httpRes.Header, content), nil
}

// newHTTPRequest maps the descriptor to a *http.Request.
func (e *executor) newHTTPRequest(ctx context.Context, req *request.Request) (*http.Request, error) {
	target, err := req.TargetURL()
	if err != nil {
		return nil, errors.Wrap(err, "invalid url")
	}

	body, contentType, err := requestBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method().String(), target.String(), body)
	if err != nil {
		return nil, err
	}

	defaults := map[string]string{
		"User-Agent":      e.cfg.userAgent,
		"Accept":          "*/*",
		"Accept-Encoding": "gzip, br",
	}
	for _, name := range defaultHeaders {
		if !req.Skips(name) {
			httpReq.Header.Set(name, defaults[name])
		}
	}
	if contentType != "" && !req.Skips(request.HeaderContentType) {
		httpReq.Header.Set(request.HeaderContentType, contentType)
	}

	for k, v := range req.Header() {
		httpReq.Header.Set(k, v)
	}

	// net/http sends its own User-Agent when the header is missing, an empty value omits it
	if req.Skips("User-Agent") && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", "")
	}

	return httpReq, nil
}

// requestBody returns the encoded body and its content type.
func requestBody(req *request.Request) (io.Reader, string, error) {
	raw, value := req.Body(), req.JSON()
	switch {
	case raw != nil && value != nil:
		return nil, "", ErrBodyConflict
	case value != nil:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, "", errors.Wrap(err, "cannot encode JSON body")
		}
		return bytes.NewReader(data), request.ContentTypeJSON, nil
	case raw != nil:
		return bytes.NewReader(raw), req.ContentType(), nil
	default:
		return nil, "", nil
	}
}

// notify runs fn on its own goroutine, the batch never waits for it.
func (e *executor) notify(fn func()) {
	go func() {
		defer e.handlePanic()
		fn()
	}()
}

// handlePanic catches panic and logs the error.
func (e *executor) handlePanic() {
	if r := recover(); r != nil {
		e.logger.Error(
			"Panic",
			zap.Error(panicError(r)),
			zap.ByteString("stacktrace", debug.Stack()),
		)
	}
}
