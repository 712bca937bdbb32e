// Package batch sends batches of HTTP requests concurrently.
//
// A batch is a slice of request descriptors (see package request).
// Run sends them through a Gate limiting the number of concurrent requests
// and returns one Response per valid descriptor, in submission order.
// A failed request resolves to a nil entry and, optionally, an OnFailure
// notification; it never fails the batch.
//
// Start runs a batch on its own goroutine and returns a Handle
// which can be polled for the results.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"fanout/pkg/request"
)

var defaultRunner = &Runner{logger: zap.NewNop()} //nolint:gochecknoglobals

// Runner sends batches. It holds no per-batch state and may be used concurrently.
type Runner struct {
	logger   *zap.Logger
	defaults []Option
}

// NewRunner creates a new runner, opts are applied to every batch before the per-call options.
func NewRunner(logger *zap.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("must specify *zap.Logger")
	}
	if _, err := newConfig(opts); err != nil {
		return nil, err
	}
	return &Runner{logger: logger, defaults: opts}, nil
}

// Run sends the batch using a runner without logging.
func Run(ctx context.Context, reqs []*request.Request, opts ...Option) ([]*Response, error) {
	return defaultRunner.Run(ctx, reqs, opts...)
}

// Start starts the batch on a new Handle using a runner without logging.
func Start(ctx context.Context, reqs []*request.Request, opts ...Option) *Handle {
	return defaultRunner.Start(ctx, reqs, opts...)
}

// WithLogger returns a new runner with a new logger.
func (r *Runner) WithLogger(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, defaults: r.defaults}
}

// Run sends all valid requests and waits until every one of them is done.
//
// Nil descriptors and descriptors with an empty URL are dropped. The i-th
// returned entry belongs to the i-th remaining descriptor, nil if it failed.
// Only a setup failure of the batch itself is returned as an error.
func (r *Runner) Run(ctx context.Context, reqs []*request.Request, opts ...Option) ([]*Response, error) {
	cfg, err := newConfig(append(append([]Option{}, r.defaults...), opts...))
	if err != nil {
		return nil, err
	}

	valid := filter(reqs)

	sess, err := newSession(cfg.transportFactory, cfg.tlsConfig)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	tel := newTelemetry(cfg.tracerProvider, cfg.meterProvider)
	ctx, span := tel.startBatch(ctx, cfg.size, len(valid))
	defer span.End()

	exec := &executor{
		cfg:       &cfg,
		gate:      NewGate(cfg.size),
		session:   sess,
		telemetry: tel,
		logger:    r.logger,
	}

	start := time.Now()
	results := make([]*Response, len(valid))
	var wg sync.WaitGroup
	for i, req := range valid {
		wg.Add(1)
		go func(i int, req *request.Request) {
			defer wg.Done()
			defer exec.handlePanic()
			results[i] = exec.execute(ctx, req)
		}(i, req)
	}
	wg.Wait()

	var failed int
	for _, res := range results {
		if res == nil {
			failed++
		}
	}
	r.logger.With(
		zap.Int("requests", len(valid)),
		zap.Int("skipped", len(reqs)-len(valid)),
		zap.Int("failed", failed),
		zap.Int("size", cfg.size),
		zap.Duration("duration", time.Since(start)),
	).Info("Batch done")

	return results, nil
}

// Start starts the batch on a new Handle.
func (r *Runner) Start(ctx context.Context, reqs []*request.Request, opts ...Option) *Handle {
	h := NewHandle(r)
	h.Start(ctx, reqs, opts...)
	return h
}

// filter drops nil descriptors and descriptors without URL, order is kept.
func filter(reqs []*request.Request) []*request.Request {
	out := make([]*request.Request, 0, len(reqs))
	for _, req := range reqs {
		if req == nil || req.URL() == "" {
			continue
		}
		out = append(out, req)
	}
	return out
}
