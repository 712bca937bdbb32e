package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fanout/pkg/request"
)

type handleState string

const (
	stateIdle    handleState = "idle"
	stateRunning handleState = "running"
)

// Result of a batch run on a Handle.
type Result struct {
	Responses []*Response
	// Err is a batch setup error or a recovered panic.
	Err error
}

// Handle runs one batch at a time on its own goroutine.
// The results are consumed once by Poll.
type Handle struct {
	runner *Runner

	lock   sync.Mutex
	state  handleState
	alive  bool
	done   chan struct{}
	result Result
}

// NewHandle creates an idle handle. A nil runner means a runner without logging.
func NewHandle(r *Runner) *Handle {
	if r == nil {
		r = defaultRunner
	}
	done := make(chan struct{})
	close(done)
	return &Handle{runner: r, state: stateIdle, done: done}
}

// Start runs the batch on a new goroutine.
// It returns false, and does nothing, if a previous run is not consumed yet.
func (h *Handle) Start(ctx context.Context, reqs []*request.Request, opts ...Option) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.state == stateRunning {
		return false
	}
	h.state = stateRunning
	h.alive = true
	h.result = Result{}
	h.done = make(chan struct{})

	go h.run(ctx, h.done, reqs, opts)
	return true
}

func (h *Handle) run(ctx context.Context, done chan struct{}, reqs []*request.Request, opts []Option) {
	var result Result
	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: panicError(r)}
			h.runner.logger.Error("Batch panic", zap.Error(result.Err))
		}
		h.lock.Lock()
		h.result = result
		h.alive = false
		h.lock.Unlock()
		close(done)
	}()

	result.Responses, result.Err = h.runner.Run(ctx, reqs, opts...)
}

// Poll reports whether the run has finished, without blocking.
// A finished run is returned exactly once, then the handle is idle again.
func (h *Handle) Poll() (Result, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.state != stateRunning || h.alive {
		return Result{}, false
	}
	result := h.result
	h.result = Result{}
	h.state = stateIdle
	return result, true
}

// Done returns a channel closed when the current run's goroutine exits.
// For an idle handle the channel is already closed.
func (h *Handle) Done() <-chan struct{} {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.done
}

func (h *Handle) String() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return fmt.Sprintf("Handle [%s]", strings.ToUpper(string(h.state)))
}
