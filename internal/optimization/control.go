package optimization

import (
	"context"
	"sync"
	"sync/atomic"
)

// IntermediateResultFunc receives a partial or final order together with its
// weight. The order is a copy owned by the callee.
type IntermediateResultFunc func(order []int, weight float64)

// ProgressFunc receives a human readable progress message and counters.
type ProgressFunc func(message string, current, total int)

// Control carries the cooperative stop flag and the reporting callbacks of a
// solver. The zero value is ready to use. Solvers embed it.
type Control struct {
	stopped atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	onResult   IntermediateResultFunc
	onProgress ProgressFunc
}

// Stop requests cooperative cancellation. The running solve returns the best
// complete route it holds the next time it checks the flag.
func (c *Control) Stop() {
	c.stopped.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Begin derives the context a solve runs under. Cancelling it, or calling
// Stop, is observed by Stopped. The returned func must be called when the
// solve ends; it clears the stop request so the next solve runs normally.
func (c *Control) Begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	if c.stopped.Load() {
		cancel()
	}
	return ctx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.stopped.Store(false)
		c.mu.Unlock()
		cancel()
	}
}

// Stopped reports whether Stop was called or ctx is done.
func (c *Control) Stopped(ctx context.Context) bool {
	if c.stopped.Load() {
		return true
	}
	return ctx != nil && ctx.Err() != nil
}

// OnIntermediateResult registers fn for intermediate results. A nil fn
// deregisters the current callback.
func (c *Control) OnIntermediateResult(fn IntermediateResultFunc) {
	c.mu.Lock()
	c.onResult = fn
	c.mu.Unlock()
}

// OnProgress registers fn for progress reports. A nil fn deregisters it.
func (c *Control) OnProgress(fn ProgressFunc) {
	c.mu.Lock()
	c.onProgress = fn
	c.mu.Unlock()
}

// ReportIntermediate hands order, mapped back through p.Restore, to the
// registered callback. It is a no-op without one.
func (c *Control) ReportIntermediate(p *Problem, order []int, weight float64) {
	c.mu.Lock()
	fn := c.onResult
	c.mu.Unlock()
	if fn == nil {
		return
	}
	fn(p.Restore(order), weight)
}

// ReportProgress hands a progress message to the registered callback.
func (c *Control) ReportProgress(message string, current, total int) {
	c.mu.Lock()
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		fn(message, current, total)
	}
}

// Forward makes c relay its reports to parent. Composite solvers use it so
// that the callbacks registered on them also see the results of the solvers
// they drive.
func (c *Control) Forward(parent *Control) {
	c.OnIntermediateResult(func(order []int, weight float64) {
		parent.mu.Lock()
		fn := parent.onResult
		parent.mu.Unlock()
		if fn != nil {
			fn(order, weight)
		}
	})
	c.OnProgress(parent.ReportProgress)
}
