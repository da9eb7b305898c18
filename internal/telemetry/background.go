package telemetry

import (
	"context"
	"sync"

	"telegate/internal/logging"
)

// background runs fire-and-forget calls. Results are discarded; errors are logged.
// Calls started after Close begins are dropped.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logging.Logger

	mu      sync.Mutex
	running int
	idle    chan struct{} // closed while nothing runs
	closing bool
}

func newBackground(parent context.Context, logger *logging.Logger) *background {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	idle := make(chan struct{})
	close(idle)
	return &background{ctx: ctx, cancel: cancel, logger: logger, idle: idle}
}

func (b *background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		b.logger.Debug("session closing, call dropped", "call", name)
		return
	}
	if b.running == 0 {
		b.idle = make(chan struct{})
	}
	b.running++
	b.mu.Unlock()

	go func() {
		defer b.finish()
		if err := fn(b.ctx); err != nil {
			b.logger.Warn("background call failed", "call", name, "error", err)
		}
	}()
}

func (b *background) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running--
	if b.running == 0 {
		close(b.idle)
	}
}

// Wait blocks until no call is running or ctx is done.
func (b *background) Wait(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses new calls, waits for running ones, then cancels whatever is left.
func (b *background) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	defer b.cancel()
	return b.Wait(ctx)
}

func (b *background) Stop() { b.cancel() }
