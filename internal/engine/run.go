package engine

import (
	"context"
)

// Run drains the dispatch queue until the context is canceled. All state
// access happens on this goroutine; callers reach the engine only through
// Dispatch.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Int64("sequence", e.sequence).Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return ctx.Err()
		case fn := <-e.cmdChan:
			fn(ctx)
		}
	}
}

// Dispatch runs fn on the engine goroutine and waits for it to finish. The
// closure captures its own results; Dispatch only reports queueing or
// cancellation failures.
func (e *Engine) Dispatch(ctx context.Context, fn func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	wrapped := func(c context.Context) {
		defer close(done)
		fn(c)
	}
	select {
	case e.cmdChan <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
