package code

import "context"

type settlement struct {
	completion Completion
	err        error
}

// settleFirst runs fn and returns its outcome, or ctx.Err() if ctx ends
// first. The losing fn keeps running in the background; its outcome is
// discarded.
func settleFirst(ctx context.Context, fn func() (Completion, error)) (Completion, error) {
	done := make(chan settlement, 1)
	go func() {
		c, err := fn()
		done <- settlement{completion: c, err: err}
	}()
	select {
	case s := <-done:
		return s.completion, s.err
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}
