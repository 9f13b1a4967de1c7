// Package cancel provides the cooperative cancellation signal threaded through
// every step of an analysis job.
//
// A Token is a thin handle over a context.Context. The context is what gets
// passed down the call chain; the Token is what the owner of the job (a CLI
// signal handler, an HTTP cancel endpoint) holds on to.
//
// Cancellation is a client-side decision to stop waiting. A step wrapped with
// Do settles with ErrCancelled as soon as the token fires, but work already
// handed to a remote service is not guaranteed to stop: an upload that was in
// flight may still complete server-side and a file that was being processed
// keeps being processed. Callers must not assume remote resources are released.
package cancel

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCancelled is returned by every wrapped step once the token has fired.
var ErrCancelled = errors.New("operation cancelled")

// Token is a per-job cancellation handle.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

// New creates a Token derived from parent. Cancelling parent also cancels the token.
func New(parent context.Context) *Token {
	ctx, cancelFn := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancelFn}
}

// Context returns the context to pass down the orchestration chain.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel fires the token. It reports whether this call was the one that
// cancelled it; repeated calls are no-ops and return false.
func (t *Token) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	t.cancel()
	return true
}

// Cancelled reports whether the token (or its parent) has fired.
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Release frees the context resources once the job has settled. It does not
// mark the token as user-cancelled.
func (t *Token) Release() {
	t.cancel()
}

// Check returns ErrCancelled if ctx is already done.
func Check(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// Do runs fn and returns its result, unless ctx is cancelled first.
//
// If ctx is already done, fn is never started. If ctx fires while fn is still
// running, Do returns ErrCancelled immediately and abandons fn; fn receives the
// same ctx so transports that honour it can abort early.
func Do[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := Check(ctx); err != nil {
		return zero, err
	}

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ErrCancelled
	case out := <-done:
		// fn may have failed because ctx fired underneath it.
		if out.err != nil && ctx.Err() != nil {
			return zero, ErrCancelled
		}
		return out.val, out.err
	}
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := Check(ctx); err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrCancelled
	case <-timer.C:
		return nil
	}
}
