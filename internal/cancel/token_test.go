package cancel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_AlreadyCancelledNeverStarts(t *testing.T) {
	tok := New(context.Background())
	tok.Cancel()

	var started atomic.Bool
	_, err := Do(tok.Context(), func(ctx context.Context) (int, error) {
		started.Store(true)
		return 1, nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Do() error = %v, want ErrCancelled", err)
	}
	if started.Load() {
		t.Error("fn was started after the token had already fired")
	}
}

func TestDo_CancelWhilePendingSettlesEarly(t *testing.T) {
	tok := New(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()

	start := time.Now()
	_, err := Do(tok.Context(), func(ctx context.Context) (string, error) {
		// Ignores ctx on purpose: models a remote call that cannot be aborted.
		<-release
		return "late", nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Do() error = %v, want ErrCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %v to observe cancellation", elapsed)
	}
}

func TestDo_ReturnsResult(t *testing.T) {
	v, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Errorf("Do() = (%d, %v), want (42, nil)", v, err)
	}

	wantErr := errors.New("boom")
	_, err = Do(context.Background(), func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestToken_RepeatedCancelIsNoop(t *testing.T) {
	tok := New(context.Background())
	if !tok.Cancel() {
		t.Error("first Cancel() = false, want true")
	}
	if tok.Cancel() {
		t.Error("second Cancel() = true, want false")
	}
	if !tok.Cancelled() {
		t.Error("Cancelled() = false after Cancel()")
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v, want nil", err)
	}

	tok := New(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		tok.Cancel()
	}()
	start := time.Now()
	err := Sleep(tok.Context(), time.Minute)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Sleep() error = %v, want ErrCancelled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly after cancel")
	}
}
