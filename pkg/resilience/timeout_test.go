package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
)

func TestWithTimeoutDisabled(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, "noop", func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout should not set a deadline")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestWithTimeoutPassesError(t *testing.T) {
	want := errors.New("feed down")
	err := WithTimeout(context.Background(), time.Second, "load", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	err := WithTimeout(context.Background(), 10*time.Millisecond, "load", func(ctx context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("expected ErrTimeout in chain, got %v", err)
	}
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "load", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
