package middleware

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	var order []string

	mk := func(name string) Middleware {
		return func(ctx context.Context, op *OpInfo, next Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := Chain(mk("a"), mk("b"), mk("c"))
	err := chain(context.Background(), &OpInfo{Op: "test"}, func(ctx context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain returned error: %v", err)
	}

	want := []string{"a:before", "b:before", "c:before", "handler", "c:after", "b:after", "a:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainEmpty(t *testing.T) {
	called := false
	chain := Chain()
	err := chain(context.Background(), &OpInfo{}, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("empty chain returned error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
}

func TestChainShortCircuit(t *testing.T) {
	sentinel := errors.New("blocked")
	blocker := func(ctx context.Context, op *OpInfo, next Handler) error {
		return sentinel
	}

	called := false
	chain := Chain(blocker)
	err := chain(context.Background(), &OpInfo{}, func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
	if called {
		t.Fatal("handler should not run after short-circuit")
	}
}

func TestRecover(t *testing.T) {
	mw := Recover(slog.New(slog.DiscardHandler))
	err := mw(context.Background(), &OpInfo{Op: "boom"}, func(ctx context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestRecoverPassThrough(t *testing.T) {
	mw := Recover(slog.New(slog.DiscardHandler))
	err := mw(context.Background(), &OpInfo{Op: "ok"}, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	mw := Timeout(slog.New(slog.DiscardHandler))
	op := &OpInfo{Op: "slow", Timeout: 10 * time.Millisecond}

	err := mw(context.Background(), op, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeoutZeroIsUnbounded(t *testing.T) {
	mw := Timeout(slog.New(slog.DiscardHandler))
	op := &OpInfo{Op: "fast"}

	err := mw(context.Background(), op, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("context should not have a deadline when Timeout is zero")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging(t *testing.T) {
	mw := Logging(slog.New(slog.DiscardHandler))
	op := &OpInfo{Session: "key-1", Op: "credit", Step: 3}

	wantErr := errors.New("rejected")
	err := mw(context.Background(), op, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
