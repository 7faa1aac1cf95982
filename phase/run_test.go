package phase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/phase"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

func TestRun_AllStepsSucceed(t *testing.T) {
	var order []string
	steps := []phase.Step[int]{
		{Name: "one", Run: func(_ context.Context, s int) (int, error) {
			order = append(order, "one")
			return s + 1, nil
		}},
		{Name: "two", Run: func(_ context.Context, s int) (int, error) {
			order = append(order, "two")
			return s + 1, nil
		}},
	}

	got, err := phase.Run(context.Background(), nil, nil, "test", steps, 0)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if got != 2 {
		t.Errorf("Run() final state = %d, want 2", got)
	}
	if len(order) != 2 || order[0] != "one" || order[1] != "two" {
		t.Errorf("steps ran out of order: %v", order)
	}
}

func TestRun_StepErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	ran := 0
	steps := []phase.Step[int]{
		{Name: "one", Run: func(_ context.Context, s int) (int, error) {
			ran++
			return s, boom
		}},
		{Name: "two", Run: func(_ context.Context, s int) (int, error) {
			ran++
			return s, nil
		}},
	}

	_, err := phase.Run(context.Background(), nil, nil, "test", steps, 0)
	if ran != 1 {
		t.Fatalf("ran %d steps, want 1 (stop after first failure)", ran)
	}

	var stepErr *phase.Error[int]
	if !errors.As(err, &stepErr) {
		t.Fatalf("Run() error = %v, want *phase.Error[int]", err)
	}
	if stepErr.Step != "one" {
		t.Errorf("failing step = %q, want %q", stepErr.Step, "one")
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(err, boom) = false, want true")
	}
}

func TestRun_CancelledTokenSkipsRemainingSteps(t *testing.T) {
	token := cancel.New()
	token.Trigger()

	ran := 0
	steps := []phase.Step[int]{
		{Name: "one", Run: func(_ context.Context, s int) (int, error) {
			ran++
			return s, nil
		}},
	}

	_, err := phase.Run(context.Background(), token, nil, "test", steps, 0)
	if ran != 0 {
		t.Fatalf("ran %d steps, want 0 (token already triggered)", ran)
	}
	if !errors.Is(err, upgradeerrors.ErrCancelled) {
		t.Errorf("Run() error = %v, want wrapping upgradeerrors.ErrCancelled", err)
	}
}

func TestRun_ContextCancelledStopsRun(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	ran := 0
	steps := []phase.Step[int]{
		{Name: "one", Run: func(_ context.Context, s int) (int, error) {
			ran++
			return s, nil
		}},
	}

	_, err := phase.Run(ctx, nil, nil, "test", steps, 0)
	if ran != 0 {
		t.Fatalf("ran %d steps, want 0 (context already cancelled)", ran)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want wrapping context.Canceled", err)
	}
}
