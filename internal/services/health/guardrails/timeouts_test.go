package guardrails

import (
	"context"
	"testing"
	"time"
)

func TestWithHourZeroInheritsParent(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	ctx, cancel2 := WithHour(parent, Timeouts{})
	defer cancel2()

	pd, _ := parent.Deadline()
	cd, ok := ctx.Deadline()
	if !ok || !cd.Equal(pd) {
		t.Fatalf("zero budget must inherit the parent deadline")
	}
}

func TestChildNeverExtendsParent(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ctx, cancel2 := ForFetch(parent, Timeouts{Fetch: time.Hour})
	defer cancel2()

	cd, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if time.Until(cd) > time.Second {
		t.Fatalf("child deadline extends past the parent: %v", time.Until(cd))
	}
}

func TestTighterChildBudgetWins(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	ctx, cancel2 := ForRead(parent, Timeouts{Read: 10 * time.Millisecond})
	defer cancel2()

	cd, _ := ctx.Deadline()
	if time.Until(cd) > time.Second {
		t.Fatalf("read budget should bound the child: %v", time.Until(cd))
	}
}

func TestRemaining(t *testing.T) {
	if Remaining(context.Background()) != 0 {
		t.Fatalf("no deadline should report zero")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if Remaining(ctx) <= 0 {
		t.Fatalf("expected positive remainder")
	}
}
