package redis

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBreaker(max int, coolDown time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(max, coolDown)
	cb.now = clk.Now
	return cb, clk
}

var errFail = errors.New("fail")

func fail() error { return errFail }
func ok() error   { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, clk := newBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen || called {
		t.Fatalf("expected rejection without call, got err=%v called=%v", err, called)
	}

	clk.Advance(999 * time.Millisecond)
	if err := cb.Execute(ok); err != ErrCircuitOpen {
		t.Fatalf("still cooling down, got %v", err)
	}
	if s := cb.Stats(); s.Trips != 1 || s.Rejected != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestCircuitBreaker_ProbeClosesOrReopens(t *testing.T) {
	cb, clk := newBreaker(2, time.Second)
	cb.Execute(fail)
	cb.Execute(fail)

	clk.Advance(time.Second)
	if err := cb.Execute(fail); err != errFail {
		t.Fatalf("probe should run, got %v", err)
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("failed probe must reopen, got %v", cb.CurrentState())
	}
	if cb.Stats().Trips != 2 {
		t.Errorf("expected 2 trips, got %d", cb.Stats().Trips)
	}

	clk.Advance(time.Second)
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("probe should succeed, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, clk := newBreaker(1, time.Second)
	cb.Execute(fail)
	clk.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()

	<-inProbe
	if err := cb.Execute(ok); err != ErrCircuitOpen {
		t.Errorf("second call during probe must be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe returned %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newBreaker(3, time.Second)

	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(ok)
	cb.Execute(fail)
	cb.Execute(fail)

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb, clk := newBreaker(1, time.Second)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(fail)
	clk.Advance(2 * time.Second)
	cb.Execute(ok)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}
