package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	}
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := New(testConfig())

	err := cb.Execute(func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.GetState())
	}
}

func TestExecute_OpensAfterFailureThreshold(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("expected open after %d failures, got %s", 3, cb.GetState())
	}

	// Requests are now rejected without executing fn.
	executed := false
	err := cb.Execute(func() error { executed = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if executed {
		t.Error("fn must not run while breaker is open")
	}
}

func TestExecute_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	if cb.GetState() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(25 * time.Millisecond)

	// Two successes in half-open close the circuit again.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error in half-open: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after recovery, got %s", cb.GetState())
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(25 * time.Millisecond)

	cb.Execute(func() error { return boom })
	if cb.GetState() != StateOpen {
		t.Errorf("expected open after half-open failure, got %s", cb.GetState())
	}
}

func TestReset(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errors.New("boom") })
	}
	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after reset, got %s", cb.GetState())
	}
}
