package delivery

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute("op", func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %d", cb.State())
	}

	err := cb.Execute("op", func() error {
		t.Fatal("function should not run while circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	if err := cb.Execute("op", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = cb.Execute("op", func() error { return boom })

	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed circuit after reset, got %d", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %d", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute("op", func() error { return nil }); err != nil {
		t.Fatalf("probe should succeed, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed circuit after probe, got %d", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_ = cb.Execute("op", func() error { return boom })
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute("op", func() error { return boom })

	if cb.State() != CircuitOpen {
		t.Fatalf("expected reopened circuit, got %d", cb.State())
	}
}
