package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestDoSucceedsWhileClosed(t *testing.T) {
	b := New("t", DefaultConfig())
	for i := 0; i < 10; i++ {
		if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed", b.State())
	}
}

func TestTripsOpenAfterThreshold(t *testing.T) {
	b := New("t", Config{FailureThreshold: 3, OpenDuration: time.Hour, HalfOpenSuccessThreshold: 1})

	for i := 0; i < 3; i++ {
		b.Do(context.Background(), func(context.Context) error { return errBoom })
	}
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open after %d failures", b.State(), 3)
	}

	err := b.Do(context.Background(), func(context.Context) error {
		t.Fatal("fn should not be called while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Do() err = %v, want ErrOpen", err)
	}
}

func TestHalfOpenAfterCooldownThenCloses(t *testing.T) {
	b := New("t", Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenSuccessThreshold: 1})

	b.Do(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do during half-open trial: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after successful half-open trial", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("t", Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenSuccessThreshold: 1})

	b.Do(context.Background(), func(context.Context) error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	b.Do(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != Open {
		t.Errorf("State() = %v, want Open after half-open trial fails", b.State())
	}
}

func TestResetForcesClosed(t *testing.T) {
	b := New("t", Config{FailureThreshold: 1, OpenDuration: time.Hour, HalfOpenSuccessThreshold: 1})
	b.Do(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open", b.State())
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after Reset", b.State())
	}
}
