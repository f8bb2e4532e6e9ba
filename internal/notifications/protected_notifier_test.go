package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedNotifier struct {
	err   error
	calls int
}

func (s *scriptedNotifier) SendWelcomeEmail(ctx context.Context, in WelcomeEmailInput) error {
	s.calls++
	return s.err
}

func (s *scriptedNotifier) StartEmailSequence(ctx context.Context, in EmailSequenceInput) error {
	s.calls++
	return s.err
}

func TestProtectedNotifier_OpensAfterThreshold(t *testing.T) {
	inner := &scriptedNotifier{err: errors.New("provider down")}

	p := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		Timeout:          time.Second,
		FailureThreshold: 2,
		Cooldown:         time.Hour,
	})

	ctx := context.Background()
	in := WelcomeEmailInput{Email: "a@x.com", Name: "A"}

	for i := 0; i < 2; i++ {
		if err := p.SendWelcomeEmail(ctx, in); err == nil {
			t.Fatalf("expected provider error on call %d", i)
		}
	}

	// circuit now open: inner must not be reached
	before := inner.calls

	if err := p.SendWelcomeEmail(ctx, in); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	if inner.calls != before {
		t.Fatalf("inner notifier called while circuit open")
	}
}

func TestProtectedNotifier_HalfOpenRecovers(t *testing.T) {
	inner := &scriptedNotifier{err: errors.New("provider down")}

	p := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		Timeout:          time.Second,
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
	})

	ctx := context.Background()
	in := WelcomeEmailInput{Email: "a@x.com", Name: "A"}

	if err := p.SendWelcomeEmail(ctx, in); err == nil {
		t.Fatalf("expected failure to open circuit")
	}

	time.Sleep(20 * time.Millisecond)

	// provider healed; half-open trial should close the circuit
	inner.err = nil

	if err := p.SendWelcomeEmail(ctx, in); err != nil {
		t.Fatalf("expected half-open trial to succeed: %v", err)
	}

	if err := p.SendWelcomeEmail(ctx, in); err != nil {
		t.Fatalf("expected closed circuit after recovery: %v", err)
	}
}
