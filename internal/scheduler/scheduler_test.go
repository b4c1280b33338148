package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToBucket: true}, zerolog.Nop())

	now := time.Date(2026, 3, 15, 10, 2, 30, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2026, 3, 15, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("nextTick = %v, want %v", next, want)
	}

	// Exactly on a boundary advances to the next one.
	next = s.nextTick(want)
	if !next.Equal(want.Add(5 * time.Minute)) {
		t.Fatalf("boundary nextTick = %v", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 3, 15, 10, 2, 30, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned nextTick = %v", next)
	}
}

func TestRunInvokesTickAndStops(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 8)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, cycle time.Time) error {
			ticks <- cycle
			return nil
		})
	}()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never fired")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval must panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
