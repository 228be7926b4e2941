// Package trajectory captures the free motion of one axis as timed samples
// and plays it back with wall-clock pacing.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/LabMonkey/internal/debug"
	"github.com/cjeanneret/LabMonkey/internal/timeutil"
)

// ErrInvalidDuration is returned by Record for a non-positive duration.
var ErrInvalidDuration = errors.New("recording duration must be positive")

// Sample is one observation: position at Elapsed since capture start.
type Sample struct {
	Elapsed  time.Duration
	Position int
}

// Source is an axis that can be released and read. *drive.Axis implements it.
type Source interface {
	Enable() (string, error)
	Disable() (string, error)
	Position() (int, error)
}

// Target is an axis that can be sent to a position. *drive.Axis implements it.
type Target interface {
	MoveToLocation(pos int) (string, error)
}

// Engine records and plays trajectories against a clock.
type Engine struct {
	clock timeutil.Clock
}

func NewEngine(clock timeutil.Clock) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{clock: clock}
}

// Record disables src so it can be moved by hand, then samples its position
// until duration has elapsed. Samples are at most one per minInterval; a slow
// read is not caught up. src is re-enabled on every exit path. On a read
// error or cancellation the samples taken so far are returned with the error.
func (e *Engine) Record(ctx context.Context, src Source, duration, minInterval time.Duration) (samples []Sample, err error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	defer func() {
		if _, enErr := src.Enable(); enErr != nil {
			enErr = fmt.Errorf("re-enable after recording: %w", enErr)
			if err == nil {
				err = enErr
			} else {
				debug.Error(enErr)
			}
		}
	}()

	if _, err := src.Disable(); err != nil {
		return nil, fmt.Errorf("disable before recording: %w", err)
	}

	debug.Live("Recording for %v (min interval %v)", duration, minInterval)
	start := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		default:
		}

		t0 := e.clock.Now()
		elapsed := t0.Sub(start)
		if elapsed >= duration {
			break
		}

		pos, err := src.Position()
		if err != nil {
			return samples, fmt.Errorf("sample at %v: %w", elapsed, err)
		}
		samples = append(samples, Sample{Elapsed: elapsed, Position: pos})
		debug.Sample(elapsed, pos)

		if spent := e.clock.Since(t0); spent < minInterval {
			if err := e.clock.SleepContext(ctx, minInterval-spent); err != nil {
				return samples, err
			}
		}
	}
	debug.Live("Recorded %d samples", len(samples))
	return samples, nil
}

// Play replays samples on dst. A move is issued only when the position
// differs from the last commanded one by more than minDisplacement (the first
// sample always moves). After each sample it sleeps until start+Elapsed; when
// already late it does not sleep, and lost time is never recovered.
// Cancelling ctx stops playback between samples or during a wait.
func (e *Engine) Play(ctx context.Context, dst Target, samples []Sample, minDisplacement int) error {
	start := e.clock.Now()
	last, moved := 0, false

	for i, s := range samples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !moved || abs(s.Position-last) > minDisplacement {
			if _, err := dst.MoveToLocation(s.Position); err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			last, moved = s.Position, true
		}

		if wait := s.Elapsed - e.clock.Since(start); wait > 0 {
			if err := e.clock.SleepContext(ctx, wait); err != nil {
				return err
			}
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
