package waypoint

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/LabMonkey/internal/debug"
	"github.com/cjeanneret/LabMonkey/internal/logic/rig"
	"github.com/cjeanneret/LabMonkey/internal/timeutil"
)

// Rig is what the sequencer drives. *rig.Rig implements it.
type Rig interface {
	EnableAll() error
	DisableAll() error
	MoveToPose(p rig.Pose) error
	CurrentPose() (rig.Pose, error)
}

// Sequencer records poses into an ordered waypoint list and replays it.
// Moves are fire-and-dwell: nothing waits for the motion to finish beyond
// the dwell, so the dwell must be long enough for the slowest move.
type Sequencer struct {
	rig       Rig
	clock     timeutil.Clock
	waypoints []rig.Pose
}

func NewSequencer(r Rig, clock timeutil.Clock) *Sequencer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sequencer{
		rig:   r,
		clock: clock,
	}
}

// Record appends the rig's current pose to the waypoint list.
func (s *Sequencer) Record() (rig.Pose, error) {
	p, err := s.rig.CurrentPose()
	if err != nil {
		return nil, fmt.Errorf("record waypoint: %w", err)
	}
	s.waypoints = append(s.waypoints, p)
	debug.Pose("Recorded", len(s.waypoints)-1, p)
	return p, nil
}

// Waypoints returns a copy of the current list.
func (s *Sequencer) Waypoints() []rig.Pose {
	out := make([]rig.Pose, len(s.waypoints))
	for i, p := range s.waypoints {
		out[i] = append(rig.Pose(nil), p...)
	}
	return out
}

// SetWaypoints replaces the list wholesale. Pose widths are not checked here;
// a mismatch surfaces when the pose is played.
func (s *Sequencer) SetWaypoints(list []rig.Pose) {
	s.waypoints = make([]rig.Pose, len(list))
	for i, p := range list {
		s.waypoints[i] = append(rig.Pose(nil), p...)
	}
}

// Reset clears the waypoint list.
func (s *Sequencer) Reset() {
	s.waypoints = nil
}

// PlayList moves through list in order, pausing dwell after every pose.
// It does not touch the enable state. Cancelling ctx stops it before the
// next move or during a dwell.
func (s *Sequencer) PlayList(ctx context.Context, list []rig.Pose, dwell time.Duration) error {
	for i, p := range list {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		debug.Pose("Moving to", i, p)
		if err := s.rig.MoveToPose(p); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
		if err := s.clock.SleepContext(ctx, dwell); err != nil {
			return err
		}
	}
	return nil
}

// Play replays the waypoint list iterations times.
// The rig is enabled before the first iteration and disabled afterwards,
// whatever happens in between, cancellation included.
func (s *Sequencer) Play(ctx context.Context, iterations int, dwell time.Duration) error {
	list := s.Waypoints()
	return s.bracket(func() error {
		for i := 0; i < iterations; i++ {
			debug.Iteration(i+1, iterations, "forward")
			if err := s.PlayList(ctx, list, dwell); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cycle replays the list forward then in reverse, iterations times, inside
// the same enable/disable bracket as Play.
func (s *Sequencer) Cycle(ctx context.Context, iterations int, dwell time.Duration) error {
	forward := s.Waypoints()
	reverse := make([]rig.Pose, len(forward))
	for i, p := range forward {
		reverse[len(forward)-1-i] = p
	}

	return s.bracket(func() error {
		for i := 0; i < iterations; i++ {
			debug.Iteration(i+1, iterations, "forward")
			if err := s.PlayList(ctx, forward, dwell); err != nil {
				return err
			}
			debug.Iteration(i+1, iterations, "reverse")
			if err := s.PlayList(ctx, reverse, dwell); err != nil {
				return err
			}
		}
		return nil
	})
}

// bracket enables the rig, runs body and always disables the rig.
// Disable failures are logged, never returned.
func (s *Sequencer) bracket(body func() error) error {
	defer func() {
		if err := s.rig.DisableAll(); err != nil {
			debug.Error(fmt.Errorf("disable after run: %w", err))
		}
	}()

	if err := s.rig.EnableAll(); err != nil {
		return err
	}
	return body()
}
