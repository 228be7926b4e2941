package rig

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/LabMonkey/internal/debug"
)

// ErrPoseWidth is returned when a pose does not have one coordinate per axis.
var ErrPoseWidth = errors.New("pose width does not match axis count")

// Axis is the part of a drive the rig needs. *drive.Axis implements it.
type Axis interface {
	Enable() (string, error)
	Disable() (string, error)
	MoveToLocation(pos int) (string, error)
	Position() (int, error)
	Home() (string, error)
	SetMaxSpeed(rpm int) (string, error)
	SetMaxAcceleration(acc int) (string, error)
	SetMaxDeceleration(dec int) (string, error)
	Close() error
}

// Pose holds one position per axis, in rig order.
type Pose []int

// Limits are the motion limits applied to one axis by Configure.
type Limits struct {
	MaxSpeed int
	Accel    int
	Decel    int
}

// Rig orchestrates a fixed, ordered group of axes commanded together.
// It's an intermediate layer between the waypoint sequencer and the drives.
// Nothing here is atomic: a failure on axis k leaves axes 0..k-1 commanded.
type Rig struct {
	axes []Axis
}

func New(axes ...Axis) *Rig {
	return &Rig{axes: append([]Axis(nil), axes...)}
}

// Len returns the number of axes.
func (r *Rig) Len() int {
	return len(r.axes)
}

// Axis returns the i-th axis.
func (r *Rig) Axis(i int) Axis {
	return r.axes[i]
}

// Configure applies limits to each axis in order, then disables it.
// Drives stay released until a run enables them.
func (r *Rig) Configure(limits []Limits) error {
	if len(limits) != len(r.axes) {
		return fmt.Errorf("configure %d axes with %d limits: %w", len(r.axes), len(limits), ErrPoseWidth)
	}
	for i, a := range r.axes {
		l := limits[i]
		debug.Verbose("Axis %d: speed=%d acc=%d dec=%d", i, l.MaxSpeed, l.Accel, l.Decel)
		if _, err := a.SetMaxSpeed(l.MaxSpeed); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
		if _, err := a.SetMaxAcceleration(l.Accel); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
		if _, err := a.SetMaxDeceleration(l.Decel); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
		if _, err := a.Disable(); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
	}
	return nil
}

// EnableAll enables every axis in order and stops at the first failure.
func (r *Rig) EnableAll() error {
	for i, a := range r.axes {
		if _, err := a.Enable(); err != nil {
			return fmt.Errorf("enable axis %d: %w", i, err)
		}
	}
	return nil
}

// DisableAll disables every axis in order. Every axis is attempted; the
// failures are joined.
func (r *Rig) DisableAll() error {
	var errs []error
	for i, a := range r.axes {
		if _, err := a.Disable(); err != nil {
			errs = append(errs, fmt.Errorf("disable axis %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// MoveToPose commands each axis to its coordinate, in axis order, and stops
// at the first failing axis.
func (r *Rig) MoveToPose(p Pose) error {
	if len(p) != len(r.axes) {
		return fmt.Errorf("pose %v for %d axes: %w", []int(p), len(r.axes), ErrPoseWidth)
	}
	for i, a := range r.axes {
		if _, err := a.MoveToLocation(p[i]); err != nil {
			return fmt.Errorf("move axis %d to %d: %w", i, p[i], err)
		}
	}
	return nil
}

// CurrentPose queries every axis in order. Axes are read one after the
// other, so the pose is not a single-instant snapshot while moving.
func (r *Rig) CurrentPose() (Pose, error) {
	p := make(Pose, len(r.axes))
	for i, a := range r.axes {
		pos, err := a.Position()
		if err != nil {
			return nil, fmt.Errorf("read axis %d: %w", i, err)
		}
		p[i] = pos
	}
	return p, nil
}

// Home zeroes every axis at its current position.
func (r *Rig) Home() error {
	for i, a := range r.axes {
		if _, err := a.Home(); err != nil {
			return fmt.Errorf("home axis %d: %w", i, err)
		}
	}
	return nil
}

// Close takes every axis out of service. Failures are logged and joined.
func (r *Rig) Close() error {
	var errs []error
	for _, a := range r.axes {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		debug.Error(fmt.Errorf("rig teardown: %w", err))
		return err
	}
	return nil
}
