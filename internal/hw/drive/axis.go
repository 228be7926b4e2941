// Package drive speaks the ASCII command set of a single motion drive over a
// shared link. Every frame sent by an Axis carries its address prefix.
package drive

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cjeanneret/LabMonkey/internal/debug"
)

var (
	// ErrNoResponse is returned by Position when the drive did not answer.
	ErrNoResponse = errors.New("no response to position query")
	// ErrBadPosition is returned by Position when the answer is not an integer.
	ErrBadPosition = errors.New("malformed position response")
)

// Sender performs one blocking request/response round-trip.
// *link.Link implements it.
type Sender interface {
	Send(frame string) (string, error)
}

// Address selects a drive on the bus. The zero value is unaddressed
// (single-device mode).
type Address struct {
	node int
	set  bool
}

// Node addresses the drive with the given node id.
func Node(id int) Address {
	return Address{node: id, set: true}
}

// Unaddressed sends bare tokens, for a single drive on the link.
var Unaddressed = Address{}

// ID returns the node id and whether the address is set.
func (a Address) ID() (int, bool) {
	return a.node, a.set
}

func (a Address) String() string {
	if !a.set {
		return "unaddressed"
	}
	return "node " + strconv.Itoa(a.node)
}

func (a Address) prefix() string {
	if !a.set {
		return ""
	}
	return strconv.Itoa(a.node)
}

// Axis is one drive reachable through a shared Sender.
// It starts ENABLED (EN is sent by NewAxis) and ends DISABLED (Close).
type Axis struct {
	link    Sender
	addr    Address
	prefix  string
	enabled bool
	closed  bool
}

// NewAxis binds an Axis to link and addr and enables the drive.
func NewAxis(link Sender, addr Address) (*Axis, error) {
	a := &Axis{
		link:   link,
		addr:   addr,
		prefix: addr.prefix(),
	}
	if _, err := a.Enable(); err != nil {
		return nil, fmt.Errorf("enable %s: %w", addr, err)
	}
	return a, nil
}

// Address returns the axis address.
func (a *Axis) Address() Address {
	return a.addr
}

// Enabled reports the last enable state commanded by this client.
// The drive itself is not queried.
func (a *Axis) Enabled() bool {
	return a.enabled
}

// Frame returns the exact bytes sent for cmd.
func (a *Axis) Frame(cmd Command) string {
	return a.prefix + cmd.Token() + "\n"
}

// Exec sends cmd and returns the raw response.
func (a *Axis) Exec(cmd Command) (string, error) {
	return a.link.Send(a.Frame(cmd))
}

// --- Enable / Disable ---

func (a *Axis) Enable() (string, error) {
	resp, err := a.Exec(Enable{})
	if err == nil {
		a.enabled = true
	}
	return resp, err
}

func (a *Axis) Disable() (string, error) {
	resp, err := a.Exec(Disable{})
	if err == nil {
		a.enabled = false
	}
	return resp, err
}

// Close disables the drive once. A failure is logged and returned but the
// axis is considered out of service either way.
func (a *Axis) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if _, err := a.Disable(); err != nil {
		err = fmt.Errorf("disable %s: %w", a.addr, err)
		debug.Error(err)
		return err
	}
	return nil
}

// --- Velocity control ---

func (a *Axis) Velocity(rpm int) (string, error) {
	return a.Exec(Velocity{RPM: rpm})
}

// Stop is Velocity(0).
func (a *Axis) Stop() (string, error) {
	return a.Velocity(0)
}

func (a *Axis) SetMaxSpeed(rpm int) (string, error) {
	return a.Exec(MaxSpeed{RPM: rpm})
}

func (a *Axis) SetMaxAcceleration(acc int) (string, error) {
	return a.Exec(MaxAcceleration{Acc: acc})
}

func (a *Axis) SetMaxDeceleration(dec int) (string, error) {
	return a.Exec(MaxDeceleration{Dec: dec})
}

// --- Position control ---

func (a *Axis) Move() (string, error) {
	return a.Exec(Move{})
}

func (a *Axis) LoadRelative(steps int) (string, error) {
	return a.Exec(LoadRelative{Steps: steps})
}

func (a *Axis) LoadAbsolute(pos int) (string, error) {
	return a.Exec(LoadAbsolute{Pos: pos})
}

// MoveSteps loads a relative target then moves. Two round-trips.
func (a *Axis) MoveSteps(steps int) (string, error) {
	if _, err := a.LoadRelative(steps); err != nil {
		return "", err
	}
	return a.Move()
}

// MoveToLocation loads an absolute target then moves. Two round-trips.
func (a *Axis) MoveToLocation(pos int) (string, error) {
	if _, err := a.LoadAbsolute(pos); err != nil {
		return "", err
	}
	return a.Move()
}

// Home sets the current position as 0.
func (a *Axis) Home() (string, error) {
	return a.Exec(Home{})
}

// HomeAt sets the current position as pos.
func (a *Axis) HomeAt(pos int) (string, error) {
	return a.Exec(HomeAt{Pos: pos})
}

// Position queries the actual position. An empty or non-integer answer is an error.
func (a *Axis) Position() (int, error) {
	resp, err := a.Exec(GetPosition{})
	if err != nil {
		return 0, err
	}
	if resp == "" {
		return 0, fmt.Errorf("%s: %w", a.addr, ErrNoResponse)
	}
	pos, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", a.addr, ErrBadPosition, resp)
	}
	return pos, nil
}

// --- Sequence programs ---

func (a *Axis) StartProgram() (string, error) {
	return a.Exec(StartProgram{})
}

func (a *Axis) EndProgram() (string, error) {
	return a.Exec(EndProgram{})
}

// Delay inserts a pause into the program being recorded.
func (a *Axis) Delay(seconds float64) (string, error) {
	return a.Exec(DelaySeconds(seconds))
}

func (a *Axis) RunProgram() (string, error) {
	return a.Exec(RunProgram{})
}

// WriteProgram wraps body between PROGSEQ and END. END is sent even if body
// fails so the drive leaves program mode.
func (a *Axis) WriteProgram(body func(a *Axis) error) (err error) {
	if _, err := a.StartProgram(); err != nil {
		return err
	}
	defer func() {
		if _, endErr := a.EndProgram(); endErr != nil && err == nil {
			err = endErr
		}
	}()
	return body(a)
}
