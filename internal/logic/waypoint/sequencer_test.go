package waypoint

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cjeanneret/LabMonkey/internal/hw/drive"
	"github.com/cjeanneret/LabMonkey/internal/hw/link"
	"github.com/cjeanneret/LabMonkey/internal/logic/rig"
	"github.com/cjeanneret/LabMonkey/internal/timeutil"
)

var errFail = errors.New("axis failure")

// mockRig records calls in order.
type mockRig struct {
	calls      []string
	pose       rig.Pose
	failMoveAt int // 1-based MoveToPose call that fails; 0 = never
	failEnable bool
	moves      int
}

func (m *mockRig) EnableAll() error {
	m.calls = append(m.calls, "enable")
	if m.failEnable {
		return errFail
	}
	return nil
}

func (m *mockRig) DisableAll() error {
	m.calls = append(m.calls, "disable")
	return nil
}

func (m *mockRig) MoveToPose(p rig.Pose) error {
	m.moves++
	m.calls = append(m.calls, fmt.Sprintf("move%v", []int(p)))
	if m.failMoveAt == m.moves {
		return errFail
	}
	return nil
}

func (m *mockRig) CurrentPose() (rig.Pose, error) {
	return append(rig.Pose(nil), m.pose...), nil
}

func newTestSequencer() (*Sequencer, *mockRig, *timeutil.MockClock) {
	r := &mockRig{}
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewSequencer(r, clock), r, clock
}

func TestRecord_AppendsCurrentPose(t *testing.T) {
	seq, r, _ := newTestSequencer()

	r.pose = rig.Pose{1, 2}
	seq.Record()
	r.pose = rig.Pose{3, 4}
	seq.Record()
	seq.Record() // duplicates are allowed

	want := []rig.Pose{{1, 2}, {3, 4}, {3, 4}}
	if diff := cmp.Diff(want, seq.Waypoints()); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_Error(t *testing.T) {
	seq := NewSequencer(&failingPoseRig{}, nil)
	if _, err := seq.Record(); !errors.Is(err, errFail) {
		t.Errorf("err = %v, want %v", err, errFail)
	}
	if len(seq.Waypoints()) != 0 {
		t.Error("failed record must not append")
	}
}

type failingPoseRig struct{ mockRig }

func (f *failingPoseRig) CurrentPose() (rig.Pose, error) { return nil, errFail }

func TestSetWaypointsAndReset(t *testing.T) {
	seq, _, _ := newTestSequencer()
	src := []rig.Pose{{1}, {2, 3}}

	seq.SetWaypoints(src)
	src[0][0] = 99 // caller's slice must not alias the list

	if diff := cmp.Diff([]rig.Pose{{1}, {2, 3}}, seq.Waypoints()); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}

	seq.Reset()
	if len(seq.Waypoints()) != 0 {
		t.Errorf("after Reset got %v", seq.Waypoints())
	}
}

func TestPlayList_MovesAndDwells(t *testing.T) {
	seq, r, clock := newTestSequencer()
	list := []rig.Pose{{0, 0}, {100, 200}, {5, 5}}

	if err := seq.PlayList(context.Background(), list, 750*time.Millisecond); err != nil {
		t.Fatalf("PlayList: %v", err)
	}
	if r.moves != 3 {
		t.Errorf("moves = %d, want 3", r.moves)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("sleeps = %v, want 3", sleeps)
	}
	for i, d := range sleeps {
		if d < 750*time.Millisecond {
			t.Errorf("sleep %d = %v, want >= 750ms", i, d)
		}
	}
	if len(r.calls) != 3 || r.calls[0] != "move[0 0]" {
		t.Errorf("PlayList must not enable or disable, calls = %v", r.calls)
	}
}

func TestPlayList_Empty(t *testing.T) {
	seq, r, clock := newTestSequencer()

	if err := seq.PlayList(context.Background(), nil, time.Second); err != nil {
		t.Fatalf("PlayList: %v", err)
	}
	if r.moves != 0 || len(clock.Sleeps()) != 0 {
		t.Errorf("empty list: moves=%d sleeps=%v", r.moves, clock.Sleeps())
	}
}

func TestPlayList_StopsOnFailure(t *testing.T) {
	seq, r, _ := newTestSequencer()
	r.failMoveAt = 2

	err := seq.PlayList(context.Background(), []rig.Pose{{1}, {2}, {3}}, 0)
	if !errors.Is(err, errFail) {
		t.Fatalf("err = %v, want %v", err, errFail)
	}
	if r.moves != 2 {
		t.Errorf("moves = %d, want 2", r.moves)
	}
}

func TestPlay_Brackets(t *testing.T) {
	seq, r, _ := newTestSequencer()
	seq.SetWaypoints([]rig.Pose{{1}, {2}})

	if err := seq.Play(context.Background(), 2, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	want := []string{"enable", "move[1]", "move[2]", "move[1]", "move[2]", "disable"}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestPlay_DisablesAfterFailure(t *testing.T) {
	seq, r, _ := newTestSequencer()
	seq.SetWaypoints([]rig.Pose{{1}, {2}})
	r.failMoveAt = 3

	if err := seq.Play(context.Background(), 5, 0); !errors.Is(err, errFail) {
		t.Fatalf("err = %v, want %v", err, errFail)
	}
	if last := r.calls[len(r.calls)-1]; last != "disable" {
		t.Errorf("last call = %q, want disable", last)
	}
	if r.moves != 3 {
		t.Errorf("moves = %d, want 3", r.moves)
	}
}

func TestPlay_DisablesAfterEnableFailure(t *testing.T) {
	seq, r, _ := newTestSequencer()
	seq.SetWaypoints([]rig.Pose{{1}})
	r.failEnable = true

	if err := seq.Play(context.Background(), 1, 0); !errors.Is(err, errFail) {
		t.Fatalf("err = %v, want %v", err, errFail)
	}
	if diff := cmp.Diff([]string{"enable", "disable"}, r.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCycle(t *testing.T) {
	cases := []struct {
		name       string
		iterations int
		want       []string
	}{
		{"zero", 0, []string{"enable", "disable"}},
		{"one", 1, []string{"enable", "move[1]", "move[2]", "move[3]", "move[3]", "move[2]", "move[1]", "disable"}},
		{"two", 2, []string{
			"enable",
			"move[1]", "move[2]", "move[3]", "move[3]", "move[2]", "move[1]",
			"move[1]", "move[2]", "move[3]", "move[3]", "move[2]", "move[1]",
			"disable",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seq, r, _ := newTestSequencer()
			seq.SetWaypoints([]rig.Pose{{1}, {2}, {3}})

			if err := seq.Cycle(context.Background(), tc.iterations, 0); err != nil {
				t.Fatalf("Cycle: %v", err)
			}
			if diff := cmp.Diff(tc.want, r.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCycle_DoesNotReorderStoredList(t *testing.T) {
	seq, _, _ := newTestSequencer()
	seq.SetWaypoints([]rig.Pose{{1}, {2}})

	seq.Cycle(context.Background(), 1, 0)
	if diff := cmp.Diff([]rig.Pose{{1}, {2}}, seq.Waypoints()); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}
}

// Two real axes on a simulated bus: one pose = LA + M per axis.
func TestPlayList_TwoAxisRig_EndToEnd(t *testing.T) {
	sim := link.NewSimulator(1, 2)
	l := link.New(sim, false, nil)
	frames := &frameCounter{Sender: l}

	a1, err := drive.NewAxis(frames, drive.Node(1))
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	a2, err := drive.NewAxis(frames, drive.Node(2))
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seq := NewSequencer(rig.New(a1, a2), clock)
	frames.moves = 0

	if err := seq.PlayList(context.Background(), []rig.Pose{{0, 0}, {100, 200}}, 0); err != nil {
		t.Fatalf("PlayList: %v", err)
	}
	if frames.moves != 4 {
		t.Errorf("move frames = %d, want 4", frames.moves)
	}
	for _, d := range clock.Sleeps() {
		if d > 0 {
			t.Errorf("unexpected positive sleep %v with zero dwell", d)
		}
	}
	if d, _ := sim.Drive(2); d.Position != 200 {
		t.Errorf("axis 2 at %d, want 200", d.Position)
	}
}

// cancelRig cancels the run from inside its n-th move.
type cancelRig struct {
	mockRig
	cancel context.CancelFunc
	afterN int
}

func (c *cancelRig) MoveToPose(p rig.Pose) error {
	err := c.mockRig.MoveToPose(p)
	if c.mockRig.moves == c.afterN {
		c.cancel()
	}
	return err
}

func TestPlay_CancelStopsAndDisables(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &cancelRig{cancel: cancel, afterN: 2}
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seq := NewSequencer(r, clock)
	seq.SetWaypoints([]rig.Pose{{1}, {2}, {3}})

	err := seq.Play(ctx, 3, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	want := []string{"enable", "move[1]", "move[2]", "disable"}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	// only the first dwell ran; the one after the cancelling move did not
	if diff := cmp.Diff([]time.Duration{time.Second}, clock.Sleeps()); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestCycle_CancelledBeforeStart(t *testing.T) {
	seq, r, _ := newTestSequencer()
	seq.SetWaypoints([]rig.Pose{{1}, {2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := seq.Cycle(ctx, 2, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]string{"enable", "disable"}, r.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

type frameCounter struct {
	drive.Sender
	moves int
}

func (f *frameCounter) Send(frame string) (string, error) {
	if len(frame) >= 2 && frame[len(frame)-2:] == "M\n" {
		f.moves++
	}
	return f.Sender.Send(frame)
}
