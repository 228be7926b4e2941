package trajectory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/LabMonkey/internal/hw/drive"
	"github.com/cjeanneret/LabMonkey/internal/hw/link"
	"github.com/cjeanneret/LabMonkey/internal/timeutil"
)

var errFail = errors.New("transport failure")

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// handAxis is moved by hand: each read costs latency and returns the next scripted position.
type handAxis struct {
	clock     *timeutil.MockClock
	latency   time.Duration
	positions []int
	reads     int
	calls     []string
	failRead  int // 1-based read that fails; 0 = never
	failEn    bool
	onRead    func(n int)
}

func (a *handAxis) Enable() (string, error) {
	a.calls = append(a.calls, "EN")
	if a.failEn {
		return "", errFail
	}
	return "OK", nil
}

func (a *handAxis) Disable() (string, error) {
	a.calls = append(a.calls, "DI")
	return "OK", nil
}

func (a *handAxis) Position() (int, error) {
	a.reads++
	a.clock.Advance(a.latency)
	a.calls = append(a.calls, "POS")
	if a.onRead != nil {
		a.onRead(a.reads)
	}
	if a.failRead == a.reads {
		return 0, errFail
	}
	if len(a.positions) == 0 {
		return 0, nil
	}
	p := a.positions[(a.reads-1)%len(a.positions)]
	return p, nil
}

// moveRecorder records moves with their clock offset.
type moveRecorder struct {
	clock  *timeutil.MockClock
	moves  []int
	at     []time.Duration
	lag    time.Duration // time spent per move
	fail   bool
	onMove func(n int)
}

func (m *moveRecorder) MoveToLocation(pos int) (string, error) {
	if m.fail {
		return "", errFail
	}
	m.moves = append(m.moves, pos)
	m.at = append(m.at, m.clock.Since(epoch))
	m.clock.Advance(m.lag)
	if m.onMove != nil {
		m.onMove(len(m.moves))
	}
	return "OK", nil
}

func TestRecord_FastReadsSleepToInterval(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 5 * time.Millisecond, positions: []int{1, 2, 3, 4, 5}}
	e := NewEngine(clock)

	samples, err := e.Record(context.Background(), src, 100*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)

	want := []Sample{
		{0, 1},
		{20 * time.Millisecond, 2},
		{40 * time.Millisecond, 3},
		{60 * time.Millisecond, 4},
		{80 * time.Millisecond, 5},
	}
	assert.Equal(t, want, samples)
	for _, d := range clock.Sleeps() {
		assert.Equal(t, 15*time.Millisecond, d)
	}
}

func TestRecord_SlowReadsNoCatchUp(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 30 * time.Millisecond, positions: []int{7}}
	e := NewEngine(clock)

	samples, err := e.Record(context.Background(), src, 100*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, samples, 4)
	assert.Equal(t, 90*time.Millisecond, samples[3].Elapsed)
	assert.Empty(t, clock.Sleeps(), "slow reads must not sleep")
}

func TestRecord_ElapsedNonDecreasing(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 3 * time.Millisecond}
	e := NewEngine(clock)

	samples, err := e.Record(context.Background(), src, 50*time.Millisecond, 0)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].Elapsed, samples[i-1].Elapsed)
	}
}

func TestRecord_DisablesThenReenables(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 10 * time.Millisecond}
	e := NewEngine(clock)

	_, err := e.Record(context.Background(), src, 20*time.Millisecond, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"DI", "POS", "POS", "EN"}, src.calls)
}

func TestRecord_ReenablesAfterReadFailure(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 10 * time.Millisecond, failRead: 2}
	e := NewEngine(clock)

	samples, err := e.Record(context.Background(), src, time.Second, 0)
	assert.ErrorIs(t, err, errFail)
	assert.Len(t, samples, 1)
	assert.Equal(t, "EN", src.calls[len(src.calls)-1])
}

func TestRecord_ReenableFailureReported(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &handAxis{clock: clock, latency: 10 * time.Millisecond, failEn: true}
	e := NewEngine(clock)

	_, err := e.Record(context.Background(), src, 20*time.Millisecond, 0)
	assert.ErrorIs(t, err, errFail)
}

func TestRecord_InvalidDuration(t *testing.T) {
	e := NewEngine(timeutil.NewMockClock(epoch))
	src := &handAxis{}

	_, err := e.Record(context.Background(), src, 0, time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Empty(t, src.calls, "invalid duration must not touch the axis")
}

func TestRecord_CancelReenables(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &handAxis{clock: clock, latency: 5 * time.Millisecond, positions: []int{4}}
	src.onRead = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	samples, err := NewEngine(clock).Record(ctx, src, time.Hour, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, samples, 3)
	assert.Equal(t, "EN", src.calls[len(src.calls)-1], "axis re-enabled after cancel")
}

func TestPlay_CancelStopsBetweenSamples(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dst := &moveRecorder{clock: clock}
	dst.onMove = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	samples := []Sample{{time.Second, 0}, {2 * time.Second, 100}, {3 * time.Second, 200}}
	err := NewEngine(clock).Play(ctx, dst, samples, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0, 100}, dst.moves)
	// the wait after the cancelling move is skipped
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
}

func TestPlay_MinDisplacementFilter(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	dst := &moveRecorder{clock: clock}
	e := NewEngine(clock)

	samples := []Sample{{0, 0}, {time.Second, 100}, {2 * time.Second, 100}}
	require.NoError(t, e.Play(context.Background(), dst, samples, 9))

	assert.Equal(t, []int{0, 100}, dst.moves)
	// a sample's move is issued before sleeping up to its timestamp
	assert.Equal(t, []time.Duration{0, 0}, dst.at)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
}

func TestPlay_DisplacementIsStrict(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	dst := &moveRecorder{clock: clock}
	e := NewEngine(clock)

	samples := []Sample{{0, 0}, {0, 9}, {0, -1}, {0, 10}, {0, -9}}
	require.NoError(t, e.Play(context.Background(), dst, samples, 9))

	// deltas are measured from the last commanded position, not the last sample
	assert.Equal(t, []int{0, 10, -9}, dst.moves)
}

func TestPlay_BehindScheduleNeverSleepsNegative(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	dst := &moveRecorder{clock: clock, lag: 300 * time.Millisecond}
	e := NewEngine(clock)

	samples := []Sample{
		{0, 0},
		{100 * time.Millisecond, 50},
		{200 * time.Millisecond, 100},
		{1300 * time.Millisecond, 150},
	}
	require.NoError(t, e.Play(context.Background(), dst, samples, 0))

	for _, d := range clock.Sleeps() {
		assert.Greater(t, d, time.Duration(0))
	}
	// only the last sample is ahead of the lagging player
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, []int{0, 50, 100, 150}, dst.moves)
}

func TestPlay_Empty(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	dst := &moveRecorder{clock: clock}

	require.NoError(t, NewEngine(clock).Play(context.Background(), dst, nil, 0))
	assert.Empty(t, dst.moves)
	assert.Empty(t, clock.Sleeps())
}

func TestPlay_MoveError(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	dst := &moveRecorder{clock: clock, fail: true}

	err := NewEngine(clock).Play(context.Background(), dst, []Sample{{0, 1}}, 0)
	assert.ErrorIs(t, err, errFail)
}

// Record on one simulated drive, replay on another.
func TestRecordAndReplay_Simulated(t *testing.T) {
	sim := link.NewSimulator(1, 2)
	l := link.New(sim, false, nil)
	src, err := drive.NewAxis(l, drive.Node(1))
	require.NoError(t, err)
	dst, err := drive.NewAxis(l, drive.Node(2))
	require.NoError(t, err)

	clock := timeutil.NewMockClock(epoch)
	pos := 0
	clock.OnNow = func(c *timeutil.MockClock) {
		pos += 10
		sim.SetPosition(1, pos)
	}
	e := NewEngine(clock)

	samples, err := e.Record(context.Background(), src, 100*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.True(t, src.Enabled(), "source must be re-enabled")

	clock.OnNow = nil
	require.NoError(t, e.Play(context.Background(), dst, samples, 0))

	d, _ := sim.Drive(2)
	assert.Equal(t, samples[len(samples)-1].Position, d.Position)
}

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.json")
	samples := []Sample{{0, 0}, {20 * time.Millisecond, 15}, {1500 * time.Millisecond, -40}}

	require.NoError(t, Save(path, samples))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestFile_RejectsTimeTravel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.json")
	require.NoError(t, Save(path, []Sample{{time.Second, 0}, {0, 1}}))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestFile_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
