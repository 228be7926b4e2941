package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cjeanneret/LabMonkey/internal/config"
	"github.com/cjeanneret/LabMonkey/internal/debug"
	"github.com/cjeanneret/LabMonkey/internal/hw/drive"
	"github.com/cjeanneret/LabMonkey/internal/hw/gpio"
	"github.com/cjeanneret/LabMonkey/internal/hw/link"
	"github.com/cjeanneret/LabMonkey/internal/logic/rig"
	"github.com/cjeanneret/LabMonkey/internal/logic/trajectory"
	"github.com/cjeanneret/LabMonkey/internal/logic/waypoint"
	"github.com/cjeanneret/LabMonkey/internal/timeutil"
)

var actions = map[string]bool{
	"play": true, "cycle": true, "record": true, "home": true,
	"show": true, "track": true, "replay": true, "program": true,
}

// options holds the parsed command line.
type options struct {
	configPath string
	waypoints  string
	trajectory string
	action     string
	n          int // iterations; 0 = config default
	dwell      time.Duration
	dwellSet   bool // -dwell given; otherwise the config value applies
	duration   time.Duration
	axis       int
	targetAxis int
	steps      int
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateOptions(opts, len(cfg.Axes)); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	debug.Init(cfg.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Action", opts.action)
	debug.Value("Debug level", cfg.DebugLevel)
	debug.PrintStruct("Serial config", cfg.Serial)
	for i, ac := range cfg.Axes {
		debug.PrintStruct(fmt.Sprintf("Axis %d config", i), ac)
	}

	debug.Step(1, "Opening serial link")
	port, err := openPort(cfg)
	if err != nil {
		log.Fatalf("open serial link failed: %v", err)
	}

	debug.Step(2, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		_ = port.Close()
		log.Fatalf("init GPIO failed: %v", err)
	}
	busy, err := gpio.NewIndicator(gpioDriver, cfg.GPIO.BusyPin)
	if err != nil {
		_ = gpioDriver.Close()
		_ = port.Close()
		log.Fatalf("init busy indicator failed: %v", err)
	}

	debug.Step(3, "Configuring axes")
	a, err := newApp(cfg, port, os.Stdout, busy)
	if err != nil {
		_ = gpioDriver.Close()
		log.Fatalf("init rig failed: %v", err)
	}

	runErr := a.run(ctx, opts)
	if err := a.Close(); err != nil {
		log.Printf("closing rig failed: %v", err)
	}
	if err := gpioDriver.Close(); err != nil {
		log.Printf("closing GPIO driver failed: %v", err)
	}
	if runErr != nil {
		log.Fatalf("%s failed: %v", opts.action, runErr)
	}
	debug.Section("Done")
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("labmonkey", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	fs.StringVar(&o.waypoints, "waypoints", "waypoints.json", "waypoint list file")
	fs.StringVar(&o.trajectory, "trajectory", "trajectory.json", "trajectory file for track/replay")
	fs.StringVar(&o.action, "action", "play", "play|cycle|record|home|show|track|replay|program")
	fs.IntVar(&o.n, "n", 0, "iterations for play/cycle (0 = config default)")
	fs.DurationVar(&o.dwell, "dwell", 0, "pause after each waypoint (default from config)")
	fs.DurationVar(&o.duration, "duration", 10*time.Second, "track recording length")
	fs.IntVar(&o.axis, "axis", 0, "axis index for track and program")
	fs.IntVar(&o.targetAxis, "target-axis", 0, "axis index for replay")
	fs.IntVar(&o.steps, "steps", 1000, "relative move of the demo program")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dwell" {
			o.dwellSet = true
		}
	})
	return o, nil
}

// validateOptions checks flags against the configured axis count.
func validateOptions(o options, axisCount int) error {
	if !actions[o.action] {
		return fmt.Errorf("unknown action %q", o.action)
	}
	if o.n < 0 {
		return fmt.Errorf("-n must be >= 0, got %d", o.n)
	}
	if o.dwell < 0 {
		return fmt.Errorf("-dwell must be >= 0, got %v", o.dwell)
	}
	if o.action == "track" && o.duration <= 0 {
		return fmt.Errorf("-duration must be > 0, got %v", o.duration)
	}
	if o.axis < 0 || o.axis >= axisCount {
		return fmt.Errorf("-axis %d out of range [0,%d)", o.axis, axisCount)
	}
	if o.targetAxis < 0 || o.targetAxis >= axisCount {
		return fmt.Errorf("-target-axis %d out of range [0,%d)", o.targetAxis, axisCount)
	}
	return nil
}

// openPort returns the real serial port or, in mock mode, a simulator
// answering for every configured node.
func openPort(cfg *config.Config) (link.Port, error) {
	if cfg.Serial.Mock {
		debug.Info("Using simulated drives")
		return link.NewSimulator(simNodes(cfg)...), nil
	}
	debug.Value("Port", cfg.Serial.Port)
	return link.Open(cfg.Serial.Port, link.Options{
		BaudRate:    cfg.Serial.BaudRate,
		DataBits:    cfg.Serial.DataBits,
		StopBits:    cfg.Serial.StopBits,
		Parity:      cfg.Serial.Parity,
		ReadTimeout: cfg.ReadTimeout(),
	})
}

func simNodes(cfg *config.Config) []int {
	nodes := make([]int, 0, len(cfg.Axes))
	for _, ac := range cfg.Axes {
		if ac.ID == nil {
			nodes = append(nodes, link.Unaddressed)
			continue
		}
		nodes = append(nodes, *ac.ID)
	}
	return nodes
}

func address(ac config.AxisConfig) drive.Address {
	if ac.ID == nil {
		return drive.Unaddressed
	}
	return drive.Node(*ac.ID)
}

// app wires the rig, sequencer and trajectory engine over one link.
type app struct {
	cfg    *config.Config
	link   *link.Link
	rig    *rig.Rig
	seq    *waypoint.Sequencer
	engine *trajectory.Engine
	busy   *gpio.Indicator
	in     io.Reader
	out    io.Writer
}

// newApp takes ownership of port: it is closed on error and by app.Close.
func newApp(cfg *config.Config, port link.Port, out io.Writer, busy *gpio.Indicator) (*app, error) {
	l := link.New(port, cfg.Serial.Verbose, out)

	axes := make([]rig.Axis, 0, len(cfg.Axes))
	limits := make([]rig.Limits, 0, len(cfg.Axes))
	for _, ac := range cfg.Axes {
		ax, err := drive.NewAxis(l, address(ac))
		if err != nil {
			_ = rig.New(axes...).Close()
			_ = l.Close()
			return nil, fmt.Errorf("axis %d: %w", len(axes), err)
		}
		debug.Verbose("Axis %d on %s", len(axes), ax.Address())
		axes = append(axes, ax)
		limits = append(limits, rig.Limits{MaxSpeed: ac.RPM, Accel: ac.Acc, Decel: ac.Dec})
	}

	r := rig.New(axes...)
	if err := r.Configure(limits); err != nil {
		_ = r.Close()
		_ = l.Close()
		return nil, fmt.Errorf("configure rig: %w", err)
	}

	clock := timeutil.RealClock{}
	return &app{
		cfg:    cfg,
		link:   l,
		rig:    r,
		seq:    waypoint.NewSequencer(r, clock),
		engine: trajectory.NewEngine(clock),
		busy:   busy,
		in:     os.Stdin,
		out:    out,
	}, nil
}

// Close disables every axis, then releases the link.
func (a *app) Close() error {
	return errors.Join(a.rig.Close(), a.link.Close())
}

func (a *app) iterations(o options) int {
	if o.n > 0 {
		return o.n
	}
	return a.cfg.Playback.Iterations
}

func (a *app) dwell(o options) time.Duration {
	if o.dwellSet {
		return o.dwell
	}
	return a.cfg.Dwell()
}

// run performs one action. Cancelling ctx stops play, cycle, record, track
// and replay at the next step; their teardown still runs.
func (a *app) run(ctx context.Context, o options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch o.action {
	case "play", "cycle":
		return a.playback(ctx, o)
	case "record":
		return a.busy.While(func() error { return a.record(ctx, o) })
	case "home":
		return a.home()
	case "show":
		return a.show(o)
	case "track":
		return a.busy.While(func() error { return a.track(ctx, o) })
	case "replay":
		return a.busy.While(func() error { return a.replay(ctx, o) })
	case "program":
		return a.program(o)
	default:
		return fmt.Errorf("unknown action %q", o.action)
	}
}

func (a *app) playback(ctx context.Context, o options) error {
	list, err := waypoint.Load(o.waypoints)
	if err != nil {
		return err
	}
	a.seq.SetWaypoints(list)

	n, dwell := a.iterations(o), a.dwell(o)
	debug.Summary("Waypoint playback")
	debug.Info("%s %d waypoint(s) x%d, dwell %v", o.action, len(list), n, dwell)

	return a.busy.While(func() error {
		if o.action == "cycle" {
			return a.seq.Cycle(ctx, n, dwell)
		}
		return a.seq.Play(ctx, n, dwell)
	})
}

// record appends one pose per input line to the waypoints already in the
// file, if any, and saves the list on EOF. Cancelling ctx discards the run.
func (a *app) record(ctx context.Context, o options) error {
	list, err := waypoint.Load(o.waypoints)
	switch {
	case err == nil:
		a.seq.SetWaypoints(list)
		debug.Info("Appending to %d waypoint(s) from %s", len(list), o.waypoints)
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	fmt.Fprintln(a.out, "Press Enter to record a waypoint, Ctrl-D to save.")
	lines := make(chan struct{})
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-lines:
			if !ok {
				done = true
				break
			}
			p, err := a.seq.Record()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "#%d %v\n", len(a.seq.Waypoints())-1, p)
		}
	}
	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	default:
		// reader stopped on cancellation
		return ctx.Err()
	}

	list = a.seq.Waypoints()
	if err := waypoint.Save(o.waypoints, list); err != nil {
		return err
	}
	debug.Info("Saved %d waypoint(s) to %s", len(list), o.waypoints)
	return nil
}

// home zeroes every axis where it stands. Drives stay released.
func (a *app) home() error {
	return a.rig.Home()
}

// show prints the current pose and the stored waypoints, if any.
func (a *app) show(o options) error {
	p, err := a.rig.CurrentPose()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "current: %v\n", p)

	list, err := waypoint.Load(o.waypoints)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(a.out, "no waypoints")
		return nil
	}
	if err != nil {
		return err
	}
	for i, w := range list {
		fmt.Fprintf(a.out, "#%d %v\n", i, w)
	}
	return nil
}

func (a *app) track(ctx context.Context, o options) error {
	debug.Info("Tracking axis %d for %v", o.axis, o.duration)
	samples, err := a.engine.Record(ctx, a.rig.Axis(o.axis), o.duration, a.cfg.MinSampleInterval())
	if err != nil {
		return err
	}
	if err := trajectory.Save(o.trajectory, samples); err != nil {
		return err
	}
	debug.Info("Saved %d sample(s) to %s", len(samples), o.trajectory)
	return nil
}

func (a *app) replay(ctx context.Context, o options) (err error) {
	samples, err := trajectory.Load(o.trajectory)
	if err != nil {
		return err
	}
	ax := a.rig.Axis(o.targetAxis)
	if _, err := ax.Enable(); err != nil {
		return err
	}
	defer func() {
		if _, derr := ax.Disable(); derr != nil {
			debug.Error(fmt.Errorf("disable axis %d after replay: %w", o.targetAxis, derr))
		}
	}()
	debug.Info("Replaying %d sample(s) on axis %d", len(samples), o.targetAxis)
	return a.engine.Play(ctx, ax, samples, a.cfg.MinDisplacement())
}

// program stores a there-and-back move on one drive and runs it.
func (a *app) program(o options) error {
	addr := address(a.cfg.Axes[o.axis])
	return drive.With(a.link, addr, func(ax *drive.Axis) error {
		err := ax.WriteProgram(func(p *drive.Axis) error {
			if _, err := p.MoveSteps(o.steps); err != nil {
				return err
			}
			if _, err := p.Delay(a.dwell(o).Seconds()); err != nil {
				return err
			}
			_, err := p.MoveSteps(-o.steps)
			return err
		})
		if err != nil {
			return fmt.Errorf("write program: %w", err)
		}
		resp, err := ax.RunProgram()
		if err != nil {
			return err
		}
		debug.Verbose("ENPROG -> %q", resp)
		return nil
	})
}
