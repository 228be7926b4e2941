package link

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LabMonkey/internal/debug"
)

// Simulator is a Port that emulates a bus of motion drives answering the
// ASCII command set. It is used when no hardware is attached (mock mode)
// and by end-to-end tests. Moves complete instantly.
//
// Every frame is answered with one line: the position for POS, "OK" for
// everything else. Frames addressed to an unknown node get no answer, which
// looks like a read timeout to the Link.
type Simulator struct {
	mu     sync.Mutex
	drives map[int]*SimDrive
	in     []byte
	out    bytes.Buffer
	closed bool
}

// Unaddressed is the Simulator node key used for frames without an address.
const Unaddressed = -1

// SimDrive is the state of one simulated drive.
type SimDrive struct {
	Enabled  bool
	Position int
	Target   int
	MaxSpeed int
	Accel    int
	Decel    int
	Velocity int

	program   []string
	recording bool
}

// NewSimulator creates a simulator with one drive per node id.
// Use Unaddressed for a single drive in unaddressed mode.
func NewSimulator(nodes ...int) *Simulator {
	s := &Simulator{drives: make(map[int]*SimDrive)}
	for _, n := range nodes {
		s.drives[n] = &SimDrive{}
	}
	return s
}

// Drive returns a copy of the state of node.
func (s *Simulator) Drive(node int) (SimDrive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drives[node]
	if !ok {
		return SimDrive{}, false
	}
	return *d, true
}

// SetPosition moves node as if pushed by hand.
func (s *Simulator) SetPosition(node, pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drives[node]; ok {
		d.Position = pos
	}
}

// Write consumes complete frames and queues their responses.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("simulator closed")
	}

	s.in = append(s.in, p...)
	for {
		i := bytes.IndexByte(s.in, '\n')
		if i < 0 {
			break
		}
		frame := string(s.in[:i])
		s.in = s.in[i+1:]
		s.handle(frame)
	}
	return len(p), nil
}

// Read returns queued responses. With nothing queued it returns 0, nil like
// a serial port whose read timed out.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("simulator closed")
	}
	if s.out.Len() == 0 {
		return 0, nil
	}
	return s.out.Read(p)
}

// SetReadTimeout is accepted and ignored; reads never block.
func (s *Simulator) SetReadTimeout(time.Duration) error { return nil }

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Simulator) handle(frame string) {
	node, token := splitFrame(frame)
	d, ok := s.drives[node]
	if !ok {
		debug.Trace("simulator: no drive at node %d for %q", node, frame)
		return
	}

	if d.recording && token != "END" {
		d.program = append(d.program, token)
		s.out.WriteString("OK\r\n")
		return
	}

	s.out.WriteString(d.apply(token))
	s.out.WriteString("\r\n")
}

// splitFrame separates the leading node id from the token.
func splitFrame(frame string) (int, string) {
	i := 0
	for i < len(frame) && frame[i] >= '0' && frame[i] <= '9' {
		i++
	}
	if i == 0 {
		return Unaddressed, frame
	}
	n, err := strconv.Atoi(frame[:i])
	if err != nil {
		return Unaddressed, frame
	}
	return n, frame[i:]
}

func (d *SimDrive) apply(token string) string {
	arg := func(prefix string) (int, bool) {
		v, err := strconv.Atoi(strings.TrimPrefix(token, prefix))
		return v, err == nil
	}

	switch {
	case token == "EN":
		d.Enabled = true
	case token == "DI":
		d.Enabled = false
	case token == "M":
		if d.Enabled {
			d.Position = d.Target
		}
	case token == "POS":
		return strconv.Itoa(d.Position)
	case token == "HO":
		d.Position = 0
		d.Target = 0
	case token == "PROGSEQ":
		d.program = nil
		d.recording = true
	case token == "END":
		d.recording = false
	case token == "ENPROG ":
		for _, t := range d.program {
			d.apply(t)
		}
	case strings.HasPrefix(token, "HO"):
		if v, ok := arg("HO"); ok {
			d.Position = v
			d.Target = v
		}
	case strings.HasPrefix(token, "LA"):
		if v, ok := arg("LA"); ok {
			d.Target = v
		}
	case strings.HasPrefix(token, "LR"):
		if v, ok := arg("LR"); ok {
			d.Target = d.Position + v
		}
	case strings.HasPrefix(token, "SP"):
		if v, ok := arg("SP"); ok {
			d.MaxSpeed = v
		}
	case strings.HasPrefix(token, "AC"):
		if v, ok := arg("AC"); ok {
			d.Accel = v
		}
	case strings.HasPrefix(token, "DEC"):
		if v, ok := arg("DEC"); ok {
			d.Decel = v
		}
	case strings.HasPrefix(token, "DELAY"):
	case strings.HasPrefix(token, "V"):
		if v, ok := arg("V"); ok {
			d.Velocity = v
		}
	default:
		return fmt.Sprintf("Unknown command: %s", token)
	}
	return "OK"
}
