package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/LabMonkey/internal/debug"
)

// RPiDriver drives Raspberry Pi pins through go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiDriver maps GPIO memory. Needs /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w (not a Raspberry Pi?)", err)
	}
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("pin %d: unknown mode %d", pin, mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) pin(n int, mode PinMode) (rpio.Pin, error) {
	if p, ok := r.pins[n]; ok {
		return p, nil
	}
	if err := r.SetupPin(n, mode); err != nil {
		return 0, err
	}
	return r.pins[n], nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	p, err := r.pin(pin, Output)
	if err != nil {
		return err
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, err := r.pin(pin, Input)
	if err != nil {
		return Low, err
	}
	level := Level(p.Read() == rpio.High)
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

// Close drops every used pin back to input before unmapping.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (go-rpio)")
	for n, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", n)
		p.Input()
	}
	return rpio.Close()
}
