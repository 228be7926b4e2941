package gpio

import (
	"errors"
	"fmt"
)

// Indicator raises one output pin while the rig is running.
// A zero pin disables it; all methods are then no-ops.
type Indicator struct {
	drv Driver
	pin int
}

// NewIndicator configures pin as a low output.
func NewIndicator(drv Driver, pin int) (*Indicator, error) {
	ind := &Indicator{drv: drv, pin: pin}
	if !ind.active() {
		return ind, nil
	}
	if err := drv.SetupPin(pin, Output); err != nil {
		return nil, fmt.Errorf("busy pin %d: %w", pin, err)
	}
	if err := drv.WritePin(pin, Low); err != nil {
		return nil, fmt.Errorf("busy pin %d: %w", pin, err)
	}
	return ind, nil
}

func (i *Indicator) active() bool {
	return i != nil && i.drv != nil && i.pin > 0
}

func (i *Indicator) On() error {
	if !i.active() {
		return nil
	}
	return i.drv.WritePin(i.pin, High)
}

func (i *Indicator) Off() error {
	if !i.active() {
		return nil
	}
	return i.drv.WritePin(i.pin, Low)
}

// While runs fn with the pin high. The pin is lowered even if fn fails.
func (i *Indicator) While(fn func() error) (err error) {
	if err := i.On(); err != nil {
		return fmt.Errorf("busy on: %w", err)
	}
	defer func() {
		if offErr := i.Off(); offErr != nil {
			err = errors.Join(err, fmt.Errorf("busy off: %w", offErr))
		}
	}()
	return fn()
}
