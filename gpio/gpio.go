// Package gpio exposes Linux GPIO lines as hm10 pins using periph.io.
package gpio

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound is returned when no registered GPIO line has the requested
// name.
var ErrPinNotFound = errors.New("gpio pin not found")

// Init loads the host drivers. It must be called once before pins are opened.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init host drivers: %w", err)
	}
	return nil
}

// Input is a GPIO line read as a digital input.
type Input struct {
	pin gpio.PinIO
}

// OpenInput configures the named line as an input. With pullUp the internal
// pull-up is enabled, which suits an active-low button.
func OpenInput(name string, pullUp bool) (*Input, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}

	pull := gpio.Float
	if pullUp {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &Input{pin: pin}, nil
}

// Read implements hm10.InputPin.
func (p *Input) Read() bool {
	return p.pin.Read() == gpio.High
}

func (p *Input) String() string {
	return p.pin.Name()
}

// Output is a GPIO line driven as a digital output.
type Output struct {
	pin gpio.PinIO
}

// OpenOutput configures the named line as an output at the initial level.
func OpenOutput(name string, initial bool) (*Output, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := pin.Out(gpio.Level(initial)); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}
	return &Output{pin: pin}, nil
}

// Set implements hm10.OutputPin.
func (p *Output) Set(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

func (p *Output) String() string {
	return p.pin.Name()
}

func lookup(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrPinNotFound)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return pin, nil
}
