package hm10

//go:generate go tool mockgen -source=pins.go -destination=mock_pins.go -package=hm10

// InputPin is a digital input wired to the module or to a button.
type InputPin interface {
	// Read returns true for a high level.
	Read() bool
}

// OutputPin is a digital output.
type OutputPin interface {
	// Set drives the pin high or low.
	Set(high bool) error
}

// Pins groups the hardware signals around the module.
type Pins struct {
	// State is the module STATE pin, high while a link is up. Required.
	State InputPin
	// Reset is the module RESET pin, active low. Required.
	Reset OutputPin
	// Connected, when set, mirrors the link state.
	Connected OutputPin
	// Activity, when set, is high while bytes are flowing.
	Activity OutputPin
	// Toggle, when set, is an active-low button that disconnects a connected
	// link or reconnects a disconnected one. Only used by a Central.
	Toggle InputPin
}

func (p Pins) validate() error {
	if p.State == nil || p.Reset == nil {
		return ErrNoPins
	}
	return nil
}
