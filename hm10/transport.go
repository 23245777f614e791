package hm10

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=hm10

// Transport represents an established, bidirectional byte stream to an HM-10
// module.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations include serial ports, pseudo terminals wired to a simulator,
// or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to an HM-10 module.
//
// Dialer abstracts how the module connection is created and is intended to be
// used during Device construction only. Once a Transport is obtained, the
// Dialer is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform blocking
	// operations and should respect cancellation of ctx.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the factory UART speed of the HM-10.
const DefaultBaudRate = 9600

// SerialDialer opens an HM-10 module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	PortName string
	// BaudRate is used when Mode is nil. Zero means DefaultBaudRate.
	BaudRate int
	// Mode overrides the full port configuration.
	Mode *serial.Mode
}

// Dial implements Dialer.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("hm10: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("hm10: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("hm10: open %s: %w", d.PortName, err)
	}
	return port, nil
}
