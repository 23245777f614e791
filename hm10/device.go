// Package hm10 drives a bonded pair of HM-10 Bluetooth LE serial modules.
//
// A Device owns one module. It speaks the AT dialect through a Transceiver,
// follows the link through the module STATE pin and, while the link is up,
// demultiplexes Event and Message frames out of the byte stream.
//
// A Device is single threaded: Begin, Tick and every command wrapper must be
// called from one goroutine. Applications with concurrent callers run the
// device with Run and submit work through Do.
package hm10

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/frame"
)

// State is the link state as seen by the host.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device represents one HM-10 module.
type Device struct {
	config Config
	logger *slog.Logger
	clock  Clock

	closer   io.Closer
	stream   Stream
	trx      *Transceiver
	parser   *frame.Parser
	activity *ActivityTimer

	// ready is set once Begin succeeded.
	ready bool
	state State
	// connecting guards Connect against reentry.
	connecting           bool
	manuallyDisconnected bool
	lastConnectAttempt   time.Time
	connectingSince      time.Time

	console   io.Writer
	consoleIn byteSource

	txBuf []byte

	commands chan *request

	mu          sync.Mutex
	closed      bool
	loopRunning bool
	loopCancel  context.CancelFunc
	consolePump *PortStream
}

type byteSource interface {
	Available() int
	ReadByte() (byte, error)
}

// New dials the module and prepares a Device. It does not talk to the
// module; call Begin for that.
func New(ctx context.Context, config Config) (*Device, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial module: %w", err)
	}

	var closer io.Closer = transport
	stream, ok := transport.(Stream)
	if !ok {
		ps := NewPortStream(transport)
		stream, closer = ps, ps
	}

	d := &Device{
		config:   config,
		logger:   config.Logger.With("role", config.Role.String()),
		clock:    config.Clock,
		closer:   closer,
		stream:   stream,
		trx:      NewTransceiver(stream, config.Clock, config.Logger, config.CommandTimeout),
		parser:   frame.NewParser(config.Handlers),
		activity: NewActivityTimer(config.Activity, config.Clock, config.Pins.Activity),
		txBuf:    make([]byte, 0, frame.PrefixLen+4+frame.MaxPayload),
		commands: make(chan *request),
	}
	return d, nil
}

// Begin brings the module into a known state. A Central first gets rid of a
// link left over from before the host started, checks that the module
// answers and forgets any stored peer other than the configured one. With
// autoConnect a Central starts connecting immediately. Begin starts the
// auto-reconnect clock, so the first automatic attempt comes one
// AutoReconnectTimeout later.
func (d *Device) Begin(autoConnect bool) error {
	if d.isClosed() {
		return ErrAlreadyClosed
	}
	d.logger.Info("initializing module")

	d.setPin(d.config.Pins.Reset, true)
	d.clock.Sleep(resetSettle)

	if d.config.Role == at.Central {
		if err := d.beginCentral(autoConnect); err != nil {
			d.logger.Error("module initialization failed", "error", err)
			return err
		}
	}

	d.lastConnectAttempt = d.clock.Now()
	d.ready = true
	d.logger.Info("module initialized")
	return nil
}

func (d *Device) beginCentral(autoConnect bool) error {
	if d.IsConnected(true) {
		d.logger.Warn("previous link still active, resetting module")
		d.Reset()
		if d.IsConnected(true) {
			return fmt.Errorf("drop previous link: %w", ErrStillConnected)
		}
	}

	if err := d.Probe(); err != nil {
		return fmt.Errorf("module not responding: %w", err)
	}

	addr, err := d.LastConnectedAddress()
	if err != nil {
		return fmt.Errorf("read last connected address: %w", err)
	}
	if addr != d.config.PeerAddress && addr != at.EmptyAddress {
		d.logger.Info("clearing foreign last connected address", "address", addr)
		if err := d.ClearLastConnectedAddress(); err != nil {
			return fmt.Errorf("clear last connected address: %w", err)
		}
	}

	if autoConnect {
		if err := d.Reconnect(); err != nil {
			d.logger.Warn("initial connect failed", "error", err)
		}
	}
	return nil
}

// Ready reports whether Begin succeeded.
func (d *Device) Ready() bool {
	return d.ready
}

// State returns the current link state.
func (d *Device) State() State {
	return d.state
}

// ConfiguredRole returns the role the device was built for.
func (d *Device) ConfiguredRole() at.Role {
	return d.config.Role
}

// PeerAddress returns the configured peer address.
func (d *Device) PeerAddress() string {
	return d.config.PeerAddress
}

// Tick runs one iteration of the driver: it follows the link state, handles
// the toggle button and, while the link is up, consumes received bytes.
func (d *Device) Tick() {
	if !d.ready || d.isClosed() {
		return
	}

	d.reconcile()
	if d.config.Role == at.Central {
		d.handleToggle()
	}

	if d.state != StateConnected {
		return
	}
	if d.console != nil {
		d.relayConsole()
		return
	}

	for n := 0; n < d.config.MaxBytesPerTick && d.stream.Available() > 0; n++ {
		b, err := d.stream.ReadByte()
		if err != nil {
			d.logger.Warn("read from module failed", "error", err)
			return
		}
		d.markActivity()
		d.parser.Feed(b)
	}
}

func (d *Device) relayConsole() {
	if d.stream.Available() > 0 {
		if b, err := d.stream.ReadByte(); err == nil {
			d.markActivity()
			if _, err := d.console.Write([]byte{b}); err != nil {
				d.logger.Warn("console write failed", "error", err)
			}
		}
	}
	if d.consoleIn.Available() > 0 {
		if b, err := d.consoleIn.ReadByte(); err == nil {
			d.markActivity()
			if _, err := d.stream.Write([]byte{b}); err != nil {
				d.logger.Warn("module write failed", "error", err)
			}
		}
	}
}

// SetConsole enables pass-through mode: while the link is up, bytes are
// relayed one per tick in each direction between the module and rw instead
// of being parsed as frames. A nil rw disables pass-through.
//
// Unless rw is itself a Stream, a goroutine reads from it until another
// SetConsole call or Close. rw is closed at that point.
func (d *Device) SetConsole(rw io.ReadWriteCloser) {
	d.closeConsole()
	if rw == nil {
		return
	}

	d.console = rw
	if s, ok := rw.(Stream); ok {
		d.consoleIn = s
		return
	}
	pump := NewPortStream(rw)
	d.consoleIn = pump
	d.mu.Lock()
	d.consolePump = pump
	d.mu.Unlock()
}

func (d *Device) closeConsole() {
	d.console, d.consoleIn = nil, nil

	d.mu.Lock()
	pump := d.consolePump
	d.consolePump = nil
	d.mu.Unlock()

	if pump != nil {
		if err := pump.Close(); err != nil {
			d.logger.Warn("console close failed", "error", err)
		}
	}
}

// ConsoleEnabled reports whether pass-through mode is on.
func (d *Device) ConsoleEnabled() bool {
	return d.console != nil
}

// WriteEvent sends an Event frame to the peer.
func (d *Device) WriteEvent(id uint16, payload []byte) error {
	return d.writeFrame(frame.Frame{Kind: frame.KindEvent, ID: id, Payload: payload})
}

// WriteEventText sends an Event frame with a text payload.
func (d *Device) WriteEventText(id uint16, text string) error {
	return d.WriteEvent(id, []byte(text))
}

// WriteMessage sends a Message frame to the peer.
func (d *Device) WriteMessage(payload []byte) error {
	return d.writeFrame(frame.Frame{Kind: frame.KindMessage, Payload: payload})
}

// WriteMessageText sends a Message frame with a text payload.
func (d *Device) WriteMessageText(text string) error {
	return d.WriteMessage([]byte(text))
}

func (d *Device) writeFrame(f frame.Frame) error {
	if !d.linkReady() {
		return ErrNotReady
	}
	b, err := f.Append(d.txBuf[:0])
	if err != nil {
		return err
	}
	d.markActivity()
	if _, err := d.stream.Write(b); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Kind, err)
	}
	return nil
}

// Write sends p to the peer unframed.
func (d *Device) Write(p []byte) (int, error) {
	if !d.linkReady() {
		return 0, ErrNotReady
	}
	d.markActivity()
	return d.stream.Write(p)
}

func (d *Device) linkReady() bool {
	return d.ready && d.state == StateConnected && !d.isClosed()
}

func (d *Device) markActivity() {
	if d.config.Pins.Activity != nil {
		d.activity.Start()
	}
}

// Activity returns the activity timer driving the activity pin.
func (d *Device) Activity() *ActivityTimer {
	return d.activity
}

// Close releases the transport and stops a running loop. The device cannot
// be used afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrAlreadyClosed
	}
	d.closed = true
	cancel := d.loopCancel
	pump := d.consolePump
	d.consolePump = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.activity.Stop()
	if pump != nil {
		if err := pump.Close(); err != nil {
			d.logger.Warn("console close failed", "error", err)
		}
	}
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) setPin(pin OutputPin, high bool) {
	if pin == nil {
		return
	}
	if err := pin.Set(high); err != nil {
		d.logger.Warn("set pin failed", "high", high, "error", err)
	}
}
