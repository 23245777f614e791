package hm10

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/blelink/at"
)

const (
	// resetPulse is how long the reset pin is held low. The module needs at
	// least 100ms.
	resetPulse = 101 * time.Millisecond
	// resetSettle is the pause after releasing the reset pin.
	resetSettle = 250 * time.Millisecond
)

// IsConnected reads the STATE pin. A plain read returns the instantaneous
// level. A confirming read samples the pin ConfirmSamples times,
// ConfirmDelay apart, and only reports a link if every sample is high: right
// after power-on the module may briefly report a link it is about to lose.
func (d *Device) IsConnected(confirm bool) bool {
	if !confirm {
		return d.config.Pins.State.Read()
	}
	for range d.config.ConfirmSamples {
		if !d.config.Pins.State.Read() {
			return false
		}
		d.clock.Sleep(d.config.ConfirmDelay)
	}
	return true
}

// reconcile moves the link state along the STATE pin and, for a Central,
// fires the auto-reconnect policy.
func (d *Device) reconcile() {
	if d.IsConnected(false) {
		if d.state != StateConnected {
			d.onConnect()
		}
		return
	}

	switch d.state {
	case StateConnected:
		d.onDisconnect()
		return
	case StateConnecting:
		if d.clock.Now().Sub(d.connectingSince) < d.config.ConnectingTimeout {
			return
		}
		d.logger.Info("module did not connect in time")
		d.state = StateDisconnected
	}

	if d.config.Role != at.Central || !d.config.AutoReconnect || d.manuallyDisconnected {
		return
	}
	if d.clock.Now().Sub(d.lastConnectAttempt) < d.config.AutoReconnectTimeout {
		return
	}
	d.autoReconnect()
}

func (d *Device) autoReconnect() {
	d.logger.Info("attempting auto-reconnect")

	early := d.config.AutoReconnectTimeout > d.config.ConnectTimeout+d.config.ConnectingTimeout
	if early {
		d.lastConnectAttempt = d.clock.Now()
	}

	addr, err := d.LastConnectedAddress()
	if err != nil {
		d.logger.Warn("auto-reconnect: read last connected address failed", "error", err)
	} else {
		if err := d.StartWork(); err != nil {
			d.logger.Warn("auto-reconnect: start work failed", "error", err)
		}
		if addr != d.config.PeerAddress || addr == at.EmptyAddress {
			if err := d.Connect(); err != nil {
				d.logger.Warn("auto-reconnect failed", "error", err)
			}
		}
	}

	if !early {
		d.lastConnectAttempt = d.clock.Now()
	}
}

func (d *Device) onConnect() {
	reconnected := d.manuallyDisconnected
	d.state = StateConnected
	d.connecting = false
	d.manuallyDisconnected = false
	d.logger.Info("link up", "reconnected", reconnected)

	d.setPin(d.config.Pins.Connected, true)
	if d.config.OnConnected != nil {
		d.config.OnConnected(reconnected)
	}
}

func (d *Device) onDisconnect() {
	d.state = StateDisconnected
	d.connecting = false
	d.logger.Info("link down")

	d.setPin(d.config.Pins.Connected, false)
	if d.config.OnDisconnected != nil {
		d.config.OnDisconnected()
	}
}

// Connect asks a Central to connect to the configured peer and waits for the
// outcome. A pending result is resolved by waiting up to ConnectingTimeout
// for the module to report a failure, then reading the STATE pin: the call
// only succeeds if the link is up.
func (d *Device) Connect() error {
	if d.config.Role != at.Central {
		return ErrNotCentral
	}
	if d.connecting {
		return ErrBusy
	}

	d.logger.Info("connecting to peer", "address", d.config.PeerAddress)
	d.connecting = true
	defer func() { d.connecting = false }()

	resp, err := d.trx.Execute(Command{
		Code:    at.CmdConnect,
		Param:   d.config.PeerAddress,
		Expect:  at.ConnectResponse,
		Timeout: d.config.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	result, err := at.ParseConnectResult(at.ParseValue(at.ConnectResponse, resp))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	switch result {
	case at.ConnectAlready:
		return nil
	case at.ConnectPending:
		if !strings.Contains(resp, at.ConnectFailure) {
			_, _ = d.trx.Wait(at.ConnectFailure, d.config.ConnectingTimeout)
		}
		if d.IsConnected(false) {
			return nil
		}
		return &ConnectError{Result: at.ConnectUnavailable}
	default:
		return &ConnectError{Result: result}
	}
}

// Reconnect starts the module and lets it connect to the address it stored,
// falling back to Connect when nothing is stored.
func (d *Device) Reconnect() error {
	if d.connecting {
		return ErrBusy
	}

	if err := d.StartWork(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	addr, err := d.LastConnectedAddress()
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if addr == at.EmptyAddress {
		return d.Connect()
	}

	if d.state != StateConnected {
		d.state = StateConnecting
		d.connectingSince = d.clock.Now()
	}
	return nil
}

// Disconnect drops the link of a connected Central by resetting the module.
func (d *Device) Disconnect() error {
	switch {
	case !d.ready:
		return ErrNotReady
	case d.config.Role != at.Central:
		return ErrNotCentral
	case d.state != StateConnected:
		return ErrNotConnected
	}

	d.Reset()
	d.reconcile()

	if d.IsConnected(true) {
		return ErrStillConnected
	}
	d.logger.Info("disconnected")
	return nil
}

// ManualDisconnect drops the link like Disconnect and keeps auto-reconnect
// from bringing it back until the next Reconnect. A link that is still being
// established is abandoned by resetting the module.
func (d *Device) ManualDisconnect() error {
	d.manuallyDisconnected = true
	if d.state == StateConnecting {
		d.Reset()
		d.state = StateDisconnected
		return nil
	}
	return d.Disconnect()
}

// Reset pulses the module reset pin and waits for the module to come back.
func (d *Device) Reset() {
	d.setPin(d.config.Pins.Reset, false)
	d.clock.Sleep(resetPulse)
	d.setPin(d.config.Pins.Reset, true)
	d.clock.Sleep(resetSettle)
}

// handleToggle reacts to the active-low toggle button: a link that is up or
// coming up is dropped and remembered as manually disconnected, otherwise a
// reconnect is started.
func (d *Device) handleToggle() {
	pin := d.config.Pins.Toggle
	if pin == nil || pin.Read() {
		return
	}

	if d.state != StateDisconnected {
		d.logger.Info("toggle: disconnecting")
		if err := d.ManualDisconnect(); err != nil {
			d.logger.Warn("toggle: disconnect failed", "error", err)
		}
	} else {
		d.logger.Info("toggle: reconnecting")
		if err := d.Reconnect(); err != nil {
			d.logger.Warn("toggle: reconnect failed", "error", err)
		}
	}

	d.clock.Sleep(d.config.ToggleDebounce)
}
