package hm10

import (
	"errors"
	"fmt"

	"i4.energy/across/blelink/at"
)

var (
	// ErrNoDialer is returned when a Device is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoPins is returned when the state or reset pin is missing from the
	// configuration.
	ErrNoPins = errors.New("state and reset pins are required")

	// ErrNoPeerAddress is returned when the peer address is not a 12 digit
	// hex MAC address.
	ErrNoPeerAddress = errors.New("peer address must be 12 hex digits")

	// ErrAlreadyClosed is returned when Close is called on a Device that has
	// already been closed, or when it is used after Close.
	ErrAlreadyClosed = errors.New("device already closed")

	// ErrLoopRunning is returned when Run is called while it is already
	// running.
	ErrLoopRunning = errors.New("device loop already running")

	// ErrTimeout is returned when the module did not send enough bytes to
	// match the expected reply before the deadline. The partial reply is
	// returned alongside the error.
	ErrTimeout = errors.New("command timeout")

	// ErrResponseMismatch is returned when the reply did not start with the
	// expected prefix. The whole drained reply is returned alongside.
	ErrResponseMismatch = errors.New("unexpected response")

	// ErrNotReady is returned by the write paths when Begin has not succeeded
	// or the link is down. Nothing is written in that case.
	ErrNotReady = errors.New("link not ready")

	// ErrBusy is returned when a connect attempt is already in progress.
	ErrBusy = errors.New("connect already in progress")

	// ErrNotCentral is returned by operations only a Central can perform.
	ErrNotCentral = errors.New("operation requires the central role")

	// ErrNotConnected is returned by Disconnect when there is no link.
	ErrNotConnected = errors.New("not connected")

	// ErrStillConnected is returned when a reset did not drop the link.
	ErrStillConnected = errors.New("link still up after reset")

	// ErrInvalidPinHex is returned when the output state pin value is not
	// exactly three hex digits.
	ErrInvalidPinHex = errors.New("output state pins must be 3 hex digits")
)

// ConnectError reports a connect attempt the module refused or that did not
// produce a link.
type ConnectError struct {
	Result at.ConnectResult
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed: %s", e.Result)
}
