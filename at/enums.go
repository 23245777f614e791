package at

import "fmt"

// Role is the BLE role of the module.
type Role int

const (
	Peripheral Role = 0
	Central    Role = 1
)

func (r Role) String() string {
	switch r {
	case Peripheral:
		return "peripheral"
	case Central:
		return "central"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole parses a role name as used in configuration.
func ParseRole(s string) (Role, error) {
	switch s {
	case "peripheral":
		return Peripheral, nil
	case "central":
		return Central, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// BaudRate is the module UART speed. The numeric value is the code the module
// uses, which is not ordered by speed.
type BaudRate int

const (
	Baud9600   BaudRate = 0
	Baud19200  BaudRate = 1
	Baud38400  BaudRate = 2
	Baud57600  BaudRate = 3
	Baud115200 BaudRate = 4
	Baud4800   BaudRate = 5
	Baud2400   BaudRate = 6
	Baud1200   BaudRate = 7
	Baud230400 BaudRate = 8

	BaudDefault = Baud9600
)

var baudBits = [...]int{9600, 19200, 38400, 57600, 115200, 4800, 2400, 1200, 230400}

// Bits returns the speed in bits per second.
func (b BaudRate) Bits() int {
	if b < 0 || int(b) >= len(baudBits) {
		return 0
	}
	return baudBits[b]
}

func (b BaudRate) String() string {
	if bits := b.Bits(); bits != 0 {
		return fmt.Sprintf("%d", bits)
	}
	return fmt.Sprintf("BaudRate(%d)", int(b))
}

// BaudRateFromBits maps a speed in bits per second to its module code.
func BaudRateFromBits(bits int) (BaudRate, error) {
	for code, v := range baudBits {
		if v == bits {
			return BaudRate(code), nil
		}
	}
	return 0, fmt.Errorf("unsupported baud rate %d", bits)
}

// BondMode is the pairing and authentication policy.
type BondMode int

const (
	NoAuth      BondMode = 0
	AuthNoPin   BondMode = 1
	AuthWithPin BondMode = 2
	AuthAndBond BondMode = 3
)

func (m BondMode) String() string {
	switch m {
	case NoAuth:
		return "no-auth"
	case AuthNoPin:
		return "auth-no-pin"
	case AuthWithPin:
		return "auth-with-pin"
	case AuthAndBond:
		return "auth-and-bond"
	}
	return fmt.Sprintf("BondMode(%d)", int(m))
}

// WorkType selects whether the module starts working at power-on.
type WorkType int

const (
	AutoStart   WorkType = 0
	ManualStart WorkType = 1
)

func (w WorkType) String() string {
	switch w {
	case AutoStart:
		return "auto-start"
	case ManualStart:
		return "manual-start"
	}
	return fmt.Sprintf("WorkType(%d)", int(w))
}

// WhitelistSlot is one of the three whitelist entries.
type WhitelistSlot int

const (
	Slot1 WhitelistSlot = 1
	Slot2 WhitelistSlot = 2
	Slot3 WhitelistSlot = 3

	DefaultSlot = Slot1
)

// Code returns the single digit sent to the module for v.
func Code[T ~int](v T) string {
	return fmt.Sprintf("%d", int(v))
}

// ParseDigit parses a single-digit code reply into one of n enum values
// (0..n-1). Anything else is ErrUnknownCode.
func ParseDigit(code string, n int) (int, error) {
	if code == "" {
		return 0, fmt.Errorf("%w: empty", ErrUnknownCode)
	}
	d := int(code[0]) - '0'
	if d < 0 || d >= n {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCode, code[:1])
	}
	return d, nil
}

// ParseRoleCode parses the value of an OK+Get: reply to ROLE?.
func ParseRoleCode(code string) (Role, error) {
	d, err := ParseDigit(code, 2)
	return Role(d), err
}

// ParseBaudRateCode parses the value of an OK+Get: reply to BAUD?.
func ParseBaudRateCode(code string) (BaudRate, error) {
	d, err := ParseDigit(code, len(baudBits))
	return BaudRate(d), err
}

// ParseBondModeCode parses the value of an OK+Get: reply to TYPE?.
func ParseBondModeCode(code string) (BondMode, error) {
	d, err := ParseDigit(code, 4)
	return BondMode(d), err
}

// ParseWorkTypeCode parses the value of an OK+Get: reply to IMME?.
func ParseWorkTypeCode(code string) (WorkType, error) {
	d, err := ParseDigit(code, 2)
	return WorkType(d), err
}

// ParseBoolCode parses a 0/1 reply such as ALLO?.
func ParseBoolCode(code string) (bool, error) {
	d, err := ParseDigit(code, 2)
	return d == 1, err
}

// BoolCode is the inverse of ParseBoolCode.
func BoolCode(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ConnectResult is the single-character result carried by an OK+CONN reply.
type ConnectResult int

const (
	// ConnectAlready is the empty code: the link is already up.
	ConnectAlready ConnectResult = iota
	// ConnectPending ('A') means the attempt started; the outcome follows later.
	ConnectPending
	// ConnectError ('E') means the module rejected the command.
	ConnectError
	// ConnectUnavailable ('F') means the peer could not be reached.
	ConnectUnavailable
)

func (r ConnectResult) String() string {
	switch r {
	case ConnectAlready:
		return "already connected"
	case ConnectPending:
		return "pending"
	case ConnectError:
		return "error"
	case ConnectUnavailable:
		return "peripheral unavailable"
	}
	return fmt.Sprintf("ConnectResult(%d)", int(r))
}

// ParseConnectResult maps the code following "OK+CONN" to a ConnectResult.
// Only the first character is significant.
func ParseConnectResult(code string) (ConnectResult, error) {
	if code == "" {
		return ConnectAlready, nil
	}
	switch code[0] {
	case 'A':
		return ConnectPending, nil
	case 'E':
		return ConnectError, nil
	case 'F':
		return ConnectUnavailable, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCode, code[:1])
}
