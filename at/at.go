// Package at implements the AT command dialect spoken by HM-10 Bluetooth LE
// serial modules.
//
// The HM-10 dialect differs from the GSM dialect: commands are not terminated
// by CR/LF and replies are not line oriented. A reply is a bare run of bytes
// such as "OK+ADDR:001122334455", so callers recognise replies by prefix.
package at

import "errors"

const (
	// Probe is the bare test command, sent when the command code is empty.
	Probe = "AT"
	// CommandPrefix precedes every non-probe command code.
	CommandPrefix = "AT+"
	// Query is appended to a command to read the current value.
	Query = "?"

	// MaxCommandLen is the capacity of the command buffer. Composed commands
	// must not exceed it.
	MaxCommandLen = 32

	// EmptyAddress is what the module reports when no peer was ever stored.
	EmptyAddress = "000000000000"
	// AddressLen is the length of a MAC address in hex characters.
	AddressLen = 12
)

// Command codes.
const (
	CmdName             = "NAME"
	CmdClear            = "CLEAR"
	CmdVersion          = "VERR"
	CmdAddress          = "ADDR"
	CmdLastAddress      = "RADD"
	CmdRole             = "ROLE"
	CmdOutputStatePins  = "AFTC"
	CmdStart            = "START"
	CmdConnect          = "CON"
	CmdWorkType         = "IMME"
	CmdBaudRate         = "BAUD"
	CmdWhitelistEnabled = "ALLO"
	CmdWhitelist        = "AD"
	CmdBondMode         = "TYPE"
)

// Response prefixes.
const (
	OK              = "OK"
	OKSet           = "OK+Set:"
	OKGet           = "OK+Get:"
	NameResponse    = "OK+NAME:"
	ClearResponse   = "OK+CLEAR"
	LostResponse    = "OK+LOST"
	AddressResponse = "OK+ADDR:"
	RaddResponse    = "OK+RADD:"
	StartResponse   = "OK+START"
	ConnectResponse = "OK+CONN"
	ConnectFailure  = "OK+CONNF"
	WhitelistAck    = "OK+AD"
)

var (
	// ErrCommandTooLong is returned when a composed command would not fit in
	// MaxCommandLen bytes. Nothing is written to the module in that case.
	ErrCommandTooLong = errors.New("at: command too long")

	// ErrUnknownCode is returned when a reply has the expected shape but
	// carries a code this package does not know.
	ErrUnknownCode = errors.New("at: unknown response code")
)
