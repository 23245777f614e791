// Package frame implements the Event and Message frames multiplexed on an
// established HM-10 link.
//
// Wire format, 16-bit fields little-endian:
//
//	Event:   "~EVT" id-lo id-hi len-lo len-hi payload[len]
//	Message: "~MSG" len-lo len-hi payload[len]
//
// with 1 <= len <= MaxPayload. The start byte '~' always begins a new frame
// on the receiving side, so it must not appear anywhere else in a frame.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// StartByte opens every frame.
	StartByte byte = '~'
	// EventPrefix opens an Event frame.
	EventPrefix = "~EVT"
	// MessagePrefix opens a Message frame.
	MessagePrefix = "~MSG"
	// PrefixLen is the length shared by both prefixes.
	PrefixLen = 4
	// MaxPayload is the largest payload a frame may carry.
	MaxPayload = 256
)

var (
	// ErrPayloadTooLarge is returned by the encoder for payloads over
	// MaxPayload bytes.
	ErrPayloadTooLarge = errors.New("frame: payload too large")

	// ErrReservedByte is returned by the encoder when the start byte would
	// appear inside the frame header or payload. The receiver would restart
	// prefix detection there and lose the frame.
	ErrReservedByte = errors.New("frame: start byte inside frame")
)

// Kind discriminates Event and Message frames.
type Kind int

const (
	KindMessage Kind = iota
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindEvent:
		return "event"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) prefix() string {
	if k == KindEvent {
		return EventPrefix
	}
	return MessagePrefix
}

// headerLen is the number of header bytes following the prefix.
func (k Kind) headerLen() int {
	if k == KindEvent {
		return 4
	}
	return 2
}

// Frame is one Event or Message. ID is only meaningful for events.
type Frame struct {
	Kind    Kind
	ID      uint16
	Payload []byte
}

// AppendEvent appends the encoding of an Event frame to dst.
func AppendEvent(dst []byte, id uint16, payload []byte) ([]byte, error) {
	return Frame{Kind: KindEvent, ID: id, Payload: payload}.Append(dst)
}

// AppendMessage appends the encoding of a Message frame to dst.
func AppendMessage(dst []byte, payload []byte) ([]byte, error) {
	return Frame{Kind: KindMessage, Payload: payload}.Append(dst)
}

// Append appends the encoding of f to dst. On error dst is returned unchanged.
func (f Frame) Append(dst []byte) ([]byte, error) {
	n := len(f.Payload)
	if n > MaxPayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}

	var head [4]byte
	h := head[:0]
	if f.Kind == KindEvent {
		h = append(h, byte(f.ID), byte(f.ID>>8))
	}
	h = append(h, byte(n), byte(n>>8))

	if bytes.IndexByte(h, StartByte) >= 0 || bytes.IndexByte(f.Payload, StartByte) >= 0 {
		return dst, ErrReservedByte
	}

	dst = append(dst, f.Kind.prefix()...)
	dst = append(dst, h...)
	return append(dst, f.Payload...), nil
}

// WriteTo writes the encoding of f to w in a single Write call.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Append(make([]byte, 0, PrefixLen+f.Kind.headerLen()+len(f.Payload)))
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}
