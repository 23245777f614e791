package hm10

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"i4.energy/across/blelink/at"
)

// ResponseBufferSize is the number of reply bytes kept per command. Longer
// replies are still drained from the stream but truncated.
const ResponseBufferSize = 32

// pollInterval is the sleep between availability checks while waiting for
// the expected number of reply bytes.
const pollInterval = time.Millisecond

// Command is one AT exchange.
type Command struct {
	// Code is the command code without "AT+". Empty sends the bare probe.
	Code string
	// Query appends "?" to read the current value.
	Query bool
	// Param is appended to the code verbatim.
	Param string
	// Expect is the reply prefix. Empty accepts any reply, including none.
	Expect string
	// Timeout bounds the exchange. Zero uses the transceiver default.
	Timeout time.Duration
}

// Transceiver runs AT exchanges over a Stream. It has no notion of the link
// state or of frames, and is not safe for concurrent use.
type Transceiver struct {
	stream  Stream
	clock   Clock
	logger  *slog.Logger
	timeout time.Duration

	resp [ResponseBufferSize]byte
}

// NewTransceiver creates a Transceiver with the given default timeout.
func NewTransceiver(stream Stream, clock Clock, logger *slog.Logger, timeout time.Duration) *Transceiver {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	return &Transceiver{stream: stream, clock: clock, logger: logger, timeout: timeout}
}

// Execute sends cmd and reads the reply.
//
// Once the expected number of bytes has arrived, Execute keeps reading until
// the stream stays quiet for the rest of the timeout, even after a mismatch,
// so that a failed reply never leaks into the next exchange. The returned
// text is whatever was read, also on error.
func (t *Transceiver) Execute(cmd Command) (string, error) {
	wire, err := at.Compose(cmd.Code, cmd.Query, cmd.Param)
	if err != nil {
		return "", err
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = t.timeout
	}

	start := t.clock.Now()
	if _, err := io.WriteString(t.stream, wire); err != nil {
		return "", fmt.Errorf("write command %q: %w", wire, err)
	}
	if err := t.stream.Flush(); err != nil {
		return "", fmt.Errorf("flush command %q: %w", wire, err)
	}

	resp, err := t.read(cmd.Expect, start.Add(timeout))
	t.logger.Debug("AT exchange",
		"command", wire,
		"replies", at.SplitReplies(resp),
		"elapsed", t.clock.Now().Sub(start),
		"error", err)
	if err != nil {
		return resp, fmt.Errorf("%s: %w", wire, err)
	}
	return resp, nil
}

// Wait reads an unsolicited reply without sending anything, with the same
// matching rules as Execute.
func (t *Transceiver) Wait(expect string, timeout time.Duration) (string, error) {
	start := t.clock.Now()
	resp, err := t.read(expect, start.Add(timeout))
	t.logger.Debug("AT wait",
		"expect", expect,
		"replies", at.SplitReplies(resp),
		"elapsed", t.clock.Now().Sub(start),
		"error", err)
	return resp, err
}

func (t *Transceiver) read(expect string, deadline time.Time) (string, error) {
	var (
		n        int
		mismatch bool
	)
	consume := func(count int) error {
		for range count {
			b, err := t.stream.ReadByte()
			if err != nil {
				return err
			}
			if n < len(t.resp) {
				t.resp[n] = b
			}
			if n < len(expect) && b != expect[n] {
				mismatch = true
			}
			n++
		}
		return nil
	}
	text := func() string {
		return string(t.resp[:min(n, len(t.resp))])
	}

	avail := t.stream.Available()
	for avail < len(expect) {
		if t.clock.Now().After(deadline) {
			if err := consume(avail); err != nil {
				return text(), fmt.Errorf("read response: %w", err)
			}
			return text(), ErrTimeout
		}
		t.clock.Sleep(pollInterval)
		avail = t.stream.Available()
	}

	if avail == 0 {
		if now := t.clock.Now(); now.Before(deadline) {
			t.clock.Sleep(deadline.Sub(now))
			avail = t.stream.Available()
		}
	}

	for avail > 0 {
		if err := consume(avail); err != nil {
			return text(), fmt.Errorf("read response: %w", err)
		}
		if now := t.clock.Now(); now.Before(deadline) {
			t.clock.Sleep(deadline.Sub(now))
		}
		avail = t.stream.Available()
	}

	// TODO: fail as soon as a byte mismatches once callers no longer rely on
	// the stream being drained for the full timeout.
	if mismatch || n < len(expect) {
		return text(), ErrResponseMismatch
	}
	return text(), nil
}
