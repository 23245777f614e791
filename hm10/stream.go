package hm10

import (
	"errors"
	"io"
	"sync"
)

// Stream is the byte stream view the driver works with. Unlike a plain
// io.Reader it can report how many received bytes are waiting, so the command
// engine and the tick function can poll without blocking.
type Stream interface {
	io.Writer
	// Available returns the number of bytes that can be read without blocking.
	Available() int
	// ReadByte returns the next received byte. It must only be called when
	// Available reports a non-zero count.
	ReadByte() (byte, error)
	// Flush blocks until written bytes have left the host.
	Flush() error
}

// ErrNoData is returned by ReadByte when nothing has been received.
var ErrNoData = errors.New("hm10: no data available")

// receiveBufferSize bounds the bytes held for the tick loop. Older bytes are
// dropped when the loop falls this far behind.
const receiveBufferSize = 4096

// PortStream adapts a Transport to Stream. A pump goroutine reads from the
// transport into a bounded buffer until the transport fails or is closed.
type PortStream struct {
	transport Transport

	mu      sync.Mutex
	buf     []byte
	dropped int
	err     error
	done    chan struct{}
}

// NewPortStream starts pumping t.
func NewPortStream(t Transport) *PortStream {
	s := &PortStream{
		transport: t,
		buf:       make([]byte, 0, receiveBufferSize),
		done:      make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *PortStream) pump() {
	defer close(s.done)

	chunk := make([]byte, 256)
	for {
		n, err := s.transport.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			if over := len(s.buf) - receiveBufferSize; over > 0 {
				s.dropped += over
				s.buf = append(s.buf[:0], s.buf[over:]...)
			}
		}
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Available implements Stream.
func (s *PortStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// ReadByte implements Stream. Once the buffer is empty and the pump has
// stopped, the pump's error is returned.
func (s *PortStream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrNoData
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

// Write implements Stream.
func (s *PortStream) Write(p []byte) (int, error) {
	return s.transport.Write(p)
}

// Flush implements Stream. Serial ports from go.bug.st/serial support Drain;
// other transports are unbuffered and Flush is a no-op.
func (s *PortStream) Flush() error {
	if d, ok := s.transport.(interface{ Drain() error }); ok {
		return d.Drain()
	}
	return nil
}

// Err returns the error that stopped the pump, if any.
func (s *PortStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns how many received bytes were discarded on overflow.
func (s *PortStream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close closes the transport and waits for the pump to stop.
func (s *PortStream) Close() error {
	err := s.transport.Close()
	<-s.done
	return err
}
