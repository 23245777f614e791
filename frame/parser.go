package frame

// Handlers receives completed frames. Every slot is optional and the slots
// are invoked independently, raw form first. Payload slices alias the
// parser's buffer and are only valid for the duration of the call.
type Handlers struct {
	Event       func(id uint16, payload []byte)
	EventText   func(id uint16, text string)
	Message     func(payload []byte)
	MessageText func(text string)
}

// State is the parser position within a frame.
type State int

const (
	// StateIdle waits for a start byte.
	StateIdle State = iota
	// StatePrefix is matching the rest of "~EVT" or "~MSG".
	StatePrefix
	// StateHeader is reading the id and length fields.
	StateHeader
	// StatePayload is copying payload bytes.
	StatePayload
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrefix:
		return "prefix"
	case StateHeader:
		return "header"
	case StatePayload:
		return "payload"
	}
	return "unknown"
}

// Parser recognises frames in a byte stream fed one byte at a time. Bytes
// outside frames are ignored. A zero length header silently drops the frame.
//
// The zero value is ready to use. A Parser is not safe for concurrent use.
type Parser struct {
	Handlers Handlers

	state  State
	kind   Kind
	locked bool
	cursor int
	id     uint16
	length int

	// One spare byte keeps a NUL after the payload.
	content [MaxPayload + 1]byte
}

// NewParser creates a parser dispatching to h.
func NewParser(h Handlers) *Parser {
	return &Parser{Handlers: h}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = StateIdle
	p.kind = KindMessage
	p.locked = false
	p.cursor = 0
	p.id = 0
	p.length = 0
}

// Write feeds every byte of b to the parser. It never fails.
func (p *Parser) Write(b []byte) (int, error) {
	for _, c := range b {
		p.Feed(c)
	}
	return len(b), nil
}

// Feed consumes one byte and reports whether it completed a frame.
func (p *Parser) Feed(b byte) bool {
	if b == StartByte {
		p.Reset()
		p.state = StatePrefix
		p.cursor = 1
		return false
	}

	switch p.state {
	case StatePrefix:
		p.matchPrefix(b)
	case StateHeader:
		p.readHeader(b)
	case StatePayload:
		return p.readPayload(b)
	}
	return false
}

func (p *Parser) matchPrefix(b byte) {
	msg := b == MessagePrefix[p.cursor]
	evt := b == EventPrefix[p.cursor]

	var ok bool
	switch {
	case p.locked && p.kind == KindMessage:
		ok = msg
	case p.locked:
		ok = evt
	case msg && evt:
		ok = true
	case msg:
		p.kind, p.locked, ok = KindMessage, true, true
	case evt:
		p.kind, p.locked, ok = KindEvent, true, true
	}
	if !ok {
		p.Reset()
		return
	}

	p.cursor++
	if p.cursor == PrefixLen {
		p.state = StateHeader
		p.cursor = 0
	}
}

func (p *Parser) readHeader(b byte) {
	pos := p.cursor
	if p.kind == KindMessage {
		// Messages have no id; align with the event layout.
		pos += 2
	}

	switch pos {
	case 0:
		p.id = uint16(b)
	case 1:
		p.id |= uint16(b) << 8
	case 2:
		p.length = int(b)
	case 3:
		p.length |= int(b) << 8
	}
	p.cursor++

	if pos < 3 {
		return
	}
	if p.length < 1 || p.length > MaxPayload {
		p.Reset()
		return
	}
	p.state = StatePayload
	p.cursor = 0
}

func (p *Parser) readPayload(b byte) bool {
	if p.cursor >= p.length {
		p.Reset()
		return false
	}

	p.content[p.cursor] = b
	p.cursor++
	if p.cursor < p.length {
		return false
	}

	p.content[p.length] = 0
	p.dispatch(p.content[:p.length:p.length])
	p.Reset()
	return true
}

func (p *Parser) dispatch(payload []byte) {
	h := p.Handlers
	if p.kind == KindEvent {
		if h.Event != nil {
			h.Event(p.id, payload)
		}
		if h.EventText != nil {
			h.EventText(p.id, string(payload))
		}
		return
	}

	if h.Message != nil {
		h.Message(payload)
	}
	if h.MessageText != nil {
		h.MessageText(string(payload))
	}
}
