package hm10_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/frame"
	"i4.energy/across/blelink/hm10"
)

const peer = "001122334455"

// fakeClock only moves when something sleeps on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type reply struct {
	after time.Duration
	data  string
}

type delivery struct {
	at   time.Time
	data string
}

// fakeModule is a scripted HM-10. Replies registered with On are scheduled
// on the fake clock when the matching command is written; the STATE pin
// level is modelled by link.
type fakeModule struct {
	clock *fakeClock

	mu        sync.Mutex
	rx        []byte
	pending   []delivery
	responses map[string][][]reply
	writes    []string
	writeErr  error
	closed    bool

	link   bool
	linkAt time.Time
	levels []bool
	sticky bool
	resets int
	onLink func()
}

func newFakeModule(clock *fakeClock) *fakeModule {
	return &fakeModule{clock: clock, responses: make(map[string][][]reply)}
}

// On queues one answer to the next write of cmd.
func (m *fakeModule) On(cmd string, replies ...reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = append(m.responses[cmd], replies)
}

// OK queues an immediate answer to cmd.
func (m *fakeModule) OK(cmd, data string) {
	m.On(cmd, reply{data: data})
}

// Deliver schedules unsolicited bytes.
func (m *fakeModule) Deliver(after time.Duration, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, delivery{at: m.clock.Now().Add(after), data: data})
}

func (m *fakeModule) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	cmd := string(p)
	m.writes = append(m.writes, cmd)
	if q := m.responses[cmd]; len(q) > 0 {
		m.responses[cmd] = q[1:]
		now := m.clock.Now()
		for _, r := range q[0] {
			m.pending = append(m.pending, delivery{at: now.Add(r.after), data: r.data})
		}
	}
	return len(p), nil
}

func (m *fakeModule) release() {
	now := m.clock.Now()
	keep := m.pending[:0]
	for _, d := range m.pending {
		if d.at.After(now) {
			keep = append(keep, d)
			continue
		}
		m.rx = append(m.rx, d.data...)
	}
	m.pending = keep
}

func (m *fakeModule) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	return len(m.rx)
}

func (m *fakeModule) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	if len(m.rx) == 0 {
		return 0, hm10.ErrNoData
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

func (m *fakeModule) Flush() error { return nil }

func (m *fakeModule) Read(p []byte) (int, error) { return 0, io.EOF }

func (m *fakeModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModule) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Writes returns the commands and frames written since the last call.
func (m *fakeModule) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.writes
	m.writes = nil
	return w
}

func (m *fakeModule) SetLink(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = up
	m.linkAt = time.Time{}
}

// LinkAfter brings the link up after d of fake time.
func (m *fakeModule) LinkAfter(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkAt = m.clock.Now().Add(d)
}

// Levels makes the next STATE pin reads return levels, in order.
func (m *fakeModule) Levels(levels ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = append(m.levels, levels...)
}

// OnLink runs fn once, on the next STATE pin read.
func (m *fakeModule) OnLink(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLink = fn
}

func (m *fakeModule) Link() bool {
	m.mu.Lock()
	hook := m.onLink
	m.onLink = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.levels) > 0 {
		v := m.levels[0]
		m.levels = m.levels[1:]
		return v
	}
	if !m.linkAt.IsZero() && !m.clock.Now().Before(m.linkAt) {
		m.link = true
		m.linkAt = time.Time{}
	}
	return m.link
}

// Sticky keeps the link up across resets.
func (m *fakeModule) Sticky(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky = v
}

func (m *fakeModule) pulseReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	if !m.sticky {
		m.link = false
		m.linkAt = time.Time{}
	}
}

func (m *fakeModule) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

type rigOption func(*hm10.ConfigBuilder, *rig)

// rig is a Device wired to a fakeModule, a fake clock and mocked pins.
type rig struct {
	ctrl   *gomock.Controller
	clock  *fakeClock
	mod    *fakeModule
	pins   hm10.Pins
	toggle bool

	connects    []bool
	disconnects int
	messages    []string
	events      []frame.Frame

	dev *hm10.Device
}

func newRig(t *testing.T, role at.Role, opts ...rigOption) *rig {
	t.Helper()

	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	r := &rig{ctrl: ctrl, clock: clock, mod: newFakeModule(clock), toggle: true}

	state := hm10.NewMockInputPin(ctrl)
	state.EXPECT().Read().DoAndReturn(r.mod.Link).AnyTimes()

	reset := hm10.NewMockOutputPin(ctrl)
	reset.EXPECT().Set(gomock.Any()).DoAndReturn(func(high bool) error {
		if !high {
			r.mod.pulseReset()
		}
		return nil
	}).AnyTimes()

	dialer := hm10.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).Return(r.mod, nil)

	b := hm10.NewConfigBuilder().
		WithDialer(dialer).
		WithRole(role).
		WithPeerAddress(peer).
		WithClock(clock).
		WithLogger(slog.New(slog.DiscardHandler)).
		WithConnectedHandler(func(reconnected bool) {
			r.connects = append(r.connects, reconnected)
		}).
		WithDisconnectedHandler(func() {
			r.disconnects++
		}).
		WithFrameHandlers(frame.Handlers{
			EventText: func(id uint16, text string) {
				r.events = append(r.events, frame.Frame{Kind: frame.KindEvent, ID: id, Payload: []byte(text)})
			},
			MessageText: func(text string) {
				r.messages = append(r.messages, text)
			},
		})

	r.pins = hm10.Pins{State: state, Reset: reset}
	for _, opt := range opts {
		opt(b, r)
	}
	b.WithPins(r.pins)

	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	dev, err := hm10.New(t.Context(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	r.dev = dev
	return r
}

// withToggle adds a toggle button controlled through rig.toggle.
func withToggle() rigOption {
	return func(_ *hm10.ConfigBuilder, r *rig) {
		pin := hm10.NewMockInputPin(r.ctrl)
		pin.EXPECT().Read().DoAndReturn(func() bool { return r.toggle }).AnyTimes()
		r.pins.Toggle = pin
	}
}

func withAutoReconnect(timeout time.Duration) rigOption {
	return func(b *hm10.ConfigBuilder, _ *rig) {
		b.WithAutoReconnect(timeout)
	}
}

func withOutputPins(connected, activity hm10.OutputPin) rigOption {
	return func(_ *hm10.ConfigBuilder, r *rig) {
		r.pins.Connected = connected
		r.pins.Activity = activity
	}
}

// begin runs Begin(false) for a Central that stored the configured peer.
func (r *rig) begin(t *testing.T) {
	t.Helper()
	if r.dev.ConfiguredRole() == at.Central {
		r.mod.OK("AT", "OK")
		r.mod.OK("AT+RADD?", "OK+RADD:"+peer)
	}
	if err := r.dev.Begin(false); err != nil {
		t.Fatalf("unexpected error from Begin(): %v", err)
	}
	r.mod.Writes()
}

// connect brings the link up and lets the device notice.
func (r *rig) connect(t *testing.T) {
	t.Helper()
	r.mod.SetLink(true)
	r.dev.Tick()
	if r.dev.State() != hm10.StateConnected {
		t.Fatalf("state = %v, want connected", r.dev.State())
	}
}
