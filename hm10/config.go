package hm10

import (
	"encoding/hex"
	"log/slog"
	"time"

	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/frame"
)

// Timing defaults, in the module's terms.
const (
	DefaultCommandTimeout       = 250 * time.Millisecond
	DefaultConnectTimeout       = 1000 * time.Millisecond
	DefaultConnectingTimeout    = 10250 * time.Millisecond
	DefaultAutoReconnectTimeout = 30 * time.Second
	DefaultConfirmSamples       = 3
	DefaultConfirmDelay         = 500 * time.Millisecond
	DefaultToggleDebounce       = 500 * time.Millisecond
	DefaultMaxBytesPerTick      = 25
	DefaultTickInterval         = 10 * time.Millisecond
)

// Config holds everything a Device needs. Build one with NewConfigBuilder or
// fill it directly; zero durations and counts take the defaults above.
type Config struct {
	Dialer      Dialer
	Role        at.Role
	PeerAddress string
	Pins        Pins
	Clock       Clock
	Logger      *slog.Logger

	AutoReconnect        bool
	AutoReconnectTimeout time.Duration

	CommandTimeout    time.Duration
	ConnectTimeout    time.Duration
	ConnectingTimeout time.Duration
	ConfirmSamples    int
	ConfirmDelay      time.Duration
	ToggleDebounce    time.Duration
	MaxBytesPerTick   int
	TickInterval      time.Duration

	Activity ActivityConfig

	// OnConnected is called when the link comes up. reconnected is true when
	// the previous link had been dropped manually.
	OnConnected func(reconnected bool)
	// OnDisconnected is called when the link goes down.
	OnDisconnected func()
	// Handlers receives frames while connected.
	Handlers frame.Handlers
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if err := c.Pins.validate(); err != nil {
		return err
	}
	if !validAddress(c.PeerAddress) {
		return ErrNoPeerAddress
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.AutoReconnectTimeout == 0 {
		c.AutoReconnectTimeout = DefaultAutoReconnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ConnectingTimeout == 0 {
		c.ConnectingTimeout = DefaultConnectingTimeout
	}
	if c.ConfirmSamples == 0 {
		c.ConfirmSamples = DefaultConfirmSamples
	}
	if c.ConfirmDelay == 0 {
		c.ConfirmDelay = DefaultConfirmDelay
	}
	if c.ToggleDebounce == 0 {
		c.ToggleDebounce = DefaultToggleDebounce
	}
	if c.MaxBytesPerTick == 0 {
		c.MaxBytesPerTick = DefaultMaxBytesPerTick
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	c.Activity.setDefaults()
}

func validAddress(s string) bool {
	if len(s) != at.AddressLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ConfigBuilder builds a validated Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder starts a Config with defaults applied at Build time.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithRole(r at.Role) *ConfigBuilder {
	b.config.Role = r
	return b
}

func (b *ConfigBuilder) WithPeerAddress(addr string) *ConfigBuilder {
	b.config.PeerAddress = addr
	return b
}

func (b *ConfigBuilder) WithPins(p Pins) *ConfigBuilder {
	b.config.Pins = p
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.Clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// WithAutoReconnect enables reconnect attempts every timeout while a Central
// is disconnected. Zero keeps the default interval.
func (b *ConfigBuilder) WithAutoReconnect(timeout time.Duration) *ConfigBuilder {
	b.config.AutoReconnect = true
	b.config.AutoReconnectTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxBytesPerTick(n int) *ConfigBuilder {
	b.config.MaxBytesPerTick = n
	return b
}

func (b *ConfigBuilder) WithTickInterval(d time.Duration) *ConfigBuilder {
	b.config.TickInterval = d
	return b
}

func (b *ConfigBuilder) WithConnectedHandler(fn func(reconnected bool)) *ConfigBuilder {
	b.config.OnConnected = fn
	return b
}

func (b *ConfigBuilder) WithDisconnectedHandler(fn func()) *ConfigBuilder {
	b.config.OnDisconnected = fn
	return b
}

func (b *ConfigBuilder) WithFrameHandlers(h frame.Handlers) *ConfigBuilder {
	b.config.Handlers = h
	return b
}

// Build validates the configuration and applies defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
