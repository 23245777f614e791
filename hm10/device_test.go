package hm10_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/frame"
	"i4.energy/across/blelink/hm10"
)

func TestDeviceNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := hm10.New(context.Background(), hm10.Config{})
		if !errors.Is(err, hm10.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got %v", err)
		}
	})

	t.Run("dial error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialErr := errors.New("no such port")
		dialer := hm10.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		config := testConfig(ctrl, dialer)
		_, err := hm10.New(context.Background(), config)
		if !errors.Is(err, dialErr) {
			t.Errorf("expected dial error, got %v", err)
		}
	})

	t.Run("plain transport is pumped and closed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		transport := hm10.NewTestTransport()
		dialer := hm10.NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil)

		d, err := hm10.New(context.Background(), testConfig(ctrl, dialer))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Ready() {
			t.Error("device must not be ready before Begin")
		}

		if err := d.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		if err := d.Close(); !errors.Is(err, hm10.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed on second Close, got %v", err)
		}
	})
}

func testConfig(ctrl *gomock.Controller, dialer hm10.Dialer) hm10.Config {
	state := hm10.NewMockInputPin(ctrl)
	state.EXPECT().Read().Return(false).AnyTimes()
	reset := hm10.NewMockOutputPin(ctrl)
	reset.EXPECT().Set(gomock.Any()).Return(nil).AnyTimes()

	return hm10.Config{
		Dialer:      dialer,
		Role:        at.Central,
		PeerAddress: peer,
		Pins:        hm10.Pins{State: state, Reset: reset},
		Clock:       newFakeClock(),
	}
}

func TestDeviceWrite(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.mod.SetLink(true)

		require.ErrorIs(t, r.dev.WriteMessageText("Hello"), hm10.ErrNotReady)
		_, err := r.dev.Write([]byte("raw"))
		require.ErrorIs(t, err, hm10.ErrNotReady)
		require.Empty(t, r.mod.Writes())
	})

	t.Run("ready but disconnected", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)

		require.ErrorIs(t, r.dev.WriteEventText(1, "x"), hm10.ErrNotReady)
		require.Empty(t, r.mod.Writes())
	})

	t.Run("frames are written in one piece", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.connect(t)

		require.NoError(t, r.dev.WriteMessageText("Hello"))
		require.NoError(t, r.dev.WriteEvent(42, []byte{1, 2, 3}))
		n, err := r.dev.Write([]byte("raw"))
		require.NoError(t, err)
		require.Equal(t, 3, n)

		require.Equal(t, []string{
			"~MSG\x05\x00Hello",
			"~EVT\x2a\x00\x03\x00\x01\x02\x03",
			"raw",
		}, r.mod.Writes())
	})

	t.Run("encoding errors perform no I/O", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.connect(t)

		require.ErrorIs(t, r.dev.WriteMessage(make([]byte, frame.MaxPayload+1)), frame.ErrPayloadTooLarge)
		require.ErrorIs(t, r.dev.WriteMessageText("a~b"), frame.ErrReservedByte)
		require.Empty(t, r.mod.Writes())
	})

	t.Run("writes arm the activity timer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		activity := hm10.NewMockOutputPin(ctrl)
		activity.EXPECT().Set(true).Return(nil).Times(1)

		r := newRig(t, at.Central, withOutputPins(nil, activity))
		r.begin(t)
		r.connect(t)

		require.NoError(t, r.dev.WriteMessageText("one"))
		require.NoError(t, r.dev.WriteMessageText("two"))
		require.True(t, r.dev.Activity().Active())
	})
}

func TestDeviceTick(t *testing.T) {
	t.Run("frames are dispatched while connected", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.mod.SetLink(true)
		r.mod.Deliver(0, "~MSG\x05\x00Hello~EVT\x2a\x00\x03\x00abc")

		r.dev.Tick()

		require.Equal(t, []string{"Hello"}, r.messages)
		require.Len(t, r.events, 1)
		require.Equal(t, uint16(42), r.events[0].ID)
		require.Equal(t, "abc", string(r.events[0].Payload))
	})

	t.Run("bytes per tick are bounded", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.connect(t)
		payload := strings.Repeat("x", 24)
		r.mod.Deliver(0, "~MSG\x18\x00"+payload)

		r.dev.Tick()
		require.Empty(t, r.messages)
		require.Equal(t, 30-hm10.DefaultMaxBytesPerTick, r.mod.Available())

		r.dev.Tick()
		require.Equal(t, []string{payload}, r.messages)
	})

	t.Run("bytes wait while disconnected", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.mod.Deliver(0, "~MSG\x02\x00hi")

		r.dev.Tick()

		require.Empty(t, r.messages)
		require.Equal(t, 8, r.mod.Available())
	})

	t.Run("console relays one byte each way", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.connect(t)

		console := newFakeModule(r.clock)
		r.dev.SetConsole(console)
		require.True(t, r.dev.ConsoleEnabled())

		console.Deliver(0, "k")
		r.mod.Deliver(0, "ab")
		r.dev.Tick()

		require.Equal(t, []string{"a"}, console.Writes())
		require.Equal(t, []string{"k"}, r.mod.Writes())
		require.Equal(t, 1, r.mod.Available())

		r.dev.SetConsole(nil)
		require.False(t, r.dev.ConsoleEnabled())
	})

	t.Run("disabling the console closes its reader", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)
		r.connect(t)

		console := hm10.NewTestTransport()
		r.dev.SetConsole(console)
		console.SendData("k")
		r.dev.SetConsole(nil)

		_, err := console.Write([]byte("x"))
		require.ErrorIs(t, err, io.ErrClosedPipe)
		r.dev.Tick()
		require.Empty(t, r.mod.Writes())
	})

	t.Run("replacing the console closes the previous one", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)

		first := hm10.NewTestTransport()
		second := hm10.NewTestTransport()
		r.dev.SetConsole(first)
		r.dev.SetConsole(second)

		_, err := first.Write([]byte("x"))
		require.ErrorIs(t, err, io.ErrClosedPipe)
		_, err = second.Write([]byte("x"))
		require.NoError(t, err)
		require.True(t, r.dev.ConsoleEnabled())
	})

	t.Run("close stops the console reader", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)

		console := hm10.NewTestTransport()
		r.dev.SetConsole(console)
		require.NoError(t, r.dev.Close())

		_, err := console.Write([]byte("x"))
		require.ErrorIs(t, err, io.ErrClosedPipe)
	})

	t.Run("a stream console is left open", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.begin(t)

		console := newFakeModule(r.clock)
		r.dev.SetConsole(console)
		r.dev.SetConsole(nil)

		require.False(t, console.Closed())
	})
}
