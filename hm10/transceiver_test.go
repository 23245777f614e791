package hm10_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/hm10"
)

func newTransceiver() (*hm10.Transceiver, *fakeModule, *fakeClock) {
	clock := newFakeClock()
	mod := newFakeModule(clock)
	return hm10.NewTransceiver(mod, clock, slog.New(slog.DiscardHandler), 0), mod, clock
}

func TestTransceiverExecute(t *testing.T) {
	t.Run("matching reply is parsed after the quiet period", func(t *testing.T) {
		trx, mod, clock := newTransceiver()
		mod.On("AT+NAME?", reply{after: 10 * time.Millisecond, data: "OK+NAME:Bot1"})

		start := clock.Now()
		resp, err := trx.Execute(hm10.Command{Code: at.CmdName, Query: true, Expect: at.NameResponse})

		require.NoError(t, err)
		require.Equal(t, "OK+NAME:Bot1", resp)
		require.Equal(t, "Bot1", at.ParseValue(at.NameResponse, resp))
		require.Equal(t, []string{"AT+NAME?"}, mod.Writes())
		require.Equal(t, hm10.DefaultCommandTimeout, clock.Now().Sub(start))
	})

	t.Run("bare probe", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		mod.OK("AT", "OK")

		resp, err := trx.Execute(hm10.Command{Expect: at.OK})

		require.NoError(t, err)
		require.Equal(t, "OK", resp)
		require.Equal(t, []string{"AT"}, mod.Writes())
	})

	t.Run("timeout returns exactly the bytes that arrived", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		mod.On("AT+ADDR?", reply{after: 5 * time.Millisecond, data: "OK+AD"})

		resp, err := trx.Execute(hm10.Command{Code: at.CmdAddress, Query: true, Expect: at.AddressResponse})

		require.ErrorIs(t, err, hm10.ErrTimeout)
		require.Equal(t, "OK+AD", resp)
		require.Zero(t, mod.Available())
	})

	t.Run("timeout with no reply at all", func(t *testing.T) {
		trx, _, clock := newTransceiver()

		start := clock.Now()
		resp, err := trx.Execute(hm10.Command{Code: at.CmdStart, Expect: at.StartResponse, Timeout: time.Second})

		require.ErrorIs(t, err, hm10.ErrTimeout)
		require.Empty(t, resp)
		require.Greater(t, clock.Now().Sub(start), time.Second)
	})

	t.Run("empty expect accepts silence", func(t *testing.T) {
		trx, _, _ := newTransceiver()

		resp, err := trx.Execute(hm10.Command{Code: at.CmdVersion, Query: true})

		require.NoError(t, err)
		require.Empty(t, resp)
	})

	t.Run("empty expect accepts anything", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		mod.OK("AT+VERR?", "HMSoft V605")

		resp, err := trx.Execute(hm10.Command{Code: at.CmdVersion, Query: true})

		require.NoError(t, err)
		require.Equal(t, "HMSoft V605", resp)
	})

	// The stream is drained for the whole timeout even once the reply is
	// known to be wrong. Failing early would leave the tail of the reply to
	// be read by the next command.
	t.Run("mismatch keeps draining until quiet", func(t *testing.T) {
		trx, mod, clock := newTransceiver()
		mod.On("AT+ROLE?",
			reply{data: "ERROR+XYZ"},
			reply{after: 100 * time.Millisecond, data: "OK+LOST"},
		)

		start := clock.Now()
		resp, err := trx.Execute(hm10.Command{Code: at.CmdRole, Query: true, Expect: at.OKGet})

		require.ErrorIs(t, err, hm10.ErrResponseMismatch)
		require.Equal(t, "ERROR+XYZOK+LOST", resp)
		require.Zero(t, mod.Available())
		require.Equal(t, hm10.DefaultCommandTimeout, clock.Now().Sub(start))
	})

	t.Run("mismatch after the prefix length is not checked", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		mod.OK("AT+ROLE?", "OK+Get:XYZ")

		resp, err := trx.Execute(hm10.Command{Code: at.CmdRole, Query: true, Expect: at.OKGet})

		require.NoError(t, err)
		require.Equal(t, "XYZ", at.ParseValue(at.OKGet, resp))
	})

	t.Run("long replies are truncated but drained", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		long := strings.Repeat("x", hm10.ResponseBufferSize+8)
		mod.OK("AT+VERR?", long)

		resp, err := trx.Execute(hm10.Command{Code: at.CmdVersion, Query: true})

		require.NoError(t, err)
		require.Equal(t, long[:hm10.ResponseBufferSize], resp)
		require.Zero(t, mod.Available())
	})

	t.Run("too long command is rejected before any I/O", func(t *testing.T) {
		trx, mod, _ := newTransceiver()

		_, err := trx.Execute(hm10.Command{Code: at.CmdName, Param: strings.Repeat("n", 40), Expect: at.OKSet})

		require.ErrorIs(t, err, at.ErrCommandTooLong)
		require.Empty(t, mod.Writes())
	})

	t.Run("write error", func(t *testing.T) {
		trx, mod, _ := newTransceiver()
		mod.writeErr = errors.New("port gone")

		_, err := trx.Execute(hm10.Command{Expect: at.OK})

		require.ErrorContains(t, err, "port gone")
	})
}

func TestTransceiverWait(t *testing.T) {
	t.Run("notification arrives", func(t *testing.T) {
		trx, mod, clock := newTransceiver()
		mod.Deliver(3*time.Second, at.ConnectFailure)

		start := clock.Now()
		resp, err := trx.Wait(at.ConnectFailure, hm10.DefaultConnectingTimeout)

		require.NoError(t, err)
		require.Equal(t, at.ConnectFailure, resp)
		require.Equal(t, hm10.DefaultConnectingTimeout, clock.Now().Sub(start))
	})

	t.Run("nothing arrives", func(t *testing.T) {
		trx, _, _ := newTransceiver()

		_, err := trx.Wait(at.ConnectFailure, hm10.DefaultConnectingTimeout)

		require.ErrorIs(t, err, hm10.ErrTimeout)
	})
}
