package hm10_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/hm10"
)

func TestProvision(t *testing.T) {
	t.Run("central", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.mod.OK("AT+AFTC200", "OK+Set:200")
		r.mod.OK("AT+BAUD?", "OK+Get:0")
		r.mod.OK("AT+ROLE1", "OK+Set:1")
		r.mod.OK("AT+IMME1", "OK+Set:1")
		r.mod.OK("AT+ALLO0", "OK+Set:0")
		r.mod.OK("AT+TYPE0", "OK+Set:0")

		require.NoError(t, r.dev.Provision(at.Baud9600))
		require.Equal(t, []string{
			"AT+AFTC200",
			"AT+BAUD?",
			"AT+ROLE1",
			"AT+IMME1",
			"AT+ALLO0",
			"AT+TYPE0",
		}, r.mod.Writes())
		require.Equal(t, 1, r.mod.Resets())
	})

	t.Run("peripheral changes the baud rate", func(t *testing.T) {
		r := newRig(t, at.Peripheral)
		r.mod.OK("AT+AFTC200", "OK+Set:200")
		r.mod.OK("AT+BAUD?", "OK+Get:4")
		r.mod.OK("AT+BAUD0", "OK+Set:0")
		r.mod.OK("AT+ROLE0", "OK+Set:0")
		r.mod.OK("AT+IMME0", "OK+Set:0")
		r.mod.OK("AT+ALLO1", "OK+Set:1")
		r.mod.OK("AT+AD1"+peer, "OK+AD1"+peer)
		r.mod.OK("AT+TYPE3", "OK+Set:3")

		require.NoError(t, r.dev.Provision(at.Baud9600))
		require.Equal(t, []string{
			"AT+AFTC200",
			"AT+BAUD?",
			"AT+BAUD0",
			"AT+ROLE0",
			"AT+IMME0",
			"AT+ALLO1",
			"AT+AD1" + peer,
			"AT+TYPE3",
		}, r.mod.Writes())
		require.Equal(t, 1, r.mod.Resets())
	})

	t.Run("failed steps do not stop the others", func(t *testing.T) {
		r := newRig(t, at.Peripheral)
		r.mod.OK("AT+BAUD?", "OK+Get:0")
		r.mod.OK("AT+ROLE0", "OK+Set:0")
		r.mod.OK("AT+IMME0", "OK+Set:0")
		r.mod.OK("AT+AD1"+peer, "OK+AD1"+peer)

		err := r.dev.Provision(at.Baud9600)

		require.ErrorIs(t, err, hm10.ErrTimeout)
		require.ErrorContains(t, err, "enable whitelist")
		require.ErrorContains(t, err, "set bond mode")
		require.Len(t, r.mod.Writes(), 7)
		require.Equal(t, 1, r.mod.Resets())
	})

	t.Run("unreadable baud rate aborts", func(t *testing.T) {
		r := newRig(t, at.Central)
		r.mod.OK("AT+AFTC200", "OK+Set:200")

		err := r.dev.Provision(at.Baud9600)

		require.ErrorIs(t, err, hm10.ErrTimeout)
		require.Equal(t, []string{"AT+AFTC200", "AT+BAUD?"}, r.mod.Writes())
		require.Zero(t, r.mod.Resets())
	})
}
