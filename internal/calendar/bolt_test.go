package calendar

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "cal.db"))
	require.NoError(t, err)
	defer store.Close()

	sp := New()
	require.NoError(t, sp.Add("2026-03-10", "08:00", 18))
	require.NoError(t, sp.Add("2026-03-11", "08:00", 19))
	require.NoError(t, store.Save("F1", Setpoint, sp))

	got, err := store.Load("F1", Setpoint)
	require.NoError(t, err)
	assert.Equal(t, sp.Dates(), got.Dates())
	assert.Equal(t, sp.Day("2026-03-11"), got.Day("2026-03-11"))

	other, err := store.Load("F1", Dosing)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Len())
}

func TestBoltStoreSaveReplaces(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "cal.db"))
	require.NoError(t, err)
	defer store.Close()

	first := New()
	require.NoError(t, first.Add("2026-03-10", "08:00", 18))
	require.NoError(t, store.Save("F2", Dosing, first))

	second := New()
	require.NoError(t, second.Add("2026-04-01", "10:00", 30))
	require.NoError(t, store.Save("F2", Dosing, second))

	got, err := store.Load("F2", Dosing)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-04-01"}, got.Dates())
}
