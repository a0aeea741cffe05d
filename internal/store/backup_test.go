package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowBackup = `timestamp,channel_id,flow_sccm,current_ma,voltage,status
2026-03-09 23:59:59,F1,1.0000,4.3200,0.6394,OK
2026-03-10 09:00:00,F1,10.0000,7.2000,1.0656,OK
2026/03/10 09:00:01,F2,12.0000,7.8400,1.1642,OK
2026-03-10 09:00:00,F1,11.0000,7.5200,1.1130,OK
not a time,F1,5,5,5,OK
2026-03-10 09:00:02,F1,abc,7.2000,1.0656,OK
2026-03-10 09:00:03,F1
2026-03-10 09:00:04,F1,13.0000,8.1600,1.2077,OK
`

const thermalBackup = `timestamp,channel_id,temperature,setpoint,band,cold_on,hot_on,dosing_active,pump_freq
2026-03-10 09:00:00,F1,20.4,20.00,0.50,0,0,0,1000.0
2026-03-10 09:00:01,F1,20.5,20.00,0.50,1,0,1,1000.0
2026-03-10 09:00:01,F2,18.0,20.00,0.50,0,1,0,800.0
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReadFlowBackup(t *testing.T) {
	path := writeFile(t, t.TempDir(), "co2.csv", flowBackup)
	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)

	recs, err := ReadFlowBackup(path, since, "F1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 11.0, recs[0].Flow, "duplicate timestamp keeps the last row")
	assert.Equal(t, 13.0, recs[1].Flow)

	all, err := ReadFlowBackup(path, since, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadThermalBackup(t *testing.T) {
	path := writeFile(t, t.TempDir(), "temp.csv", thermalBackup)

	recs, err := ReadThermalBackup(path, time.Time{}, "f1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[1].Cold)
	assert.True(t, recs[1].Dosing)
	assert.False(t, recs[1].Hot)
	assert.Equal(t, 20.5, recs[1].Temperature)
}

func TestReadBackupMissingFile(t *testing.T) {
	recs, err := ReadFlowBackup(filepath.Join(t.TempDir(), "none.csv"), time.Time{}, "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLoaderPostsResults(t *testing.T) {
	dir := t.TempDir()
	tp := writeFile(t, dir, "temp.csv", thermalBackup)
	fp := writeFile(t, dir, "co2.csv", flowBackup)

	inbox := make(chan LoadResult, 4)
	l := NewLoader(tp, fp, inbox)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	first, err := l.Request("F1", time.Time{})
	require.NoError(t, err)
	second, err := l.Request("F1", time.Time{})
	require.NoError(t, err)
	require.Greater(t, second, first)

	var results []LoadResult
	for len(results) < 2 {
		select {
		case r := <-inbox:
			results = append(results, r)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for loader")
		}
	}

	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Thermal, 2)
		assert.Len(t, r.Flow, 3)
		assert.Equal(t, r.Query.ID == second, l.Current(r), "only the newest request is current")
	}
}

func TestLoaderBusy(t *testing.T) {
	l := NewLoader("", "", make(chan LoadResult))
	var err error
	for i := 0; i < 20 && err == nil; i++ {
		_, err = l.Request("F1", time.Time{})
	}
	assert.ErrorIs(t, err, ErrLoaderBusy)
}

func TestLoaderBusyKeepsQueuedRequestCurrent(t *testing.T) {
	l := NewLoader("", "", make(chan LoadResult))
	inFlight, err := l.Request("F1", time.Time{})
	require.NoError(t, err)
	for {
		if _, err = l.Request("F2", time.Time{}); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrLoaderBusy)

	_, err = l.Request("F1", time.Time{})
	require.ErrorIs(t, err, ErrLoaderBusy)
	assert.True(t, l.Current(LoadResult{Query: Query{ID: inFlight, Channel: "F1"}}),
		"a rejected request must not make the queued one stale")
}
