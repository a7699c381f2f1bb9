package analytics

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackAndCount(t *testing.T) {
	db, err := OpenDB(MemoryDSN)
	require.NoError(t, err)
	defer db.Close()

	a := NewAnalytics(db)
	a.Track(EvtGalaxyCreated, "g1", 0, "")
	a.Track(EvtSessionJoined, "g1", 42, "")
	a.Track(EvtHyperspace, "g1", 42, "g2")
	a.Track(EvtSessionLeft, "g2", 42, "io")
	a.Stop()

	counts, err := a.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		EvtGalaxyCreated: 1,
		EvtSessionJoined: 1,
		EvtHyperspace:    1,
		EvtSessionLeft:   1,
	}, counts)

	events, err := a.GalaxyEvents("g1")
	require.NoError(t, err)
	assert.Equal(t, []string{EvtGalaxyCreated, EvtSessionJoined, EvtHyperspace}, events)
}

func TestTrackAfterStop(t *testing.T) {
	db, err := OpenDB(MemoryDSN)
	require.NoError(t, err)
	defer db.Close()

	a := NewAnalytics(db)
	a.Stop()
	a.Stop()
	a.Track(EvtCraftDestroyed, "g1", 7, "")

	counts, err := a.Counts()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestNilAnalytics(t *testing.T) {
	var a *Analytics
	assert.NotPanics(t, func() { a.Track(EvtGalaxyCreated, "g", 0, "") })
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	a := NewAnalytics(db)
	a.Track(EvtGalaxyDestroyed, "g9", 0, "shutdown")
	a.Stop()
	require.NoError(t, db.Close())

	db, err = OpenDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened := NewAnalytics(db)
	defer reopened.Stop()
	counts, err := reopened.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[EvtGalaxyDestroyed])
}
