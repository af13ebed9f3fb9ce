package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := core.PeerRecord{
		ID:            "a",
		Name:          "alpha",
		Capabilities:  []string{"math", "search"},
		Endpoint:      "http://localhost:9001",
		Status:        core.PeerStatusActive,
		RegisteredAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastHeartbeat: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC),
		LatencyMs:     42.5,
		SuccessRate:   0.9,
	}
	require.NoError(t, s.Put(rec))

	got, found, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Capabilities, got.Capabilities)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.LatencyMs, got.LatencyMs)
	assert.Equal(t, rec.SuccessRate, got.SuccessRate)

	_, found, err = s.Get("ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutUpsertsExisting(t *testing.T) {
	s := openTestStore(t)

	rec := core.PeerRecord{ID: "a", Status: core.PeerStatusActive, RegisteredAt: time.Now().UTC()}
	require.NoError(t, s.Put(rec))

	rec.Status = core.PeerStatusUnhealthy
	require.NoError(t, s.Put(rec))

	got, _, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, core.PeerStatusUnhealthy, got.Status)
}

func TestDeleteAndListOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(core.PeerRecord{ID: "first", RegisteredAt: base}))
	require.NoError(t, s.Put(core.PeerRecord{ID: "second", RegisteredAt: base.Add(time.Second)}))
	require.NoError(t, s.Put(core.PeerRecord{ID: "third", RegisteredAt: base.Add(2 * time.Second)}))

	recs, err := s.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "first", recs[0].ID)
	assert.Equal(t, "third", recs[2].ID)

	ok, err := s.Delete("second")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete("second")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err = s.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestDirectoryOnSqliteStore(t *testing.T) {
	s := openTestStore(t)
	d := directory.New(func(o *directory.Options) { o.Store = s })

	require.True(t, d.Register(core.PeerRecord{ID: "a", Capabilities: []string{"math"}}))
	require.True(t, d.UpdateHeartbeat("a"))

	found := d.DiscoverByCapability("math", 1)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)
}
