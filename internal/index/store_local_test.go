package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huduma-ai/civicqa/internal/model"
)

func TestLocalStoreLoadAbsent(t *testing.T) {
	store, err := NewStore("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewStore("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)

	snap := &Snapshot{
		Version:  42,
		BuiltAt:  time.Now().UTC().Truncate(time.Second),
		DocCount: 1,
		Entries: []Entry{{
			ChunkID:  "d1#0000",
			DocID:    "d1",
			Title:    "Garbage schedule",
			Source:   "garbage.txt",
			Audience: model.AudiencePublic,
			Text:     "Garbage collection is every Monday.",
			Dense:    []float32{0.6, 0.8},
			Sparse:   map[string]float64{"garbage": 0.5, "monday": 0.5},
		}},
		DocFreq: map[string]int{"garbage": 1, "monday": 1},
	}
	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, snap.Version, loaded.Version)
	require.Equal(t, snap.DocCount, loaded.DocCount)
	require.Equal(t, snap.Entries, loaded.Entries)
	require.Equal(t, snap.DocFreq, loaded.DocFreq)
}

func TestLocalStoreSaveOverwrites(t *testing.T) {
	store, err := NewStore("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), &Snapshot{Version: 1, DocFreq: map[string]int{}}))
	require.NoError(t, store.Save(context.Background(), &Snapshot{Version: 2, DocFreq: map[string]int{}}))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.Version)
}

func TestLocalStoreRequiresDir(t *testing.T) {
	_, err := NewStore("local", map[string]interface{}{})
	require.Error(t, err)
}

func TestNewStoreUnknownType(t *testing.T) {
	_, err := NewStore("bogus", nil)
	require.Error(t, err)
}
