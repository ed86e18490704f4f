package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
}

func TestJSONFileLoadMissing(t *testing.T) {
	f := NewJSONFile[[]item](filepath.Join(t.TempDir(), "missing.conf"))

	_, err := f.Load()
	assert.True(t, errors.Is(err, ErrNotExist))
	assert.Empty(t, f.LoadOrEmpty())
}

func TestJSONFileLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.conf")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	f := NewJSONFile[[]item](path)
	_, err := f.Load()
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Empty(t, f.LoadOrEmpty())
}

func TestJSONFileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "items.conf")
	f := NewJSONFile[[]item](path)

	want := []item{{Name: "a"}, {Name: "b"}}
	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONFileUpdateAbortsOnError(t *testing.T) {
	f := NewJSONFile[[]item](filepath.Join(t.TempDir(), "items.conf"))
	require.NoError(t, f.Save([]item{{Name: "keep"}}))

	boom := errors.New("boom")
	err := f.Update(func(items []item) ([]item, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []item{{Name: "keep"}}, f.LoadOrEmpty())
}

func TestJSONFileConcurrentUpdates(t *testing.T) {
	f := NewJSONFile[[]item](filepath.Join(t.TempDir(), "items.conf"))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.Update(func(items []item) ([]item, error) {
				return append(items, item{Name: "x"}), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.LoadOrEmpty(), writers)
}

func TestBoltStorePeers(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetPeer("cat8")
	assert.ErrorIs(t, err, ErrPeerNotFound)
	assert.Equal(t, "", store.Token("cat8"))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.PutPeer(&Peer{Node: "cat8", Token: "t-1", AuthenticatedAt: now}))
	require.NoError(t, store.PutPeer(&Peer{Node: "ace8", Token: "t-2", AuthenticatedAt: now}))

	peer, err := store.GetPeer("cat8")
	require.NoError(t, err)
	assert.Equal(t, "t-1", peer.Token)
	assert.True(t, now.Equal(peer.AuthenticatedAt))
	assert.Equal(t, "t-2", store.Token("ace8"))

	// re-auth replaces the token
	require.NoError(t, store.PutPeer(&Peer{Node: "cat8", Token: "t-3", AuthenticatedAt: now}))
	assert.Equal(t, "t-3", store.Token("cat8"))

	peers, err := store.ListPeers()
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	require.NoError(t, store.DeletePeer("ace8"))
	assert.Equal(t, "", store.Token("ace8"))

	assert.Error(t, store.PutPeer(&Peer{Token: "orphan"}))
}
