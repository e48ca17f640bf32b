package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/kvdeck/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServer = "http://localhost:8000/api"

func newTestBoltStore(t *testing.T, sealer Sealer) (*BoltStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir, sealer)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func testCookies() []Cookie {
	return []Cookie{
		{Name: "sessionid", Value: "s3ss10n", Path: "/", HttpOnly: true},
		{Name: "csrftoken", Value: "t0k3n", Path: "/", Expires: time.Now().Add(time.Hour).UTC().Truncate(time.Second)},
	}
}

func TestStoresCookieRoundtrip(t *testing.T) {
	sm, err := security.NewSecretsManagerFromPassword("test")
	require.NoError(t, err)
	bolt, _ := newTestBoltStore(t, sm)

	stores := map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			loaded, err := store.LoadCookies(testServer)
			require.NoError(t, err)
			assert.Empty(t, loaded)

			require.NoError(t, store.SaveCookies(testServer, testCookies()))

			loaded, err = store.LoadCookies(testServer)
			require.NoError(t, err)
			require.Len(t, loaded, 2)
			assert.Equal(t, "sessionid", loaded[0].Name)
			assert.Equal(t, "s3ss10n", loaded[0].Value)
			assert.True(t, loaded[0].HttpOnly)
			assert.True(t, testCookies()[1].Expires.Equal(loaded[1].Expires))

			// Scoped by server
			other, err := store.LoadCookies("https://other.example/api")
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, store.DeleteCookies(testServer))
			loaded, err = store.LoadCookies(testServer)
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestStoresActiveCluster(t *testing.T) {
	bolt, _ := newTestBoltStore(t, nil)

	stores := map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetActiveCluster(testServer)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.SetActiveCluster(testServer, 42))
			id, err := store.GetActiveCluster(testServer)
			require.NoError(t, err)
			assert.Equal(t, int64(42), id)

			require.NoError(t, store.ClearActiveCluster(testServer))
			_, err = store.GetActiveCluster(testServer)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBoltStoreSealsCookies(t *testing.T) {
	sm, err := security.NewSecretsManagerFromPassword("test")
	require.NoError(t, err)

	store, dir := newTestBoltStore(t, sm)
	require.NoError(t, store.SaveCookies(testServer, testCookies()))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(filepath.Join(dir, DBFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3ss10n", "cookie values must not be stored in the clear")

	// A different key cannot open the jar
	wrong, err := security.NewSecretsManagerFromPassword("other")
	require.NoError(t, err)
	reopened, err := NewBoltStore(dir, wrong)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.LoadCookies(testServer)
	assert.Error(t, err)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetActiveCluster(testServer, 7))
	require.NoError(t, store.SaveCookies(testServer, testCookies()))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	id, err := store.GetActiveCluster(testServer)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	cookies, err := store.LoadCookies(testServer)
	require.NoError(t, err)
	assert.Len(t, cookies, 2)
}

func TestSaveEmptyCookiesDeletes(t *testing.T) {
	store, _ := newTestBoltStore(t, nil)

	require.NoError(t, store.SaveCookies(testServer, testCookies()))
	require.NoError(t, store.SaveCookies(testServer, nil))

	cookies, err := store.LoadCookies(testServer)
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestCookieExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Cookie{}.Expired(now), "session cookies never expire")
	assert.True(t, Cookie{Expires: now.Add(-time.Second)}.Expired(now))
	assert.False(t, Cookie{Expires: now.Add(time.Minute)}.Expired(now))
}
