/*
Package storage provides client-local persistence for kvdeck using BoltDB.

Two things outlive a single kvdeck invocation: the cookies of the login
session and the cluster the user selected with "cluster use". Both are kept
per API server URL, so one data directory can serve several servers.

# Architecture

	┌─────────────────── BOLTDB FILE ($DATA_DIR/kvdeck.db) ───────────────┐
	│                                                                       │
	│  Bucket: cookies                                                     │
	│    Key:   server URL                                                 │
	│    Value: sealed JSON array of Cookie                                │
	│                                                                       │
	│  Bucket: state                                                       │
	│    Key:   "active_cluster:" + server URL                             │
	│    Value: decimal cluster id                                         │
	└───────────────────────────────────────────────────────────────────┘

The cookie jar carries the session id and the CSRF token, so it is sealed
with a Sealer (security.SecretsManager, AES-256-GCM) before it is written.
Expired cookies are dropped on load.

BoltDB takes an exclusive file lock. A second process opening the same data
directory fails after a short timeout instead of waiting forever.

# Implementations

  - BoltStore: the on-disk store used by the CLI
  - MemoryStore: an in-process store for tests and embedding programs that
    keep no state between runs

Both return ErrNotFound from GetActiveCluster when no cluster was chosen.

# Usage

	sealer, err := security.NewSecretsManagerFromKeyFile(filepath.Join(dataDir, "cookie.key"))
	if err != nil {
		return err
	}
	store, err := storage.NewBoltStore(dataDir, sealer)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetActiveCluster(server, 3); err != nil {
		return err
	}
*/
package storage
