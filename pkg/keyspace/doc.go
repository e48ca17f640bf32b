/*
Package keyspace browses the etcd key space of one cluster through the
management API.

# Architecture

	┌──────────────────── Workspace ──────────────────────────────┐
	│  selected cluster + status                                    │
	│                                                               │
	│  ┌──────────────────── Browser ───────────────────────────┐  │
	│  │                                                         │  │
	│  │  flat cache  map[key]KeyRecord   ◀── ListKeys/Put/Delete│  │
	│  │       │                                                 │  │
	│  │       │ rebuilt on every change                         │  │
	│  │       ▼                                                 │  │
	│  │  Tree  Root ── "registry" ── "pods" ── "web"            │  │
	│  │        Unrooted ── "plain-key"                          │  │
	│  └─────────────────────────────────────────────────────────┘  │
	└───────────────────────────────────────────────────────────────┘
	                         │ API
	                         ▼
	              /etcd/{id}/keys/  /kv/  /tree/  /health/

The cache is the source of truth on the client. The tree is a projection:
BuildTree is a pure function of the cached records and is recomputed from
scratch whenever the cache changes, so it never drifts from it.

# Tree Shape

Keys are split on the delimiter ("/" unless configured). One leading
delimiter is stripped and marks the key as rooted; keys without it hang off
Unrooted. Empty segments are kept, so every key maps to exactly one node
whose FullPath equals the key:

	"/a/b"   Root → a → b
	"/a//b"  Root → a → "" → b
	"/a/"    Root → a → ""
	"/"      Root → ""
	"a/b"    Unrooted → a → b

A node can be a key and a prefix of other keys at once ("/a" and "/a/b");
IsDual reports it.

# Cache Rules

  - ListKeys replaces the cached keys inside the listed selection with the
    reply. A truncated reply only vouches for keys up to the last one
    returned; cached keys beyond it are kept.
  - PutValue upserts the record after the server accepted the write.
  - DeleteKey with prefix drops every cached key that starts with the key
    as a string: "/config" also drops "/configX", "/config/" keeps
    "/config".
  - Failed calls leave the cache untouched. A listing whose caller gave up
    before the reply arrived is discarded.
  - Writes and deletes run detached from the caller's cancellation, bounded
    by MutationTimeout, so a write the server applied is always reflected
    locally.
  - GetValue, RemoteTree and Health read from the server and never touch
    the cache.

# Usage

	ws := keyspace.NewWorkspace(keyspace.NewHTTPAPI(tc), registryClient, keyspace.WorkspaceOptions{
		Options: keyspace.Options{Delimiter: "/"},
	})

	b, err := ws.Select(ctx, 3)
	if err != nil {
		return err
	}
	if _, err := b.ListKeys(ctx, types.ScanOptions{Prefix: "/registry/", Limit: 500, KeysOnly: true}); err != nil {
		return err
	}
	b.Tree().Root.Walk(func(n *keyspace.Node, depth int) bool {
		fmt.Println(strings.Repeat("  ", depth), n.Segment)
		return true
	})
*/
package keyspace
