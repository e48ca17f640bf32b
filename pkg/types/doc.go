/*
Package types defines the core data structures used throughout kvdeck.

This package contains the records exchanged with the cluster-management API:
identities, cluster connection records and their status, etcd key records and
health reports. The types are shared by the transport, the session guard, the
cluster registry and the key-space browser.

# Core Types

Identity:
  - User: identity record returned by login and the "me" endpoint
  - Credentials: username/password submitted at login

Cluster Registry:
  - Cluster: registered cluster connection record
  - ClusterInput: create/update payload (kubeconfig is write-only)
  - ClusterStatus: cached, refreshable connection state
  - ConnectionResult, KubeconfigValidation: one-shot checks
  - ClusterConnection: connection log entry

Key Space:
  - KeyRecord: an etcd key with an optional value
  - ScanOptions: prefix/range/limit filter for listings
  - KeyListing: listing result with truncation flag
  - RemoteTreeNode: server-computed outline
  - EtcdHealth, EndpointHealth, Member: etcd liveness report

# Design Notes

Keys and values are Go strings, which are byte strings; no encoding is
assumed. KeyRecord.HasValue distinguishes "empty value" from "value not
fetched" for keys-only listings.

The hierarchical key tree is not defined here: it is a derived projection
owned by package keyspace.
*/
package types
