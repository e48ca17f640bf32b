// Package registry manages the cluster connection records kept by the
// API server. Client maps the REST endpoints one to one; Store keeps the
// last fetched list and the current cluster in memory.
package registry
