/*
Package apitest is an in-process fake of the cluster-management API for
tests. It implements the session, CSRF, cluster registry and etcd
endpoints with the same status codes and reply shapes as the real server,
keeps every cluster's key space in a map, and counts requests by route.

	server := apitest.New(t)
	server.AddUser("admin", "secret")
	staging := server.AddCluster("staging", true)
	server.Put(staging.ID, "/registry/pods/web", "{}")

	cfg.Server = server.BaseURL()

Fail makes a route answer with a given status for the next n requests.
*/
package apitest
