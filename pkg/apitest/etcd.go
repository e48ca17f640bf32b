package apitest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

type kv struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func etcdError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// selectKeys applies etcdctl get semantics: prefix match without a
// range end, [prefix, rangeEnd) with one, "\x00" meaning no upper bound
func selectKeys(space map[string]string, prefix, rangeEnd string, limit int) []string {
	var keys []string
	for k := range space {
		var match bool
		switch rangeEnd {
		case "":
			match = strings.HasPrefix(k, prefix)
		case "\x00":
			match = k >= prefix
		default:
			match = k >= prefix && k < rangeEnd
		}
		if match {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	if !q.Has("prefix") {
		prefix = "/"
	}
	limit, ok := queryLimit(r, 100)
	if !ok {
		etcdError(w, http.StatusInternalServerError, "invalid limit")
		return
	}
	keysOnly := q.Get("keys_only") != "false"

	s.mu.Lock()
	c, found := s.lookupCluster(r)
	if !found {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	keys := selectKeys(c.etcd, prefix, q.Get("range_end"), limit)
	var kvs []kv
	if !keysOnly {
		kvs = make([]kv, 0, len(keys))
		for _, k := range keys {
			kvs = append(kvs, kv{Key: k, Value: c.etcd[k]})
		}
	}
	s.mu.Unlock()

	reply := map[string]any{"success": true, "keys": keys, "count": len(keys)}
	if kvs != nil {
		reply["kvs"] = kvs
	}
	if keys == nil {
		reply["keys"] = []string{}
	}
	writeJSON(w, http.StatusOK, reply)
}

type treeNode struct {
	Name     string      `json:"name"`
	Key      string      `json:"key"`
	IsDir    bool        `json:"is_dir"`
	Children []*treeNode `json:"children,omitempty"`

	index map[string]*treeNode
}

// buildOutline folds keys into the server's outline: leading and
// trailing "/" stripped, empty segments skipped
func buildOutline(keys []string) []*treeNode {
	root := &treeNode{index: map[string]*treeNode{}}
	for _, key := range keys {
		parts := strings.Split(strings.Trim(key, "/"), "/")
		current := root
		for i, part := range parts {
			if part == "" {
				continue
			}
			next, ok := current.index[part]
			if !ok {
				next = &treeNode{
					Name:  part,
					Key:   "/" + strings.Join(parts[:i+1], "/"),
					index: map[string]*treeNode{},
				}
				current.index[part] = next
				current.Children = append(current.Children, next)
			}
			current = next
		}
	}
	finishOutline(root)
	return root.Children
}

func finishOutline(n *treeNode) {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		c.IsDir = len(c.Children) > 0
		finishOutline(c)
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	if !q.Has("prefix") {
		prefix = "/"
	}
	limit, ok := queryLimit(r, 500)
	if !ok {
		etcdError(w, http.StatusInternalServerError, "invalid limit")
		return
	}

	s.mu.Lock()
	c, found := s.lookupCluster(r)
	if !found {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	keys := selectKeys(c.etcd, prefix, "", limit)
	s.mu.Unlock()

	tree := buildOutline(keys)
	if tree == nil {
		tree = []*treeNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tree": tree, "count": len(keys)})
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		etcdError(w, http.StatusBadRequest, "Key is required")
		return
	}

	s.mu.Lock()
	c, found := s.lookupCluster(r)
	var value string
	var exists bool
	if found {
		value, exists = c.etcd[key]
	}
	s.mu.Unlock()

	switch {
	case !found:
		writeJSON(w, http.StatusNotFound, notFound)
	case !exists:
		// etcdctl prints nothing for a missing key
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "key": key, "value": ""})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "key": key, "value": value + "\n"})
	}
}

func (s *Server) handlePutValue(w http.ResponseWriter, r *http.Request) {
	var body kv
	if err := readJSON(r, &body); err != nil || body.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"key": {"This field is required."}})
		return
	}

	s.mu.Lock()
	c, found := s.lookupCluster(r)
	if found {
		c.etcd[body.Key] = body.Value
	}
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "OK"})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key    string `json:"key"`
		Prefix bool   `json:"prefix"`
	}
	if err := readJSON(r, &body); err != nil || body.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"key": {"This field is required."}})
		return
	}

	s.mu.Lock()
	c, found := s.lookupCluster(r)
	deleted := 0
	if found {
		for k := range c.etcd {
			if k == body.Key || (body.Prefix && strings.HasPrefix(k, body.Key)) {
				delete(c.etcd, k)
				deleted++
			}
		}
	}
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": strconv.Itoa(deleted)})
}

type endpointHealth struct {
	Endpoint string `json:"endpoint"`
	Health   bool   `json:"health"`
	Took     string `json:"took"`
	Error    string `json:"error,omitempty"`
}

type member struct {
	ID         uint64   `json:"ID"`
	Name       string   `json:"name"`
	PeerURLs   []string `json:"peerURLs"`
	ClientURLs []string `json:"clientURLs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, found := s.lookupCluster(r)
	unhealthy := found && c.unhealthy
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}

	endpoints := []endpointHealth{
		{Endpoint: "https://10.0.0.1:2379", Health: true, Took: "1.2ms"},
		{Endpoint: "https://10.0.0.2:2379", Health: !unhealthy, Took: "1.4ms"},
	}
	if unhealthy {
		endpoints[1].Error = "context deadline exceeded"
	}
	members := map[string]any{
		"header": map[string]any{"cluster_id": 1},
		"members": []member{
			{ID: 1, Name: "etcd-0", PeerURLs: []string{"https://10.0.0.1:2380"}, ClientURLs: []string{"https://10.0.0.1:2379"}},
			{ID: 2, Name: "etcd-1", PeerURLs: []string{"https://10.0.0.2:2380"}, ClientURLs: []string{"https://10.0.0.2:2379"}},
		},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"health":  endpoints,
		"status":  []map[string]any{{"Endpoint": "https://10.0.0.1:2379", "Status": map[string]any{"version": "3.5.12"}}},
		"members": members,
	})
}
