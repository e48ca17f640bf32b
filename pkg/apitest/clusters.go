package apitest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/kvdeck/pkg/types"
	"gopkg.in/yaml.v3"
)

func (s *Server) sortedClusters() []types.Cluster {
	out := make([]types.Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// handleListClusters answers with a bare array, or with a DRF page when
// the request asks for one
func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	clusters := s.sortedClusters()
	s.mu.Unlock()

	if r.URL.Query().Has("page") {
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(clusters),
			"next":     nil,
			"previous": nil,
			"results":  clusters,
		})
		return
	}
	writeJSON(w, http.StatusOK, clusters)
}

// createReply mirrors the create serializer, which omits timestamps
type createReply struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func replyFor(c types.Cluster) createReply {
	return createReply{ID: c.ID, Name: c.Name, Description: c.Description, IsActive: c.IsActive}
}

func (s *Server) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	var in types.ClusterInput
	if err := readJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	errs := map[string][]string{}
	if strings.TrimSpace(in.Name) == "" {
		errs["name"] = []string{"This field is required."}
	}
	if strings.TrimSpace(in.Kubeconfig) == "" {
		errs["kubeconfig"] = []string{"This field is required."}
	}

	s.mu.Lock()
	for _, c := range s.clusters {
		if in.Name != "" && c.record.Name == in.Name {
			errs["name"] = []string{"cluster with this name already exists."}
		}
	}
	if len(errs) > 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	c := s.addCluster(in, currentUser(r).Username)
	reply := replyFor(c.record)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.lookupCluster(r)
	var record types.Cluster
	if ok {
		record = c.record
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateCluster(w http.ResponseWriter, r *http.Request) {
	var in types.ClusterInput
	if err := readJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	s.mu.Lock()
	c, ok := s.lookupCluster(r)
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	if in.Name != "" {
		c.record.Name = in.Name
		c.status.ClusterName = in.Name
	}
	if in.Description != "" {
		c.record.Description = in.Description
	}
	if in.Kubeconfig != "" {
		c.kubeconfig = in.Kubeconfig
	}
	if in.IsActive != nil {
		c.record.IsActive = *in.IsActive
	}
	c.record.UpdatedAt = s.now().UTC()
	reply := replyFor(c.record)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.lookupCluster(r)
	if ok {
		delete(s.clusters, c.record.ID)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordConnection(c *cluster, user types.User, ok bool, errMsg string) {
	id := user.ID
	status := "success"
	if !ok {
		status = "failed"
	}
	s.connections = append(s.connections, types.ClusterConnection{
		ID:           int64(len(s.connections) + 1),
		Cluster:      c.record.ID,
		ClusterName:  c.record.Name,
		User:         &id,
		Username:     user.Username,
		ConnectedAt:  s.now().UTC(),
		Status:       status,
		ErrorMessage: errMsg,
	})
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.lookupCluster(r)
	var status types.ClusterStatus
	if ok {
		status = c.status
		errMsg := ""
		if status.Error != nil {
			errMsg = *status.Error
		}
		s.recordConnection(c, currentUser(r), status.IsConnected, errMsg)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.lookupCluster(r)
	var status types.ClusterStatus
	if ok {
		status = c.status
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, notFound)
	case !status.IsConnected:
		msg := "connection refused"
		if status.Error != nil {
			msg = *status.Error
		}
		writeJSON(w, http.StatusBadRequest, types.ConnectionResult{Success: false, Message: msg})
	default:
		writeJSON(w, http.StatusOK, types.ConnectionResult{
			Success: true,
			Message: "Connected successfully. K8s version: " + *status.Version,
		})
	}
}

func (s *Server) handleValidateKubeconfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kubeconfig string `json:"kubeconfig"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	var doc any
	if err := yaml.Unmarshal([]byte(body.Kubeconfig), &doc); err != nil {
		writeJSON(w, http.StatusBadRequest, types.KubeconfigValidation{
			Valid:   false,
			Message: "Invalid YAML format: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, types.KubeconfigValidation{Valid: true, Message: "Valid kubeconfig format"})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	var filter int64
	if raw := r.URL.Query().Get("cluster_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"cluster_id": "must be an integer"})
			return
		}
		filter = id
	}

	s.mu.Lock()
	out := make([]types.ClusterConnection, 0, len(s.connections))
	for i := len(s.connections) - 1; i >= 0 && len(out) < 100; i-- {
		conn := s.connections[i]
		if filter == 0 || conn.Cluster == filter {
			out = append(out, conn)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}
