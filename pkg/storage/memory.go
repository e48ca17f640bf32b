package storage

import "sync"

// MemoryStore is a Store that lives for the process only
type MemoryStore struct {
	mu      sync.Mutex
	cookies map[string][]Cookie
	active  map[string]int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cookies: make(map[string][]Cookie),
		active:  make(map[string]int64),
	}
}

func (s *MemoryStore) SaveCookies(server string, cookies []Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cookies) == 0 {
		delete(s.cookies, server)
		return nil
	}
	s.cookies[server] = append([]Cookie(nil), cookies...)
	return nil
}

func (s *MemoryStore) LoadCookies(server string) ([]Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Cookie(nil), s.cookies[server]...), nil
}

func (s *MemoryStore) DeleteCookies(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, server)
	return nil
}

func (s *MemoryStore) SetActiveCluster(server string, clusterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[server] = clusterID
	return nil
}

func (s *MemoryStore) GetActiveCluster(server string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[server]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) ClearActiveCluster(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, server)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
