package allowlist

import (
	"slices"
	"sync"
)

// Store 保存目前允許的 client subject DN
// 讀多寫少, 使用讀寫鎖
type Store struct {
	mu   sync.RWMutex
	list []string
	set  map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		set: map[string]struct{}{},
	}
}

// Allowed 完全比對, 區分大小寫
func (s *Store) Allowed(dn string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[dn]
	return ok
}

// Replace 替換整份清單, 回傳內容(含順序)是否有變動
func (s *Store) Replace(list []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Equal(s.list, list) {
		return false
	}

	set := make(map[string]struct{}, len(list))
	for _, dn := range list {
		set[dn] = struct{}{}
	}
	s.list = slices.Clone(list)
	s.set = set
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

func (s *Store) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.list)
}
