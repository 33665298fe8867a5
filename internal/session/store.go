package session

import (
	"sync"
	"time"

	"compliance-agent-be/pkg/agent"

	"github.com/patrickmn/go-cache"
)

// Store holds the live sessions plus one exclusive lock per session.
// All session field access goes through Lock/Unlock; the store itself
// only guards the lock table.
type Store struct {
	cache *cache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore() *Store {
	// Sessions idle for an hour are evicted; the durable snapshot is the
	// recovery path after that.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &Store{
		cache: c,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) Save(sess *agent.Session) {
	s.cache.Set(sess.ID, sess, cache.DefaultExpiration)
}

func (s *Store) Get(sessionID string) (*agent.Session, bool) {
	if x, found := s.cache.Get(sessionID); found {
		return x.(*agent.Session), true
	}
	return nil, false
}

// Delete removes the session but keeps its lock entry: a goroutine that
// acquired the lock before deletion must unlock the same mutex.
func (s *Store) Delete(sessionID string) {
	s.cache.Delete(sessionID)
}

func (s *Store) Lock(sessionID string) {
	s.lockFor(sessionID).Lock()
}

func (s *Store) Unlock(sessionID string) {
	s.lockFor(sessionID).Unlock()
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[sessionID] = l
	return l
}
