package net

import "slices"

// SessionStore tracks the sessions attached to the game loop.
// Game-loop goroutine only: no locks.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session, 64)}
}

func (s *SessionStore) Add(sess *Session)          { s.sessions[sess.ID] = sess }
func (s *SessionStore) Remove(id uint64)           { delete(s.sessions, id) }
func (s *SessionStore) Get(id uint64) *Session     { return s.sessions[id] }
func (s *SessionStore) Count() int                 { return len(s.sessions) }

// ForEach visits sessions in id order.
func (s *SessionStore) ForEach(fn func(*Session)) {
	ids := make([]uint64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fn(s.sessions[id])
	}
}
