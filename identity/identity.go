package identity

import "sync"

// Identity is what attribution needs to know about a participant.
type Identity struct {
	Label           string
	VoicePreference string
}

// Resolver maps a platform speaker ID to a display identity. A miss never
// fails; resolvers fall back to the raw identifier so a transcript line is
// always attributable to something.
type Resolver interface {
	Resolve(speakerID string) Identity
}

// Store is the in-memory binding table behind the bind-identity command
// surface. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[string]Identity
}

func NewStore() *Store {
	return &Store{m: make(map[string]Identity)}
}

func (s *Store) Bind(speakerID string, id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[speakerID] = id
}

func (s *Store) Unbind(speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, speakerID)
}

func (s *Store) Resolve(speakerID string) Identity {
	s.mu.RLock()
	id, ok := s.m[speakerID]
	s.mu.RUnlock()
	if !ok {
		return Identity{Label: speakerID}
	}
	return id
}
