package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
)

type memoryEntry struct {
	userID  string
	flash   string
	expires time.Time
}

// sweepInterval bounds how often Create scans for expired entries.
const sweepInterval = time.Minute

// MemoryStore is a process-local Store used when no Redis URL is set.
// Expired entries are dropped on lookup and by a periodic sweep on Create,
// so ids that are never read again do not accumulate.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]*memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, entries: make(map[string]*memoryEntry), now: time.Now}
}

// live returns the entry for id if it has not expired. Caller holds mu.
func (s *MemoryStore) live(id string) (*memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, id)
		return nil, false
	}
	return e, true
}

// sweep deletes every expired entry at most once per sweepInterval. Caller
// holds mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
		}
	}
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.entries[id] = &memoryEntry{userID: userID, expires: s.now().Add(s.ttl)}
	return &Session{ID: id, UserID: userID}, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	e.expires = s.now().Add(s.ttl)
	return &Session{ID: id, UserID: e.userID}, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) DestroyAll(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.userID == userID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) SetFlash(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return common.ErrorNotFound
	}
	e.flash = message
	return nil
}

func (s *MemoryStore) PopFlash(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return "", nil
	}
	msg := e.flash
	e.flash = ""
	return msg, nil
}
