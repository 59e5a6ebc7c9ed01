package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
)

type memoryEntry struct {
	sub    core.Submission
	expiry time.Time
}

// MemoryStore is an in-memory implementation of the SubmissionStore interface
type MemoryStore struct {
	submissions map[string]*memoryEntry
	latest      map[string]string
	ttl         time.Duration
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory store. Records older than ttl are
// treated as absent; a zero ttl keeps them for the life of the process.
func NewMemoryStore(ttl time.Duration) ports.SubmissionStore {
	return &MemoryStore{
		submissions: make(map[string]*memoryEntry),
		latest:      make(map[string]string),
		ttl:         ttl,
	}
}

// Save stores a copy of sub and marks it as the latest for its wallet and mint
func (s *MemoryStore) Save(ctx context.Context, sub *core.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &memoryEntry{sub: cloneSubmission(sub)}
	if s.ttl > 0 {
		entry.expiry = time.Now().Add(s.ttl)
	}
	s.submissions[sub.ID] = entry
	s.latest[latestKey(sub.Wallet, sub.Mint)] = sub.ID
	return nil
}

// Get returns the submission or core.ErrSubmissionNotFound
func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.live(id)
	if !ok {
		return nil, core.ErrSubmissionNotFound
	}
	sub := cloneSubmission(&entry.sub)
	return &sub, nil
}

// Transition moves the submission from one status to another under the store lock
func (s *MemoryStore) Transition(ctx context.Context, id string, from, to core.SubmissionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		return false, core.ErrSubmissionNotFound
	}
	if entry.sub.Status != from {
		return false, nil
	}
	entry.sub.Status = to
	entry.sub.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Latest returns the most recently saved submission for wallet and mint
func (s *MemoryStore) Latest(ctx context.Context, wallet, mint string) (*core.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.latest[latestKey(wallet, mint)]
	if !ok {
		return nil, core.ErrSubmissionNotFound
	}
	entry, ok := s.live(id)
	if !ok {
		return nil, core.ErrSubmissionNotFound
	}
	sub := cloneSubmission(&entry.sub)
	return &sub, nil
}

// live must be called with the lock held
func (s *MemoryStore) live(id string) (*memoryEntry, bool) {
	entry, ok := s.submissions[id]
	if !ok {
		return nil, false
	}
	if !entry.expiry.IsZero() && time.Now().After(entry.expiry) {
		return nil, false
	}
	return entry, true
}

func cloneSubmission(sub *core.Submission) core.Submission {
	c := *sub
	c.TransactionIDs = append([]string(nil), sub.TransactionIDs...)
	return c
}

func latestKey(wallet, mint string) string {
	return wallet + ":" + mint
}
