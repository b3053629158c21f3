package survey

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy signals that another transition for the same user is in flight.
// Callers should tell the user to wait instead of racing the first reply.
var ErrBusy = errors.New("survey: session busy")

// Store owns session persistence. All mutations for one user are serialized;
// different users proceed concurrently.
type Store interface {
	// Update runs fn against the user's session inside the per-user critical
	// section, creating a fresh session at the entry step if none exists.
	// The session is persisted after fn returns nil. Returns ErrBusy when
	// another update for the same user is in flight.
	Update(ctx context.Context, userID int64, fn func(s *Session) error) error

	// Peek returns a read-only clone of the user's session without creating one.
	Peek(ctx context.Context, userID int64) (*Session, bool, error)

	// Delete removes the user's session. Sequenced through the same per-user
	// exclusion as Update so a restart cannot interleave with a transition.
	Delete(ctx context.Context, userID int64) error

	// ExpireIdle deletes sessions with no activity since the cutoff and
	// reports how many were removed. Advisory cleanup only.
	ExpireIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is the in-process Store used by default and in tests.
type MemoryStore struct {
	entry        StepID
	fallbackLang string
	clock        func() time.Time

	mu       sync.Mutex
	sessions map[int64]*memorySlot
}

type memorySlot struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore constructs a MemoryStore creating sessions at the given
// entry step with the given fallback language.
func NewMemoryStore(entry StepID, fallbackLang string) *MemoryStore {
	return &MemoryStore{
		entry:        entry,
		fallbackLang: fallbackLang,
		clock:        time.Now,
		sessions:     make(map[int64]*memorySlot),
	}
}

// WithClock overrides the time source, for tests.
func (m *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	m.clock = clock
	return m
}

func (m *MemoryStore) slot(userID int64, create bool) *memorySlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok && create {
		s = &memorySlot{session: NewSession(userID, m.entry, m.fallbackLang, m.clock())}
		m.sessions[userID] = s
	}
	return s
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, userID int64, fn func(s *Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := m.slot(userID, true)
	if !slot.mu.TryLock() {
		return ErrBusy
	}
	defer slot.mu.Unlock()
	return fn(slot.session)
}

// Peek implements Store.
func (m *MemoryStore) Peek(ctx context.Context, userID int64) (*Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	slot := m.slot(userID, false)
	if slot == nil {
		return nil, false, nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.session.Clone(), true, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := m.slot(userID, false)
	if slot == nil {
		return nil
	}
	if !slot.mu.TryLock() {
		return ErrBusy
	}
	defer slot.mu.Unlock()

	m.mu.Lock()
	if cur, ok := m.sessions[userID]; ok && cur == slot {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	return nil
}

// ExpireIdle implements Store. Slots busy with a transition are skipped and
// picked up by the next sweep.
func (m *MemoryStore) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	candidates := make(map[int64]*memorySlot, len(m.sessions))
	for id, slot := range m.sessions {
		candidates[id] = slot
	}
	m.mu.Unlock()

	removed := 0
	for id, slot := range candidates {
		if !slot.mu.TryLock() {
			continue
		}
		idle := slot.session.LastActivityAt.Before(cutoff)
		if idle {
			// A restart may have replaced the slot since the snapshot;
			// only remove the entry whose idleness was actually judged.
			m.mu.Lock()
			if cur, ok := m.sessions[id]; ok && cur == slot {
				delete(m.sessions, id)
				removed++
			}
			m.mu.Unlock()
		}
		slot.mu.Unlock()
	}
	return removed, nil
}
