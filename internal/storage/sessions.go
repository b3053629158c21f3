package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kingspeech/leadbot/internal/survey"
)

// SessionStore is the Postgres-backed survey.Store. Sessions survive process
// restarts; per-user exclusion is still enforced in-process, matching the
// single-consumer deployment of the bot.
type SessionStore struct {
	db           *sqlx.DB
	entry        survey.StepID
	fallbackLang string
	clock        func() time.Time

	mu    sync.Mutex
	locks map[int64]*userLock
}

// userLock is a reference-counted per-user mutex. Entries leave the map once
// the last holder releases, so the map does not grow with every user seen.
type userLock struct {
	mu   sync.Mutex
	refs int
}

type sessionRow struct {
	UserID         int64     `db:"user_id"`
	CurrentStep    string    `db:"current_step"`
	Answers        []byte    `db:"answers"`
	Language       string    `db:"language"`
	CreatedAt      time.Time `db:"created_at"`
	LastActivityAt time.Time `db:"last_activity_at"`
}

// NewSessionStore constructs a session store creating sessions at the given
// entry step with the given fallback language.
func NewSessionStore(db *sqlx.DB, entry survey.StepID, fallbackLang string) *SessionStore {
	return &SessionStore{
		db:           db,
		entry:        entry,
		fallbackLang: fallbackLang,
		clock:        time.Now,
		locks:        make(map[int64]*userLock),
	}
}

// acquire enters the user's critical section, reporting false when another
// operation for the same user is in flight.
func (p *SessionStore) acquire(userID int64) (*userLock, bool) {
	p.mu.Lock()
	l, ok := p.locks[userID]
	if !ok {
		l = &userLock{}
		p.locks[userID] = l
	}
	l.refs++
	p.mu.Unlock()

	if !l.mu.TryLock() {
		p.release(userID, l)
		return nil, false
	}
	return l, true
}

func (p *SessionStore) release(userID int64, l *userLock) {
	p.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, userID)
	}
	p.mu.Unlock()
}

// Update implements survey.Store.
func (p *SessionStore) Update(ctx context.Context, userID int64, fn func(s *survey.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, ok := p.acquire(userID)
	if !ok {
		return survey.ErrBusy
	}
	defer func() {
		l.mu.Unlock()
		p.release(userID, l)
	}()

	s, found, err := p.load(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		s = survey.NewSession(userID, p.entry, p.fallbackLang, p.clock())
	}
	if err := fn(s); err != nil {
		return err
	}
	return p.save(ctx, s)
}

// Peek implements survey.Store.
func (p *SessionStore) Peek(ctx context.Context, userID int64) (*survey.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return p.load(ctx, userID)
}

// Delete implements survey.Store.
func (p *SessionStore) Delete(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, ok := p.acquire(userID)
	if !ok {
		return survey.ErrBusy
	}
	defer func() {
		l.mu.Unlock()
		p.release(userID, l)
	}()

	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ExpireIdle implements survey.Store. Users mid-transition are skipped and
// picked up by the next sweep.
func (p *SessionStore) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var ids []int64
	err := p.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM sessions WHERE last_activity_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		l, ok := p.acquire(id)
		if !ok {
			continue
		}
		res, err := p.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE user_id = $1 AND last_activity_at < $2`, id, cutoff)
		l.mu.Unlock()
		p.release(id, l)
		if err != nil {
			return removed, fmt.Errorf("expire session %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	return removed, nil
}

func (p *SessionStore) load(ctx context.Context, userID int64) (*survey.Session, bool, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT user_id, current_step, answers, language, created_at, last_activity_at
		FROM sessions WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	answers := make(map[string]string)
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &answers); err != nil {
			return nil, false, fmt.Errorf("decode session answers: %w", err)
		}
	}
	return &survey.Session{
		UserID:         row.UserID,
		CurrentStep:    survey.StepID(row.CurrentStep),
		Answers:        answers,
		Language:       row.Language,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
	}, true, nil
}

func (p *SessionStore) save(ctx context.Context, s *survey.Session) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode session answers: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, current_step, answers, language, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			answers = EXCLUDED.answers,
			language = EXCLUDED.language,
			last_activity_at = EXCLUDED.last_activity_at`,
		s.UserID, string(s.CurrentStep), answers, s.Language, s.CreatedAt, s.LastActivityAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
