package survey

import (
	"fmt"
	"time"
)

// Session is one user's survey attempt. It is owned by the dialog engine and
// mutated only inside the store's per-user critical section.
type Session struct {
	UserID         int64             `json:"user_id"`
	CurrentStep    StepID            `json:"current_step"`
	Answers        map[string]string `json:"answers"`
	Language       string            `json:"language"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// NewSession creates a fresh session positioned at the entry step.
func NewSession(userID int64, entry StepID, fallbackLang string, now time.Time) *Session {
	return &Session{
		UserID:         userID,
		CurrentStep:    entry,
		Answers:        make(map[string]string),
		Language:       fallbackLang,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// NewExternalSession assembles an already-complete session from an externally
// collected answer map, e.g. a website lead delivered over the webhook. The
// answers contract is the same as for engine-built sessions.
func NewExternalSession(answers map[string]string, now time.Time) *Session {
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	lang := copied[AnswerLanguage]
	if lang == "" {
		lang = "ru"
	}
	return &Session{
		CurrentStep:    StepComplete,
		Answers:        copied,
		Language:       lang,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Completed reports whether the session reached the terminal state.
func (s *Session) Completed() bool {
	return s.CurrentStep == StepComplete
}

// Clone returns a deep copy safe to use outside the store's critical section.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	clone := *s
	clone.Answers = answers
	return &clone
}

// LeadKey is the idempotency key of the session's export: repeated export
// attempts for the same completed session map to the same key.
func (s *Session) LeadKey() string {
	if s.UserID == 0 {
		return fmt.Sprintf("web:%d", s.CreatedAt.UnixNano())
	}
	return fmt.Sprintf("%d:%d", s.UserID, s.CreatedAt.Unix())
}
