package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/logger"
)

// ErrUnknownStep indicates session/registry drift: a stored session points at
// a step the registry does not know. This is a programming-error class
// failure and must surface loudly instead of silently resetting the user.
var ErrUnknownStep = errors.New("survey: session references unknown step")

// ErrCompleted is returned for replies arriving after the terminal state.
var ErrCompleted = errors.New("survey: session already completed")

// DecisionKind classifies the outcome of one transition.
type DecisionKind int

const (
	// DecisionReprompt re-asks the current step with a rejection notice.
	DecisionReprompt DecisionKind = iota
	// DecisionRefresh re-renders a multi-choice step after a toggle.
	DecisionRefresh
	// DecisionAdvance moves to the next step.
	DecisionAdvance
	// DecisionComplete signals the terminal state was reached.
	DecisionComplete
)

// Decision is what the engine hands back to the transport: which step to
// render next, an optional notice key, and a session snapshot taken inside
// the critical section. The engine itself performs no messaging I/O.
type Decision struct {
	Kind      DecisionKind
	Step      Definition
	NoticeKey string
	Session   *Session
}

// Engine executes survey state transitions against the session store.
type Engine struct {
	reg    *Registry
	store  Store
	bundle *i18n.Bundle
	clock  func() time.Time
}

// NewEngine wires the immutable registry, the session store and the
// localization bundle used for option matching.
func NewEngine(reg *Registry, store Store, bundle *i18n.Bundle) *Engine {
	return &Engine{reg: reg, store: store, bundle: bundle, clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Registry exposes the step catalogue for transports.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Reply runs one transition for the user's raw reply. The store serializes
// transitions per user; a concurrent reply observes ErrBusy.
func (e *Engine) Reply(ctx context.Context, userID int64, raw string) (Decision, error) {
	var decision Decision
	err := e.store.Update(ctx, userID, func(s *Session) error {
		d, err := e.transition(s, raw)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	logger.Debug(ctx, "survey", "transition",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("step", string(decision.Step.ID)),
		slog.Int("decision", int(decision.Kind)),
	)
	return decision, nil
}

// Restart drops the user's session and re-creates it at the entry step.
// Sequenced through the same per-user exclusion as transitions.
func (e *Engine) Restart(ctx context.Context, userID int64) (Decision, error) {
	if err := e.store.Delete(ctx, userID); err != nil {
		return Decision{}, err
	}

	var decision Decision
	err := e.store.Update(ctx, userID, func(s *Session) error {
		def, ok := e.reg.Get(s.CurrentStep)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStep, s.CurrentStep)
		}
		s.LastActivityAt = e.clock()
		decision = Decision{Kind: DecisionAdvance, Step: def, Session: s.Clone()}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// JumpTo repositions the user at a specific step, e.g. /language. The target
// must be a registry step; collected answers are kept.
func (e *Engine) JumpTo(ctx context.Context, userID int64, target StepID) (Decision, error) {
	def, ok := e.reg.Get(target)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStep, target)
	}

	var decision Decision
	err := e.store.Update(ctx, userID, func(s *Session) error {
		s.CurrentStep = target
		s.LastActivityAt = e.clock()
		decision = Decision{Kind: DecisionAdvance, Step: def, Session: s.Clone()}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// Session returns a read-only snapshot of the user's session, if any.
func (e *Engine) Session(ctx context.Context, userID int64) (*Session, bool, error) {
	return e.store.Peek(ctx, userID)
}

// RunExpiry sweeps idle sessions every interval until ctx is done.
func (e *Engine) RunExpiry(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := e.store.ExpireIdle(ctx, e.clock().Add(-ttl))
			if err != nil {
				logger.Warn(ctx, "survey", "expiry.sweep",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
				continue
			}
			if removed > 0 {
				logger.Info(ctx, "survey", "expiry.sweep",
					slog.String("status", "ok"),
					slog.Int("count", removed),
				)
			}
		}
	}
}

// transition mutates the session for one raw reply and returns the decision.
// Runs inside the store's per-user critical section.
func (e *Engine) transition(s *Session, raw string) (Decision, error) {
	if s.Completed() {
		return Decision{}, ErrCompleted
	}
	def, ok := e.reg.Get(s.CurrentStep)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStep, s.CurrentStep)
	}

	now := e.clock()
	s.LastActivityAt = now

	var accepted string
	switch def.Kind {
	case KindChoice:
		value, ok := e.matchOption(def.Options, raw)
		if !ok {
			return Decision{Kind: DecisionReprompt, Step: def, NoticeKey: "invalid_choice", Session: s.Clone()}, nil
		}
		accepted = value
	case KindMulti:
		if e.matchesDone(raw) {
			accepted = s.Answers[def.AnswerKey]
		} else {
			value, ok := e.matchOption(def.Options, raw)
			if !ok {
				return Decision{Kind: DecisionReprompt, Step: def, NoticeKey: "invalid_choice", Session: s.Clone()}, nil
			}
			s.Answers[def.AnswerKey] = toggleMulti(s.Answers[def.AnswerKey], value)
			return Decision{Kind: DecisionRefresh, Step: def, Session: s.Clone()}, nil
		}
	case KindText, KindContact:
		value, noticeKey := def.Validate(raw)
		if noticeKey != "" {
			return Decision{Kind: DecisionReprompt, Step: def, NoticeKey: noticeKey, Session: s.Clone()}, nil
		}
		accepted = value
	default:
		return Decision{}, fmt.Errorf("survey: step %q has unknown kind %q", def.ID, def.Kind)
	}

	s.Answers[def.AnswerKey] = accepted
	if def.ID == StepLanguage {
		s.Language = accepted
	}

	next := def.Next.Resolve(s.Answers)
	if next == StepComplete {
		s.CurrentStep = StepComplete
		return Decision{Kind: DecisionComplete, Step: def, Session: s.Clone()}, nil
	}

	nextDef, ok := e.reg.Get(next)
	if !ok {
		// check() makes this unreachable; keep the loud failure anyway.
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStep, next)
	}
	s.CurrentStep = next
	return Decision{Kind: DecisionAdvance, Step: nextDef, Session: s.Clone()}, nil
}

// matchOption resolves a raw reply against a closed option set. A reply
// matches by canonical value or by any language's display label, whitespace
// and case normalized.
func (e *Engine) matchOption(options []Option, raw string) (string, bool) {
	normalized := NormalizeReply(raw)
	if normalized == "" {
		return "", false
	}
	for _, opt := range options {
		if normalized == NormalizeReply(opt.Value) {
			return opt.Value, true
		}
		for _, lang := range e.bundle.Languages() {
			if normalized == NormalizeReply(e.bundle.Resolve(opt.LabelKey, lang)) {
				return opt.Value, true
			}
		}
	}
	return "", false
}

func (e *Engine) matchesDone(raw string) bool {
	normalized := NormalizeReply(raw)
	if normalized == NormalizeReply(MultiDone) {
		return true
	}
	for _, lang := range e.bundle.Languages() {
		if normalized == NormalizeReply(e.bundle.Resolve("done", lang)) {
			return true
		}
	}
	return false
}

// toggleMulti adds value to the accumulated list or removes it if present.
func toggleMulti(current, value string) string {
	var values []string
	for _, v := range strings.Split(current, MultiSeparator) {
		if v != "" {
			values = append(values, v)
		}
	}
	for i, v := range values {
		if v == value {
			return strings.Join(append(values[:i], values[i+1:]...), MultiSeparator)
		}
	}
	return strings.Join(append(values, value), MultiSeparator)
}

// SelectedMulti splits an accumulated multi-choice answer into its values.
func SelectedMulti(answer string) []string {
	if answer == "" {
		return nil
	}
	parts := strings.Split(answer, MultiSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
