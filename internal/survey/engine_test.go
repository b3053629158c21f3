package survey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingspeech/leadbot/internal/i18n"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *i18n.Bundle) {
	t.Helper()
	bundle, err := i18n.Load()
	require.NoError(t, err)
	reg, err := NewRegistry(DefaultSteps())
	require.NoError(t, err)
	store := NewMemoryStore(reg.EntryStep(), "ru")
	return NewEngine(reg, store, bundle), store, bundle
}

func mustReply(t *testing.T, e *Engine, userID int64, raw string) Decision {
	t.Helper()
	d, err := e.Reply(context.Background(), userID, raw)
	require.NoError(t, err)
	return d
}

func TestEngineFullFlow(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 42

	replies := []struct {
		raw      string
		wantKind DecisionKind
		wantStep StepID
	}{
		{"ru", DecisionAdvance, StepGreeting},
		{"start", DecisionAdvance, StepName},
		{"Анна", DecisionAdvance, StepLevel},
		{"b1_b2", DecisionAdvance, StepGoal},
		{"conversation", DecisionAdvance, StepFormat},
		{"online", DecisionAdvance, StepExpectations},
		{"vocabulary", DecisionRefresh, StepExpectations},
		{"feedback", DecisionRefresh, StepExpectations},
		{"done", DecisionAdvance, StepStartDate},
		{"now", DecisionAdvance, StepPhone},
	}
	for _, step := range replies {
		d := mustReply(t, e, userID, step.raw)
		assert.Equal(t, step.wantKind, d.Kind, "reply %q", step.raw)
		assert.Equal(t, step.wantStep, d.Step.ID, "reply %q", step.raw)
	}

	d := mustReply(t, e, userID, "+7 999 123-45-67")
	require.Equal(t, DecisionComplete, d.Kind)
	require.True(t, d.Session.Completed())

	want := map[string]string{
		AnswerLanguage:     "ru",
		AnswerGreeting:     "start",
		AnswerName:         "Анна",
		AnswerLevel:        "b1_b2",
		AnswerGoal:         "conversation",
		AnswerFormat:       "online",
		AnswerExpectations: "vocabulary, feedback",
		AnswerStartDate:    "now",
		AnswerPhone:        "+79991234567",
	}
	assert.Equal(t, want, d.Session.Answers)

	// Any reply past the terminal state is refused, never re-exported.
	_, err := e.Reply(ctx, userID, "now")
	require.ErrorIs(t, err, ErrCompleted)
}

func TestEngineDuplicateReplyIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	const userID int64 = 43

	for _, raw := range []string{"ru", "start", "Анна"} {
		mustReply(t, e, userID, raw)
	}
	d := mustReply(t, e, userID, "b1_b2")
	require.Equal(t, DecisionAdvance, d.Kind)
	accepted := d.Session.Clone().Answers

	// A redelivered update replays the value that was just accepted. The
	// second call must change nothing but timestamps.
	d = mustReply(t, e, userID, "b1_b2")
	assert.Equal(t, DecisionReprompt, d.Kind)
	assert.Equal(t, StepGoal, d.Session.CurrentStep)
	assert.Equal(t, accepted, d.Session.Answers)

	// Same for a free-text answer replayed at the following choice step.
	d = mustReply(t, e, userID, "Анна")
	assert.Equal(t, DecisionReprompt, d.Kind)
	assert.Equal(t, StepGoal, d.Session.CurrentStep)
	assert.Equal(t, accepted, d.Session.Answers)
}

func TestEngineMatchesLocalizedLabels(t *testing.T) {
	e, _, bundle := newTestEngine(t)
	const userID int64 = 7

	// The user taps buttons carrying display labels, not canonical slugs.
	d := mustReply(t, e, userID, bundle.Resolve("language.ru", "ru"))
	require.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, "ru", d.Session.Answers[AnswerLanguage])
	assert.Equal(t, "ru", d.Session.Language)

	d = mustReply(t, e, userID, "  "+bundle.Resolve("start_button", "ru")+"  ")
	require.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, "start", d.Session.Answers[AnswerGreeting])
}

func TestEngineRejectionKeepsState(t *testing.T) {
	e, _, _ := newTestEngine(t)
	const userID int64 = 9

	mustReply(t, e, userID, "ru")
	mustReply(t, e, userID, "start")

	d := mustReply(t, e, userID, "X")
	assert.Equal(t, DecisionReprompt, d.Kind)
	assert.Equal(t, "invalid_name_short", d.NoticeKey)
	assert.Equal(t, StepName, d.Session.CurrentStep)
	_, answered := d.Session.Answers[AnswerName]
	assert.False(t, answered, "rejected reply must not write an answer")

	d = mustReply(t, e, userID, "Анна")
	assert.Equal(t, DecisionAdvance, d.Kind)
	d = mustReply(t, e, userID, "definitely not a level")
	assert.Equal(t, DecisionReprompt, d.Kind)
	assert.Equal(t, "invalid_choice", d.NoticeKey)
	assert.Equal(t, StepLevel, d.Session.CurrentStep)
}

func TestEngineBranchSkipsExpectationsForKids(t *testing.T) {
	e, _, _ := newTestEngine(t)
	const userID int64 = 11

	for _, raw := range []string{"ru", "start", "Иван", "zero", "kids"} {
		mustReply(t, e, userID, raw)
	}
	d := mustReply(t, e, userID, "group")
	require.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, StepStartDate, d.Step.ID)
	_, answered := d.Session.Answers[AnswerExpectations]
	assert.False(t, answered, "skipped step must leave no answer")
}

func TestEngineConfiguredBranchRule(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	defs, err := ApplyBranchRules(DefaultSteps(), []BranchRule{
		{Step: StepGoal, When: map[string]string{AnswerGoal: "exams"}, Next: StepStartDate},
	})
	require.NoError(t, err)
	reg, err := NewRegistry(defs)
	require.NoError(t, err)
	store := NewMemoryStore(reg.EntryStep(), "ru")
	e := NewEngine(reg, store, bundle)

	const userID int64 = 12
	for _, raw := range []string{"ru", "start", "Мария", "c1_c2"} {
		mustReply(t, e, userID, raw)
	}
	d := mustReply(t, e, userID, "exams")
	require.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, StepStartDate, d.Step.ID)
}

func TestEngineMultiToggle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	const userID int64 = 13

	for _, raw := range []string{"ru", "start", "Олег", "a1_a2", "travel", "pair"} {
		mustReply(t, e, userID, raw)
	}

	d := mustReply(t, e, userID, "vocabulary")
	require.Equal(t, DecisionRefresh, d.Kind)
	assert.Equal(t, "vocabulary", d.Session.Answers[AnswerExpectations])

	d = mustReply(t, e, userID, "tasks")
	assert.Equal(t, "vocabulary, tasks", d.Session.Answers[AnswerExpectations])

	// Selecting an already-selected value unselects it.
	d = mustReply(t, e, userID, "vocabulary")
	assert.Equal(t, "tasks", d.Session.Answers[AnswerExpectations])

	d = mustReply(t, e, userID, "done")
	require.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, StepStartDate, d.Step.ID)
	assert.Equal(t, "tasks", d.Session.Answers[AnswerExpectations])
}

func TestEngineAnswerOverwrite(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 14

	for _, raw := range []string{"ru", "start", "Пётр"} {
		mustReply(t, e, userID, raw)
	}
	mustReply(t, e, userID, "zero")

	d, err := e.JumpTo(ctx, userID, StepLevel)
	require.NoError(t, err)
	require.Equal(t, StepLevel, d.Step.ID)

	d = mustReply(t, e, userID, "c1_c2")
	assert.Equal(t, "c1_c2", d.Session.Answers[AnswerLevel], "latest accepted value wins")
}

func TestEngineRestart(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 15

	for _, raw := range []string{"ru", "start", "Ольга", "b1_b2"} {
		mustReply(t, e, userID, raw)
	}

	d, err := e.Restart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, DecisionAdvance, d.Kind)
	assert.Equal(t, StepLanguage, d.Step.ID)
	assert.Empty(t, d.Session.Answers)
}

func TestEngineBusy(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 16

	entered := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		errs <- store.Update(ctx, userID, func(s *Session) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	_, err := e.Reply(ctx, userID, "ru")
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-errs)

	// The slot is free again: the same reply now lands.
	d := mustReply(t, e, userID, "ru")
	assert.Equal(t, DecisionAdvance, d.Kind)
}

func TestEngineUnknownStepSurfaces(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 17

	require.NoError(t, store.Update(ctx, userID, func(s *Session) error {
		s.CurrentStep = "ghost"
		return nil
	}))

	_, err := e.Reply(ctx, userID, "ru")
	require.ErrorIs(t, err, ErrUnknownStep)

	// The session stays put for inspection instead of being reset.
	s, ok, err := store.Peek(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepID("ghost"), s.CurrentStep)
}

func TestEngineExpiry(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	reg, err := NewRegistry(DefaultSteps())
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemoryStore(reg.EntryStep(), "ru").WithClock(clock)
	e := NewEngine(reg, store, bundle).WithClock(clock)
	ctx := context.Background()

	mustReply(t, e, 1, "ru")
	now = now.Add(40 * time.Minute)
	mustReply(t, e, 2, "ru")

	removed, err := store.ExpireIdle(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := store.Peek(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "idle session gone")
	_, ok, err = store.Peek(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok, "active session kept")
}

func TestEngineConcurrentRepliesOneWins(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	const userID int64 = 18

	for i := 0; i < 20; i++ {
		results := make(chan error, 2)
		for j := 0; j < 2; j++ {
			go func() {
				_, err := e.Reply(ctx, userID, "ru")
				results <- err
			}()
		}
		busy := 0
		for j := 0; j < 2; j++ {
			if err := <-results; err != nil {
				require.ErrorIs(t, err, ErrBusy)
				busy++
			}
		}
		require.LessOrEqual(t, busy, 1, "at most one loser per round")
		_, err := e.Restart(ctx, userID)
		require.NoError(t, err)
	}
}
