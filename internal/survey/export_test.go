package survey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingspeech/leadbot/internal/i18n"
)

func completedSession(t *testing.T) *Session {
	t.Helper()
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &Session{
		UserID:      42,
		CurrentStep: StepComplete,
		Answers: map[string]string{
			AnswerLanguage:     "ru",
			AnswerGreeting:     "start",
			AnswerName:         "Анна",
			AnswerLevel:        "b1_b2",
			AnswerGoal:         "conversation",
			AnswerFormat:       "online",
			AnswerExpectations: "vocabulary, feedback",
			AnswerStartDate:    "now",
			AnswerPhone:        "+79991234567",
		},
		Language:       "ru",
		CreatedAt:      created,
		LastActivityAt: created.Add(3 * time.Minute),
	}
}

func TestNormalizeTelegramLead(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	s := completedSession(t)
	rec := n.Normalize(s, "anna_k", SourceTelegram)

	assert.Equal(t, "42", rec.TelegramID)
	assert.Equal(t, "anna_k", rec.TelegramUsername)
	assert.Equal(t, "Анна", rec.Name)
	assert.Equal(t, "+79991234567", rec.Phone)
	assert.Equal(t, "English", rec.Language)
	assert.Equal(t, "Средний (B1–B2) 🟡", rec.Level)
	assert.Equal(t, "Разговорный 🗣️", rec.Goal)
	assert.Equal(t, "Онлайн", rec.Format)
	assert.Equal(t, "Разнообразие слов и выражений 📝, Обратную связь 💬", rec.Expectations)
	assert.Equal(t, "Прямо сейчас 🚀", rec.StartDate)
	assert.Equal(t, SourceTelegram, rec.Source)
	assert.Equal(t, "42:1773144000", rec.LeadKey)

	row := rec.Row()
	require.Len(t, row, 12)
	assert.Equal(t, "10.03.2026 12:03", row[0])
	assert.Equal(t, "42", row[1])
	assert.Equal(t, "anna_k", row[2])
	assert.Equal(t, "Анна", row[3])
	assert.Equal(t, "+79991234567", row[4])
	assert.Equal(t, "English", row[5])
	assert.Equal(t, SourceTelegram, row[11])
}

func TestNormalizeIsPure(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	s := completedSession(t)
	first := n.Normalize(s, "anna_k", SourceTelegram)
	second := n.Normalize(s, "anna_k", SourceTelegram)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Row(), second.Row())
}

func TestNormalizeDefaults(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	created := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	s := &Session{
		UserID:         7,
		CurrentStep:    StepComplete,
		Answers:        map[string]string{AnswerName: "Иван", AnswerPhone: "+79990000000"},
		CreatedAt:      created,
		LastActivityAt: created,
	}
	rec := n.Normalize(s, "", SourceTelegram)

	assert.Equal(t, "Не указано", rec.TelegramUsername)
	assert.Equal(t, "Не указано", rec.Level)
	assert.Equal(t, "Не указано", rec.Goal)
	assert.Equal(t, "Не указано", rec.Format)
	assert.Equal(t, "Не указано", rec.Expectations)
	assert.Equal(t, "Не указано", rec.StartDate)
}

func TestNormalizeWebsiteLead(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	s := NewExternalSession(map[string]string{
		AnswerName:  "Мария",
		AnswerPhone: "+79995554433",
		AnswerLevel: "zero",
		"email":     "maria@example.com",
	}, now)
	rec := n.Normalize(s, "", SourceWebsite)

	assert.Equal(t, "Сайт", rec.TelegramID)
	assert.Equal(t, "Landing Form", rec.TelegramUsername)
	assert.Equal(t, "maria@example.com", rec.Email)
	assert.Equal(t, "С нуля 🆕", rec.Level)
	assert.Equal(t, SourceWebsite, rec.Source)
	assert.True(t, strings.HasPrefix(rec.LeadKey, "web:"))
}

func TestNormalizePassesUnknownSlugThrough(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	s := NewExternalSession(map[string]string{
		AnswerName:  "Мария",
		AnswerPhone: "+79995554433",
		AnswerLevel: "Intermediate (self-assessed)",
	}, now)
	rec := n.Normalize(s, "", SourceWebsite)
	assert.Equal(t, "Intermediate (self-assessed)", rec.Level)
}

func TestRecordMonthSheet(t *testing.T) {
	months := map[time.Month]string{
		time.January:  "Январь",
		time.March:    "Март",
		time.December: "Декабрь",
	}
	for month, want := range months {
		rec := Record{Timestamp: time.Date(2026, month, 15, 0, 0, 0, 0, time.UTC)}
		assert.Equal(t, want, rec.MonthSheet())
	}
}

func TestRecordSummary(t *testing.T) {
	bundle, err := i18n.Load()
	require.NoError(t, err)
	n := NewNormalizer(bundle)

	rec := n.Normalize(completedSession(t), "anna_k", SourceTelegram)
	summary := rec.Summary()

	assert.True(t, strings.HasPrefix(summary, "🎯 *Новая заявка: KingSpeech*"))
	assert.Contains(t, summary, "*Имя:* Анна")
	assert.Contains(t, summary, "*Телефон:* +79991234567")
	assert.Contains(t, summary, "*Уровень:* Средний (B1–B2) 🟡")
	assert.Contains(t, summary, "*Telegram ID:* 42")
	assert.Contains(t, summary, "*Username:* anna_k")
}

func TestSessionLeadKeyStable(t *testing.T) {
	s := completedSession(t)
	first := s.LeadKey()
	s.LastActivityAt = s.LastActivityAt.Add(time.Hour)
	assert.Equal(t, first, s.LeadKey(), "key derives from creation, not activity")
}
