package survey

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingspeech/leadbot/internal/i18n"
)

// Lead sources.
const (
	SourceTelegram = "telegram"
	SourceWebsite  = "website"
)

// TimestampLayout is the spreadsheet-facing time format.
const TimestampLayout = "02.01.2006 15:04"

// Placeholder identity for leads arriving from the landing page form.
const (
	websiteID       = "Сайт"
	websiteUsername = "Landing Form"
)

var monthNames = []string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// Record is a normalized lead ready for persistence and notification. All
// display values are resolved to Russian labels here so downstream writers
// stay format-agnostic.
type Record struct {
	Timestamp        time.Time
	TelegramID       string
	TelegramUsername string
	Name             string
	Phone            string
	Language         string
	Level            string
	Goal             string
	Format           string
	Expectations     string
	StartDate        string
	Email            string
	Source           string
	LeadKey          string
}

// Normalizer converts completed sessions into export records. Pure: it reads
// the session and the localization bundle, nothing else.
type Normalizer struct {
	bundle *i18n.Bundle
}

func NewNormalizer(bundle *i18n.Bundle) *Normalizer {
	return &Normalizer{bundle: bundle}
}

// Normalize builds the record for a completed session. username is the
// Telegram handle when the lead came through the bot; external sessions pass
// an empty username and SourceWebsite.
func (n *Normalizer) Normalize(s *Session, username, source string) Record {
	notSpecified := n.bundle.Resolve("not_specified", i18n.DefaultLanguage)

	rec := Record{
		Timestamp:    s.LastActivityAt,
		Name:         textOr(s.Answers[AnswerName], notSpecified),
		Phone:        textOr(s.Answers[AnswerPhone], notSpecified),
		Language:     "English",
		Level:        n.label("level.", s.Answers[AnswerLevel], notSpecified),
		Goal:         n.label("goal.", s.Answers[AnswerGoal], notSpecified),
		Format:       n.label("format.", s.Answers[AnswerFormat], notSpecified),
		Expectations: n.labelMulti("expect.", s.Answers[AnswerExpectations], notSpecified),
		StartDate:    n.label("start.", s.Answers[AnswerStartDate], notSpecified),
		Email:        textOr(s.Answers["email"], notSpecified),
		Source:       source,
		LeadKey:      s.LeadKey(),
	}

	if source == SourceWebsite {
		rec.TelegramID = websiteID
		rec.TelegramUsername = websiteUsername
	} else {
		rec.TelegramID = strconv.FormatInt(s.UserID, 10)
		rec.TelegramUsername = textOr(username, notSpecified)
	}
	return rec
}

// Row returns the record as an ordered spreadsheet row.
func (r Record) Row() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.TelegramID,
		r.TelegramUsername,
		r.Name,
		r.Phone,
		r.Language,
		r.Level,
		r.Goal,
		r.Format,
		r.Expectations,
		r.StartDate,
		r.Source,
	}
}

// MonthSheet returns the Russian month name of the completion time, the
// grouping key for monthly lead sheets.
func (r Record) MonthSheet() string {
	return monthNames[r.Timestamp.Month()-1]
}

// Summary renders the staff-chat notification in Markdown.
func (r Record) Summary() string {
	return fmt.Sprintf(`🎯 *Новая заявка: KingSpeech*

👤 *Имя:* %s
📧 *Email:* %s
📱 *Телефон:* %s
💬 *Мессенджер:* Telegram
🌐 *Страница:* https://t.me/kingspeechbot
🔗 *Реферер:* @kingspeechbot

📊 *Детали заявки:*
• *Уровень:* %s
• *Цель:* %s
• *Формат:* %s
• *Ожидания:* %s
• *Дата начала:* %s

🆔 *Telegram ID:* %s
👤 *Username:* %s`,
		r.Name, r.Email, r.Phone,
		r.Level, r.Goal, r.Format, r.Expectations, r.StartDate,
		r.TelegramID, r.TelegramUsername)
}

// label resolves a canonical slug to its Russian display label. A slug
// without a translation entry passes through verbatim so webhook-supplied
// free text survives.
func (n *Normalizer) label(prefix, slug, fallback string) string {
	if slug == "" {
		return fallback
	}
	key := prefix + slug
	if n.bundle.Has(key, i18n.DefaultLanguage) {
		return n.bundle.Resolve(key, i18n.DefaultLanguage)
	}
	return slug
}

func (n *Normalizer) labelMulti(prefix, answer, fallback string) string {
	values := SelectedMulti(answer)
	if len(values) == 0 {
		return fallback
	}
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = n.label(prefix, v, fallback)
	}
	return strings.Join(labels, MultiSeparator)
}

func textOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
