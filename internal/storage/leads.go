package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kingspeech/leadbot/internal/logger"
	"github.com/kingspeech/leadbot/internal/survey"
)

// LeadStore persists normalized leads. Appends are idempotent on lead_key so
// a retried export never duplicates a row.
type LeadStore struct {
	db *sqlx.DB
}

type leadRow struct {
	LeadKey          string    `db:"lead_key"`
	SubmittedAt      time.Time `db:"submitted_at"`
	Month            string    `db:"month"`
	TelegramID       string    `db:"telegram_id"`
	TelegramUsername string    `db:"telegram_username"`
	Name             string    `db:"name"`
	Phone            string    `db:"phone"`
	Language         string    `db:"language"`
	Level            string    `db:"level"`
	Goal             string    `db:"goal"`
	Format           string    `db:"format"`
	Expectations     string    `db:"expectations"`
	StartDate        string    `db:"start_date"`
	Email            string    `db:"email"`
	Source           string    `db:"source"`
}

func NewLeadStore(db *sqlx.DB) *LeadStore {
	return &LeadStore{db: db}
}

// Append inserts the lead, silently skipping a key already present.
func (s *LeadStore) Append(ctx context.Context, rec survey.Record) error {
	row := leadRow{
		LeadKey:          rec.LeadKey,
		SubmittedAt:      rec.Timestamp,
		Month:            rec.MonthSheet(),
		TelegramID:       rec.TelegramID,
		TelegramUsername: rec.TelegramUsername,
		Name:             rec.Name,
		Phone:            rec.Phone,
		Language:         rec.Language,
		Level:            rec.Level,
		Goal:             rec.Goal,
		Format:           rec.Format,
		Expectations:     rec.Expectations,
		StartDate:        rec.StartDate,
		Email:            rec.Email,
		Source:           rec.Source,
	}

	start := time.Now()
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO leads (
			lead_key, submitted_at, month, telegram_id, telegram_username,
			name, phone, language, level, goal, format, expectations,
			start_date, email, source
		) VALUES (
			:lead_key, :submitted_at, :month, :telegram_id, :telegram_username,
			:name, :phone, :language, :level, :goal, :format, :expectations,
			:start_date, :email, :source
		)
		ON CONFLICT (lead_key) DO NOTHING`, row)
	if err != nil {
		return fmt.Errorf("append lead: %w", err)
	}

	inserted, _ := res.RowsAffected()
	logger.DB.Info("lead stored",
		slog.String("event", "lead.append"),
		slog.String("lead_key", rec.LeadKey),
		slog.String("source", rec.Source),
		slog.Bool("duplicate", inserted == 0),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// ListByMonth returns the month's leads in submission order, the monthly
// sheet view used by staff exports.
func (s *LeadStore) ListByMonth(ctx context.Context, month string) ([]survey.Record, error) {
	var rows []leadRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT lead_key, submitted_at, month, telegram_id, telegram_username,
			name, phone, language, level, goal, format, expectations,
			start_date, email, source
		FROM leads WHERE month = $1 ORDER BY submitted_at`, month)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	out := make([]survey.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, survey.Record{
			LeadKey:          r.LeadKey,
			Timestamp:        r.SubmittedAt,
			TelegramID:       r.TelegramID,
			TelegramUsername: r.TelegramUsername,
			Name:             r.Name,
			Phone:            r.Phone,
			Language:         r.Language,
			Level:            r.Level,
			Goal:             r.Goal,
			Format:           r.Format,
			Expectations:     r.Expectations,
			StartDate:        r.StartDate,
			Email:            r.Email,
			Source:           r.Source,
		})
	}
	return out, nil
}
