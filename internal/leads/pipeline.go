// Package leads connects completed surveys to persistence and the staff
// chat. Persistence is authoritative; notification is best effort.
package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingspeech/leadbot/internal/logger"
	"github.com/kingspeech/leadbot/internal/survey"
)

// Store persists normalized leads idempotently on their lead key.
type Store interface {
	Append(ctx context.Context, rec survey.Record) error
}

// Notifier delivers the lead summary to the staff chat.
type Notifier interface {
	NotifyLead(ctx context.Context, rec survey.Record) error
}

// Pipeline normalizes completed sessions and fans them out to the store and
// the notifier.
type Pipeline struct {
	normalizer *survey.Normalizer
	store      Store
	notifier   Notifier
}

func NewPipeline(normalizer *survey.Normalizer, store Store, notifier Notifier) *Pipeline {
	return &Pipeline{normalizer: normalizer, store: store, notifier: notifier}
}

// Export persists the completed session's lead and notifies the staff chat.
// A notify failure is logged and swallowed: the lead is already stored and a
// retry would only duplicate the message.
func (p *Pipeline) Export(ctx context.Context, s *survey.Session, username, source string) (survey.Record, error) {
	rec := p.normalizer.Normalize(s, username, source)

	start := time.Now()
	if err := p.store.Append(ctx, rec); err != nil {
		logger.Error(ctx, "leads", "lead.export",
			slog.String("status", "fail"),
			slog.String("lead_key", rec.LeadKey),
			slog.String("source", rec.Source),
			slog.String("err", err.Error()),
		)
		return survey.Record{}, fmt.Errorf("export lead %s: %w", rec.LeadKey, err)
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyLead(ctx, rec); err != nil {
			logger.Warn(ctx, "leads", "lead.notify",
				slog.String("status", "fail"),
				slog.String("lead_key", rec.LeadKey),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.Info(ctx, "leads", "lead.export",
		slog.String("status", "ok"),
		slog.String("lead_key", rec.LeadKey),
		slog.String("source", rec.Source),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return rec, nil
}
