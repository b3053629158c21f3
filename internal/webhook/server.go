// Package webhook accepts leads submitted by the landing page form and feeds
// them into the export pipeline as externally assembled sessions.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kingspeech/leadbot/internal/config"
	"github.com/kingspeech/leadbot/internal/leads"
	"github.com/kingspeech/leadbot/internal/logger"
	"github.com/kingspeech/leadbot/internal/survey"
)

// Server is the HTTP ingress for website leads.
type Server struct {
	secret   string
	pipeline *leads.Pipeline
	clock    func() time.Time
	srv      *http.Server
}

func NewServer(cfg config.LeadWebhookConfig, pipeline *leads.Pipeline) *Server {
	s := &Server{
		secret:   cfg.Secret,
		pipeline: pipeline,
		clock:    time.Now,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Listen, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// WithClock overrides the time source, for tests.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Handler builds the router. Exposed separately so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/webhook/lead", s.handleLead)
	r.Get("/healthz", s.handleHealth)
	r.Get("/webhook/health", s.handleHealth)
	return r
}

// Run serves until ctx is done, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "web", "web.listen",
			slog.String("addr", s.srv.Addr),
		)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("webhook serve: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.authorized(r) {
		logger.Warn(ctx, "web", "web.lead",
			slog.String("status", "rejected"),
			slog.String("reason", "bad secret"),
		)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}

	fields, err := parsePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid payload"})
		return
	}
	if fields[survey.AnswerName] == "" || fields[survey.AnswerPhone] == "" {
		logger.Warn(ctx, "web", "web.lead",
			slog.String("status", "rejected"),
			slog.String("reason", "missing required fields"),
		)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid data"})
		return
	}

	// Normalize the phone when it matches the expected format; free-form
	// numbers from the landing page pass through untouched.
	if normalized, notice := survey.ValidatePhone(fields[survey.AnswerPhone]); notice == "" {
		fields[survey.AnswerPhone] = normalized
	}

	session := survey.NewExternalSession(fields, s.clock())
	rec, err := s.pipeline.Export(ctx, session, "", survey.SourceWebsite)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Lead processed with errors",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Lead successfully processed",
		"lead_key": rec.LeadKey,
	})
}

func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	want := "Bearer " + s.secret
	return subtle.ConstantTimeCompare([]byte(auth), []byte(want)) == 1
}

// parsePayload reads a JSON or form body into the answers contract. The
// landing form's legacy field names map onto the survey answer keys.
func parsePayload(r *http.Request) (map[string]string, error) {
	raw := make(map[string]string)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		for k, v := range body {
			if sv, ok := v.(string); ok {
				raw[k] = strings.TrimSpace(sv)
			}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		for k := range r.PostForm {
			raw[k] = strings.TrimSpace(r.PostForm.Get(k))
		}
	}

	fields := map[string]string{
		survey.AnswerName:         raw["name"],
		survey.AnswerPhone:        raw["phone"],
		survey.AnswerLevel:        raw["level"],
		survey.AnswerGoal:         firstNonEmpty(raw["goal"], raw["goals"]),
		survey.AnswerFormat:       raw["format"],
		survey.AnswerExpectations: raw["expectations"],
		survey.AnswerStartDate:    firstNonEmpty(raw["start_date"], raw["schedule"]),
		"email":                   raw["email"],
	}
	if lang := raw["language"]; lang != "" {
		fields[survey.AnswerLanguage] = lang
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
