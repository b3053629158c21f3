package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	tele "gopkg.in/telebot.v4"

	"github.com/kingspeech/leadbot/internal/config"
	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/leads"
	"github.com/kingspeech/leadbot/internal/logger"
	"github.com/kingspeech/leadbot/internal/storage"
	"github.com/kingspeech/leadbot/internal/survey"
	"github.com/kingspeech/leadbot/internal/telegram"
	"github.com/kingspeech/leadbot/internal/webhook"
)

const expirySweepInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("leadbot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}
	for lang, keys := range bundle.MissingKeys() {
		preview, _ := logger.SummarizeStrings(keys, 6)
		logger.L.Warn("locale keys missing",
			slog.String("component", "i18n"),
			slog.String("event", "i18n.check"),
			slog.String("lang", lang),
			slog.Int("count", len(keys)),
			slog.String("keys_preview", preview),
		)
	}

	defs, err := survey.ApplyBranchRules(survey.DefaultSteps(), branchRules(cfg))
	if err != nil {
		return fmt.Errorf("apply branch rules: %w", err)
	}
	reg, err := survey.NewRegistry(defs)
	if err != nil {
		return fmt.Errorf("build step registry: %w", err)
	}

	db, err := storage.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := storage.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var sessions survey.Store
	switch cfg.Survey.Store {
	case config.SessionStorePostgres:
		sessions = storage.NewSessionStore(db, reg.EntryStep(), cfg.Survey.FallbackLanguage)
	default:
		sessions = survey.NewMemoryStore(reg.EntryStep(), cfg.Survey.FallbackLanguage)
	}

	engine := survey.NewEngine(reg, sessions, bundle)
	normalizer := survey.NewNormalizer(bundle)
	leadStore := storage.NewLeadStore(db)
	sessionTTL := time.Duration(cfg.Survey.SessionTTLMinutes) * time.Minute

	startedAt := time.Now()
	var pipeline *leads.Pipeline

	runOpts := telegram.RunOptions{
		Config: cfg,
		Setup: func(bot *tele.Bot, dispatcher *telegram.Dispatcher) ([]telegram.Middleware, []telegram.Route, error) {
			notifier := telegram.NewChatNotifier(bot, cfg.Leads.ChatID, dispatcher)
			pipeline = leads.NewPipeline(normalizer, leadStore, notifier)
			handlers := telegram.NewHandlers(engine, pipeline, bundle, dispatcher)
			return telegram.DefaultMiddlewares(cfg, handlers.OnLimited), handlers.Routes(), nil
		},
		OnStart: func(ctx context.Context) error {
			go engine.RunExpiry(ctx, expirySweepInterval, sessionTTL)

			if cfg.LeadWebhook.Enabled() {
				server := webhook.NewServer(cfg.LeadWebhook, pipeline)
				go func() {
					if err := server.Run(ctx); err != nil {
						logger.Error(ctx, "web", "web.serve",
							slog.String("status", "fail"),
							slog.String("err", err.Error()),
						)
					}
				}()
			}

			logger.L.With("component", "app").Info("app ready",
				slog.String("event", "ready"),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.L.With("component", "app").Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return telegram.RunTelegram(ctx, runOpts)
}

func branchRules(cfg *config.Config) []survey.BranchRule {
	rules := make([]survey.BranchRule, 0, len(cfg.Survey.Branches))
	for _, r := range cfg.Survey.Branches {
		rules = append(rules, survey.BranchRule{
			Step: survey.StepID(r.Step),
			When: r.When,
			Next: survey.StepID(r.Next),
		})
	}
	return rules
}
