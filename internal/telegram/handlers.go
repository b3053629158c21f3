package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/leads"
	"github.com/kingspeech/leadbot/internal/logger"
	"github.com/kingspeech/leadbot/internal/survey"
)

// Handlers binds the survey engine and the export pipeline to bot endpoints.
type Handlers struct {
	engine     *survey.Engine
	pipeline   *leads.Pipeline
	renderer   *Renderer
	bundle     *i18n.Bundle
	dispatcher *Dispatcher
}

func NewHandlers(engine *survey.Engine, pipeline *leads.Pipeline, bundle *i18n.Bundle, dispatcher *Dispatcher) *Handlers {
	return &Handlers{
		engine:     engine,
		pipeline:   pipeline,
		renderer:   NewRenderer(bundle, engine.Registry()),
		bundle:     bundle,
		dispatcher: dispatcher,
	}
}

// Routes returns the bot handler bindings.
func (h *Handlers) Routes() []Route {
	return []Route{
		{Endpoint: "/start", Handler: h.onStart},
		{Endpoint: "/restart", Handler: h.onStart},
		{Endpoint: "/language", Handler: h.onLanguage},
		{Endpoint: "/help", Handler: h.onHelp},
		{Endpoint: tele.OnText, Handler: h.onText},
		{Endpoint: tele.OnContact, Handler: h.onContact},
		{Endpoint: tele.OnCallback, Handler: h.onCallback},
	}
}

// OnLimited is the rate limit notice handler.
func (h *Handlers) OnLimited(c tele.Context) error {
	return h.send(c, requestContext(c), "send.rate_limited",
		h.bundle.Resolve("rate_limited", h.sessionLang(c)))
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := logger.WithHandler(requestContext(c), "start")
	d, err := h.engine.Restart(ctx, c.Sender().ID)
	if err != nil {
		return h.fail(c, ctx, err)
	}
	text, markup := h.renderer.Prompt(d.Session, d.Step)
	return h.send(c, ctx, "send.prompt", text, markup)
}

func (h *Handlers) onLanguage(c tele.Context) error {
	ctx := logger.WithHandler(requestContext(c), "language")
	d, err := h.engine.JumpTo(ctx, c.Sender().ID, survey.StepLanguage)
	if err != nil {
		return h.fail(c, ctx, err)
	}
	text, markup := h.renderer.Prompt(d.Session, d.Step)
	return h.send(c, ctx, "send.prompt", text, markup)
}

func (h *Handlers) onHelp(c tele.Context) error {
	ctx := logger.WithHandler(requestContext(c), "help")
	return h.send(c, ctx, "send.help", h.bundle.Resolve("help", h.sessionLang(c)))
}

func (h *Handlers) onText(c tele.Context) error {
	return h.process(c, logger.WithHandler(requestContext(c), "text"), c.Text())
}

func (h *Handlers) onContact(c tele.Context) error {
	ctx := logger.WithHandler(requestContext(c), "contact")
	contact := c.Message().Contact
	if contact == nil {
		return nil
	}
	return h.process(c, ctx, contact.PhoneNumber)
}

func (h *Handlers) onCallback(c tele.Context) error {
	ctx := logger.WithHandler(requestContext(c), "callback")
	defer func() { _ = c.Respond() }()

	data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))
	if data == "" {
		return nil
	}
	return h.process(c, ctx, data)
}

// process runs one reply through the engine and renders the decision.
func (h *Handlers) process(c tele.Context, ctx context.Context, raw string) error {
	userID := c.Sender().ID

	d, err := h.engine.Reply(ctx, userID, raw)
	switch {
	case errors.Is(err, survey.ErrBusy):
		logger.Warn(ctx, "tg", "reply.busy",
			slog.String("status", "busy"),
			slog.Int64("user_id", userID),
		)
		return h.send(c, ctx, "send.busy", h.bundle.Resolve("busy", h.sessionLang(c)))
	case errors.Is(err, survey.ErrCompleted):
		return h.send(c, ctx, "send.help", h.bundle.Resolve("help", h.sessionLang(c)))
	case err != nil:
		return h.fail(c, ctx, err)
	}

	switch d.Kind {
	case survey.DecisionReprompt:
		text, markup := h.renderer.Prompt(d.Session, d.Step)
		text = h.renderer.Notice(d.Session, d.NoticeKey) + "\n\n" + text
		return h.send(c, ctx, "send.reprompt", text, markup)

	case survey.DecisionRefresh:
		if c.Callback() != nil {
			markup := h.renderer.MultiMarkup(d.Session, d.Step)
			return h.edit(c, ctx, "edit.toggle", markup)
		}
		text, markup := h.renderer.Prompt(d.Session, d.Step)
		return h.send(c, ctx, "send.prompt", text, markup)

	case survey.DecisionAdvance:
		text, markup := h.renderer.Prompt(d.Session, d.Step)
		return h.send(c, ctx, "send.prompt", text, markup)

	case survey.DecisionComplete:
		return h.complete(c, ctx, d)
	}
	return nil
}

// complete thanks the user and hands the finished session to the export
// pipeline. The thanks message is sent first so a slow export never delays
// the user-facing reply.
func (h *Handlers) complete(c tele.Context, ctx context.Context, d survey.Decision) error {
	if err := h.send(c, ctx, "send.thanks", h.renderer.Thanks(d.Session), RemoveKeyboard()); err != nil {
		logger.Warn(ctx, "tg", "send.thanks",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	username := ""
	if c.Sender() != nil {
		username = c.Sender().Username
	}
	if _, err := h.pipeline.Export(ctx, d.Session, username, survey.SourceTelegram); err != nil {
		return h.send(c, ctx, "send.error", h.bundle.Resolve("error_generic", d.Session.Language))
	}
	return nil
}

func (h *Handlers) fail(c tele.Context, ctx context.Context, err error) error {
	logger.Error(ctx, "tg", "handler.fail",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return h.send(c, ctx, "send.error", h.bundle.Resolve("error_generic", h.sessionLang(c)))
}

// sessionLang peeks at the user's stored language, falling back to defaults
// when no session exists.
func (h *Handlers) sessionLang(c tele.Context) string {
	if c.Sender() == nil {
		return ""
	}
	s, ok, err := h.engine.Session(requestContext(c), c.Sender().ID)
	if err != nil || !ok {
		return ""
	}
	return s.Language
}

// send routes outbound messages through the async dispatcher, falling back
// to a synchronous send when the queue is unavailable.
func (h *Handlers) send(c tele.Context, ctx context.Context, action string, what any, opts ...any) error {
	err := h.dispatcher.Enqueue(ctx, action, func() error {
		return c.Send(what, opts...)
	})
	if err != nil {
		return c.Send(what, opts...)
	}
	return nil
}

func (h *Handlers) edit(c tele.Context, ctx context.Context, action string, markup *tele.ReplyMarkup) error {
	err := h.dispatcher.Enqueue(ctx, action, func() error {
		return c.Edit(markup)
	})
	if err != nil {
		return c.Edit(markup)
	}
	return nil
}
