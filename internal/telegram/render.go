package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/survey"
)

const progressCells = 8

// Renderer turns engine decisions into message text and keyboards.
type Renderer struct {
	bundle *i18n.Bundle
	reg    *survey.Registry
}

func NewRenderer(bundle *i18n.Bundle, reg *survey.Registry) *Renderer {
	return &Renderer{bundle: bundle, reg: reg}
}

// Prompt renders the step question with its progress bar and keyboard.
func (r *Renderer) Prompt(s *survey.Session, def survey.Definition) (string, *tele.ReplyMarkup) {
	lang := s.Language
	text := r.bundle.Resolve(def.PromptKey, lang)

	// The language step has no progress yet, everything after it does.
	if def.ID != r.reg.EntryStep() {
		pos, total := r.reg.Position(def.ID)
		if pos > 0 {
			text = progressBar(pos, total) + "\n" + text
		}
	}

	var markup *tele.ReplyMarkup
	switch def.Kind {
	case survey.KindChoice:
		markup = choiceKeyboard(r.bundle, def, lang)
	case survey.KindMulti:
		markup = multiKeyboard(r.bundle, def, s, lang)
	case survey.KindContact:
		markup = ContactKeyboard(r.bundle.Resolve("send_phone", lang))
	default:
		markup = RemoveKeyboard()
	}
	return text, markup
}

// Notice resolves a rejection or service notice in the session's language.
func (r *Renderer) Notice(s *survey.Session, key string) string {
	return r.bundle.Resolve(key, s.Language)
}

// Thanks renders the completion message with the user's name substituted.
func (r *Renderer) Thanks(s *survey.Session) string {
	return r.bundle.Resolvef("thanks", s.Language, map[string]string{
		"name": s.Answers[survey.AnswerName],
	})
}

// MultiMarkup re-renders only the toggle keyboard of a multi-choice step.
func (r *Renderer) MultiMarkup(s *survey.Session, def survey.Definition) *tele.ReplyMarkup {
	return multiKeyboard(r.bundle, def, s, s.Language)
}

func progressBar(pos, total int) string {
	if total <= 0 {
		return ""
	}
	filled := pos * progressCells / total
	if filled > progressCells {
		filled = progressCells
	}
	return strings.Repeat("■", filled) + strings.Repeat("□", progressCells-filled)
}
