package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/survey"
)

const selectedMark = "✅ "

// RemoveKeyboard returns a markup that hides the reply keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// ContactKeyboard builds a one-button reply keyboard requesting the user's
// phone contact.
func ContactKeyboard(label string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	markup.Reply(markup.Row(markup.Contact(label)))
	return markup
}

// choiceKeyboard renders a choice step's options as a reply keyboard, two
// buttons per row.
func choiceKeyboard(bundle *i18n.Bundle, def survey.Definition, lang string) *tele.ReplyMarkup {
	labels := make([]string, 0, len(def.Options))
	for _, opt := range def.Options {
		labels = append(labels, bundle.Resolve(opt.LabelKey, lang))
	}

	var rows [][]string
	for i := 0; i < len(labels); i += 2 {
		end := i + 2
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[i:end])
	}
	return ReplyButtons(rows...)
}

// multiKeyboard renders a multi-choice step as an inline toggle keyboard.
// Selected options carry a checkmark; the done button closes the step.
func multiKeyboard(bundle *i18n.Bundle, def survey.Definition, s *survey.Session, lang string) *tele.ReplyMarkup {
	selected := make(map[string]bool)
	for _, v := range survey.SelectedMulti(s.Answers[def.AnswerKey]) {
		selected[v] = true
	}

	markup := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(def.Options)+1)
	for _, opt := range def.Options {
		label := bundle.Resolve(opt.LabelKey, lang)
		if selected[opt.Value] {
			label = selectedMark + label
		}
		rows = append(rows, []tele.InlineButton{{Text: label, Data: opt.Value}})
	}
	rows = append(rows, []tele.InlineButton{{
		Text: bundle.Resolve("done", lang),
		Data: survey.MultiDone,
	}})
	markup.InlineKeyboard = rows
	return markup
}
