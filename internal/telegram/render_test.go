package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/kingspeech/leadbot/internal/i18n"
	"github.com/kingspeech/leadbot/internal/survey"
)

func newTestRenderer(t *testing.T) (*Renderer, *survey.Registry, *i18n.Bundle) {
	t.Helper()
	bundle, err := i18n.Load()
	if err != nil {
		t.Fatalf("load locales: %v", err)
	}
	reg, err := survey.NewRegistry(survey.DefaultSteps())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return NewRenderer(bundle, reg), reg, bundle
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pos, total int
		want       string
	}{
		{1, 9, "□□□□□□□□"},
		{5, 9, "■■■■□□□□"},
		{9, 9, "■■■■■■■■"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.pos, tt.total); got != tt.want {
			t.Errorf("progressBar(%d, %d) = %q, want %q", tt.pos, tt.total, got, tt.want)
		}
	}
}

func TestPromptChoiceStep(t *testing.T) {
	r, reg, bundle := newTestRenderer(t)

	s := survey.NewSession(1, reg.EntryStep(), "ru", time.Now())
	s.CurrentStep = survey.StepLevel
	def, _ := reg.Get(survey.StepLevel)

	text, markup := r.Prompt(s, def)
	if !strings.Contains(text, bundle.Resolve("ask_level", "ru")) {
		t.Fatalf("prompt text missing question: %q", text)
	}
	if !strings.Contains(text, "■") {
		t.Fatalf("prompt text missing progress bar: %q", text)
	}
	if markup == nil || len(markup.ReplyKeyboard) == 0 {
		t.Fatal("choice step must render a reply keyboard")
	}
}

func TestPromptEntryStepHasNoProgress(t *testing.T) {
	r, reg, _ := newTestRenderer(t)

	s := survey.NewSession(1, reg.EntryStep(), "ru", time.Now())
	def, _ := reg.Get(reg.EntryStep())

	text, _ := r.Prompt(s, def)
	if strings.Contains(text, "□") || strings.Contains(text, "■") {
		t.Fatalf("entry prompt must not carry a progress bar: %q", text)
	}
}

func TestPromptMultiStepMarksSelections(t *testing.T) {
	r, reg, bundle := newTestRenderer(t)

	s := survey.NewSession(1, reg.EntryStep(), "ru", time.Now())
	s.CurrentStep = survey.StepExpectations
	s.Answers[survey.AnswerExpectations] = "vocabulary"
	def, _ := reg.Get(survey.StepExpectations)

	_, markup := r.Prompt(s, def)
	if markup == nil || len(markup.InlineKeyboard) != len(def.Options)+1 {
		t.Fatal("multi step must render inline options plus done")
	}

	vocabLabel := bundle.Resolve("expect.vocabulary", "ru")
	found := false
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.Data == "vocabulary" {
				found = true
				if btn.Text != selectedMark+vocabLabel {
					t.Fatalf("selected option not marked: %q", btn.Text)
				}
			}
		}
	}
	if !found {
		t.Fatal("vocabulary option missing from keyboard")
	}

	last := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	if len(last) != 1 || last[0].Data != survey.MultiDone {
		t.Fatal("last row must be the done button")
	}
}

func TestPromptContactStep(t *testing.T) {
	r, reg, _ := newTestRenderer(t)

	s := survey.NewSession(1, reg.EntryStep(), "ru", time.Now())
	s.CurrentStep = survey.StepPhone
	def, _ := reg.Get(survey.StepPhone)

	_, markup := r.Prompt(s, def)
	if markup == nil || len(markup.ReplyKeyboard) == 0 {
		t.Fatal("contact step must render a reply keyboard")
	}
	if !markup.ReplyKeyboard[0][0].Contact {
		t.Fatal("contact step button must request the contact")
	}
}

func TestPromptUsesSessionLanguage(t *testing.T) {
	r, reg, bundle := newTestRenderer(t)

	s := survey.NewSession(1, reg.EntryStep(), "ru", time.Now())
	s.Language = "en"
	s.CurrentStep = survey.StepName
	def, _ := reg.Get(survey.StepName)

	text, _ := r.Prompt(s, def)
	if !strings.Contains(text, bundle.Resolve("ask_name", "en")) {
		t.Fatalf("prompt not localized to en: %q", text)
	}
}
