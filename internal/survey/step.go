// Package survey implements the dialog core: the step catalogue, the per-user
// session store, the transition engine, and the export normalizer. The package
// performs no I/O beyond the session store; transports render its decisions.
package survey

import "strings"

// StepID identifies a survey step.
type StepID string

// StepComplete is the sole terminal sink of the step graph.
const StepComplete StepID = "COMPLETE"

// Kind describes how a step accepts replies.
type Kind string

const (
	// KindChoice accepts exactly one value from a closed option set.
	KindChoice Kind = "choice"
	// KindText accepts free text, subject to the step validator.
	KindText Kind = "text"
	// KindMulti toggles options on and off until the done terminator.
	KindMulti Kind = "multi"
	// KindContact accepts free text or a shared Telegram contact.
	KindContact Kind = "contact"
)

// MultiDone is the reply value that finishes a multi-choice step.
const MultiDone = "done"

// MultiSeparator joins accumulated multi-choice values into one answer.
const MultiSeparator = ", "

// Option is one permissible value of a choice step. Value is the canonical
// slug written into the answer map; LabelKey resolves the display text.
type Option struct {
	Value    string
	LabelKey string
}

// Branch routes to Next when every referenced answer equals the given value.
// Conditions may inspect the just-accepted answer and any earlier one.
type Branch struct {
	When map[string]string
	Next StepID
}

// NextRule is the successor rule of a step, kept as data so the registry can
// statically enumerate every edge of the step graph.
type NextRule struct {
	Branches []Branch
	Default  StepID
}

// Resolve picks the successor for the given answer map. The map must already
// contain the answer accepted in the current transition.
func (r NextRule) Resolve(answers map[string]string) StepID {
	for _, b := range r.Branches {
		matched := true
		for key, want := range b.When {
			if answers[key] != want {
				matched = false
				break
			}
		}
		if matched {
			return b.Next
		}
	}
	return r.Default
}

// Targets returns every step id the rule can resolve to.
func (r NextRule) Targets() []StepID {
	out := make([]StepID, 0, len(r.Branches)+1)
	for _, b := range r.Branches {
		out = append(out, b.Next)
	}
	out = append(out, r.Default)
	return out
}

// Validator checks a raw reply and returns the accepted value, or a non-empty
// localization key explaining the rejection. Validators are pure so replaying
// a reply always produces the same accepted value.
type Validator func(raw string) (accepted string, noticeKey string)

// Definition is one immutable step of the survey.
type Definition struct {
	ID        StepID
	PromptKey string
	// AnswerKey is the answer-map key the accepted value is stored under.
	AnswerKey string
	Kind      Kind
	Options   []Option
	// Validate is required for text and contact steps, ignored for choice steps.
	Validate Validator
	Next     NextRule
}

// NormalizeReply canonicalizes a raw reply for option matching: trimmed,
// lower-cased, inner whitespace collapsed.
func NormalizeReply(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
