package survey

import "fmt"

// Answer-map keys referenced across the catalogue, the export normalizer and
// webhook payloads.
const (
	AnswerLanguage     = "language"
	AnswerGreeting     = "greeting"
	AnswerName         = "name"
	AnswerLevel        = "level"
	AnswerGoal         = "goal"
	AnswerFormat       = "format"
	AnswerExpectations = "expectations"
	AnswerStartDate    = "start_date"
	AnswerPhone        = "phone"
)

// Step ids of the default lead survey.
const (
	StepLanguage     StepID = "language"
	StepGreeting     StepID = "greeting"
	StepName         StepID = "name"
	StepLevel        StepID = "level"
	StepGoal         StepID = "goal"
	StepFormat       StepID = "format"
	StepExpectations StepID = "expectations"
	StepStartDate    StepID = "start_date"
	StepPhone        StepID = "phone"
)

// BranchRule is the configuration form of a conditional edge: at Step, when
// every answer in When matches, route to Next instead of the default
// successor. Skip conditions live in configuration, not in engine code.
type BranchRule struct {
	Step StepID
	When map[string]string
	Next StepID
}

// DefaultSteps returns the lead survey catalogue in order. The shipped
// default branch skips the expectations step for children's courses.
func DefaultSteps() []Definition {
	return []Definition{
		{
			ID:        StepLanguage,
			PromptKey: "choose_language",
			AnswerKey: AnswerLanguage,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "ru", LabelKey: "language.ru"},
				{Value: "en", LabelKey: "language.en"},
			},
			Next: NextRule{Default: StepGreeting},
		},
		{
			ID:        StepGreeting,
			PromptKey: "start_greeting",
			AnswerKey: AnswerGreeting,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "start", LabelKey: "start_button"},
			},
			Next: NextRule{Default: StepName},
		},
		{
			ID:        StepName,
			PromptKey: "ask_name",
			AnswerKey: AnswerName,
			Kind:      KindText,
			Validate:  ValidateName,
			Next:      NextRule{Default: StepLevel},
		},
		{
			ID:        StepLevel,
			PromptKey: "ask_level",
			AnswerKey: AnswerLevel,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "zero", LabelKey: "level.zero"},
				{Value: "a1_a2", LabelKey: "level.a1_a2"},
				{Value: "b1_b2", LabelKey: "level.b1_b2"},
				{Value: "c1_c2", LabelKey: "level.c1_c2"},
				{Value: "unsure", LabelKey: "level.unsure"},
			},
			Next: NextRule{Default: StepGoal},
		},
		{
			ID:        StepGoal,
			PromptKey: "ask_goal",
			AnswerKey: AnswerGoal,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "general", LabelKey: "goal.general"},
				{Value: "conversation", LabelKey: "goal.conversation"},
				{Value: "travel", LabelKey: "goal.travel"},
				{Value: "business", LabelKey: "goal.business"},
				{Value: "exams", LabelKey: "goal.exams"},
				{Value: "kids", LabelKey: "goal.kids"},
				{Value: "other", LabelKey: "goal.other"},
			},
			Next: NextRule{Default: StepFormat},
		},
		{
			ID:        StepFormat,
			PromptKey: "ask_format",
			AnswerKey: AnswerFormat,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "individual", LabelKey: "format.individual"},
				{Value: "pair", LabelKey: "format.pair"},
				{Value: "group", LabelKey: "format.group"},
				{Value: "online", LabelKey: "format.online"},
			},
			Next: NextRule{
				Branches: []Branch{
					{When: map[string]string{AnswerGoal: "kids"}, Next: StepStartDate},
				},
				Default: StepExpectations,
			},
		},
		{
			ID:        StepExpectations,
			PromptKey: "ask_expectations",
			AnswerKey: AnswerExpectations,
			Kind:      KindMulti,
			Options: []Option{
				{Value: "vocabulary", LabelKey: "expect.vocabulary"},
				{Value: "plateau", LabelKey: "expect.plateau"},
				{Value: "tasks", LabelKey: "expect.tasks"},
				{Value: "feedback", LabelKey: "expect.feedback"},
				{Value: "ease", LabelKey: "expect.ease"},
				{Value: "other", LabelKey: "expect.other"},
			},
			Next: NextRule{Default: StepStartDate},
		},
		{
			ID:        StepStartDate,
			PromptKey: "ask_start_date",
			AnswerKey: AnswerStartDate,
			Kind:      KindChoice,
			Options: []Option{
				{Value: "now", LabelKey: "start.now"},
				{Value: "next_week", LabelKey: "start.next_week"},
				{Value: "few_weeks", LabelKey: "start.few_weeks"},
				{Value: "undecided", LabelKey: "start.undecided"},
			},
			Next: NextRule{Default: StepPhone},
		},
		{
			ID:        StepPhone,
			PromptKey: "ask_phone",
			AnswerKey: AnswerPhone,
			Kind:      KindContact,
			Validate:  ValidatePhone,
			Next:      NextRule{Default: StepComplete},
		},
	}
}

// ApplyBranchRules prepends configured branches to the affected steps so
// configuration rules win over shipped defaults. Unknown step references are
// configuration errors.
func ApplyBranchRules(defs []Definition, rules []BranchRule) ([]Definition, error) {
	if len(rules) == 0 {
		return defs, nil
	}
	index := make(map[StepID]int, len(defs))
	for i, def := range defs {
		index[def.ID] = i
	}
	for _, rule := range rules {
		i, ok := index[rule.Step]
		if !ok {
			return nil, fmt.Errorf("survey: branch rule references unknown step %q", rule.Step)
		}
		if rule.Next != StepComplete {
			if _, ok := index[rule.Next]; !ok {
				return nil, fmt.Errorf("survey: branch rule on %q routes to unknown step %q", rule.Step, rule.Next)
			}
		}
		when := make(map[string]string, len(rule.When))
		for k, v := range rule.When {
			when[k] = v
		}
		branch := Branch{When: when, Next: rule.Next}
		defs[i].Next.Branches = append([]Branch{branch}, defs[i].Next.Branches...)
	}
	return defs, nil
}
