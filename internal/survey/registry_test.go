package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textStep(id, next StepID) Definition {
	return Definition{
		ID:        id,
		PromptKey: "ask_" + string(id),
		AnswerKey: string(id),
		Kind:      KindText,
		Validate:  ValidateName,
		Next:      NextRule{Default: next},
	}
}

func TestNewRegistryDefaultCatalogue(t *testing.T) {
	reg, err := NewRegistry(DefaultSteps())
	require.NoError(t, err)

	assert.Equal(t, StepLanguage, reg.EntryStep())

	pos, total := reg.Position(StepName)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 9, total)

	def, ok := reg.Get(StepPhone)
	require.True(t, ok)
	assert.Equal(t, KindContact, def.Kind)
}

func TestNewRegistryRejectsCycle(t *testing.T) {
	_, err := NewRegistry([]Definition{
		textStep("a", "b"),
		textStep("b", "a"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewRegistryRejectsUnknownTarget(t *testing.T) {
	_, err := NewRegistry([]Definition{
		textStep("a", "nowhere"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestNewRegistryRejectsUnreachableStep(t *testing.T) {
	_, err := NewRegistry([]Definition{
		textStep("a", StepComplete),
		textStep("orphan", StepComplete),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestNewRegistryRejectsBranchCycle(t *testing.T) {
	a := textStep("a", "b")
	b := textStep("b", StepComplete)
	b.Next.Branches = []Branch{{When: map[string]string{"a": "loop"}, Next: "a"}}
	_, err := NewRegistry([]Definition{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewRegistryRejectsMissingValidator(t *testing.T) {
	step := textStep("a", StepComplete)
	step.Validate = nil
	_, err := NewRegistry([]Definition{step})
	require.Error(t, err)
}

func TestNewRegistryRejectsChoiceWithoutOptions(t *testing.T) {
	_, err := NewRegistry([]Definition{{
		ID:        "a",
		PromptKey: "ask_a",
		AnswerKey: "a",
		Kind:      KindChoice,
		Next:      NextRule{Default: StepComplete},
	}})
	require.Error(t, err)
}

func TestNewRegistryRejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry([]Definition{
		textStep("a", StepComplete),
		textStep("a", StepComplete),
	})
	require.Error(t, err)
}

func TestApplyBranchRulesUnknownStep(t *testing.T) {
	_, err := ApplyBranchRules(DefaultSteps(), []BranchRule{
		{Step: "ghost", When: map[string]string{"x": "y"}, Next: StepPhone},
	})
	require.Error(t, err)
}

func TestApplyBranchRulesPrecedence(t *testing.T) {
	defs, err := ApplyBranchRules(DefaultSteps(), []BranchRule{
		{Step: StepFormat, When: map[string]string{AnswerGoal: "kids"}, Next: StepPhone},
	})
	require.NoError(t, err)

	var format Definition
	for _, def := range defs {
		if def.ID == StepFormat {
			format = def
		}
	}
	next := format.Next.Resolve(map[string]string{AnswerGoal: "kids", AnswerFormat: "group"})
	assert.Equal(t, StepPhone, next, "configured rule wins over the shipped default")
}

func TestNextRuleResolve(t *testing.T) {
	rule := NextRule{
		Branches: []Branch{
			{When: map[string]string{"goal": "kids", "format": "group"}, Next: "x"},
			{When: map[string]string{"goal": "kids"}, Next: "y"},
		},
		Default: "z",
	}

	tests := []struct {
		name    string
		answers map[string]string
		want    StepID
	}{
		{"all conditions", map[string]string{"goal": "kids", "format": "group"}, "x"},
		{"partial falls through", map[string]string{"goal": "kids", "format": "online"}, "y"},
		{"no match", map[string]string{"goal": "exams"}, "z"},
		{"empty answers", map[string]string{}, "z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rule.Resolve(tt.answers))
		})
	}

	assert.ElementsMatch(t, []StepID{"x", "y", "z"}, rule.Targets())
}
