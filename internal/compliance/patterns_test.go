package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternRuleSetEvaluateAll(t *testing.T) {
	rules, err := NewPatternRuleSet(false)
	require.NoError(t, err)

	tests := []struct {
		content  string
		typ      ViolationType
		phrase   string
		position int
	}{
		{"We offer 100% guaranteed results", TypeUnrealisticGuarantee, "100% guaranteed", 9},
		{"guaranteed 20 % back", TypeUnrealisticGuarantee, "guaranteed 20 %", 0},
		{"Earn $500 per day from home", TypeIncomeClaim, "$500 per day", 5},
		{"earn $40/hour", TypeIncomeClaim, "$40/hour", 5},
		{"CLICK HERE NOW", TypeUrgentCallToAction, "CLICK HERE NOW", 0},
		{"a limited time offer", TypePressureTactic, "limited time offer", 2},
		{"Purchase now", TypeAggressiveSales, "Purchase now", 0},
		{"start a free trial", TypeSubscriptionTrap, "free trial", 8},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			got := rules.EvaluateAll(tt.content)
			require.Len(t, got, 1)
			assert.Equal(t, Violation{Phrase: tt.phrase, Type: tt.typ, Position: tt.position}, got[0])
		})
	}
}

func TestPatternRuleSetOneMatchPerRule(t *testing.T) {
	rules, err := NewPatternRuleSet(false)
	require.NoError(t, err)

	got := rules.EvaluateAll("buy now, buy now, buy now")
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Position)

	assert.Empty(t, rules.EvaluateAll("nothing to see here"))
	assert.Empty(t, rules.EvaluateAll("busy nowhere"))
}

func TestPatternRuleSetRuneOffsets(t *testing.T) {
	rules, err := NewPatternRuleSet(false)
	require.NoError(t, err)

	got := rules.EvaluateAll("¡Oferta única! free trial")
	require.Len(t, got, 1)
	assert.Equal(t, 15, got[0].Position)
}

func TestPatternRulesReturnsCopy(t *testing.T) {
	rules, err := NewPatternRuleSet(false)
	require.NoError(t, err)

	list := rules.Rules()
	require.Len(t, list, 7)
	list[0].Type = TypeHealth
	assert.Equal(t, TypeUnrealisticGuarantee, rules.Rules()[0].Type)
}
