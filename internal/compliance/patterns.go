package compliance

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// PatternRuleSet evaluates the fixed table of wording patterns.
type PatternRuleSet struct {
	rules         []PatternRule
	legacyOffsets bool
}

// NewPatternRuleSet compiles the built-in pattern table. With legacyOffsets set,
// a match is located by searching for the first occurrence of the matched text
// rather than by the regex match position.
func NewPatternRuleSet(legacyOffsets bool) (*PatternRuleSet, error) {
	sources := defaultPatternSources()
	rules := make([]PatternRule, 0, len(sources))
	for _, src := range sources {
		compiled, err := regexp.Compile(src.expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", src.expr, err)
		}
		rules = append(rules, PatternRule{Pattern: compiled, Type: src.typ})
	}

	return &PatternRuleSet{rules: rules, legacyOffsets: legacyOffsets}, nil
}

// Rules returns the compiled rules in evaluation order.
func (ps *PatternRuleSet) Rules() []PatternRule {
	out := make([]PatternRule, len(ps.rules))
	copy(out, ps.rules)
	return out
}

// EvaluateAll tests every pattern once and reports the first match of each.
func (ps *PatternRuleSet) EvaluateAll(content string) []Violation {
	violations := make([]Violation, 0)

	for _, rule := range ps.rules {
		loc := rule.Pattern.FindStringIndex(content)
		if loc == nil {
			continue
		}

		matched := content[loc[0]:loc[1]]
		byteOffset := loc[0]
		if ps.legacyOffsets {
			byteOffset = strings.Index(content, matched)
		}

		violations = append(violations, Violation{
			Phrase:   matched,
			Type:     rule.Type,
			Position: utf8.RuneCountInString(content[:byteOffset]),
		})
	}

	return violations
}
