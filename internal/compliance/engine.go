// Package compliance implements the content compliance matching engine: a
// word-boundary phrase trie, a wording pattern table, per-platform limits and
// formatting heuristics, aggregated into a single Result per check.
package compliance

import (
	"fmt"
	"strings"

	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Engine runs all checkers against a piece of content. Its rule tables are
// built in New and never modified afterwards, so Check may be called from
// many goroutines at once.
type Engine struct {
	trie       *PhraseTrie
	patterns   *PatternRuleSet
	platforms  *PlatformRules
	heuristics HeuristicAnalyzer
}

// New builds the engine and its rule tables.
func New(cfg config.EngineConfig, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewNop()
	}

	trie := NewPhraseTrie()
	for _, entry := range SeedPhrases() {
		if err := trie.Insert(entry.Phrase, entry.Type); err != nil {
			return nil, fmt.Errorf("failed to load phrase rules: %w", err)
		}
	}

	patterns, err := NewPatternRuleSet(cfg.LegacyPatternOffsets)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern rules: %w", err)
	}

	engine := &Engine{
		trie:      trie,
		patterns:  patterns,
		platforms: NewPlatformRules(),
	}

	log.Info("Compliance engine initialized",
		zap.String("rules_version", RulesVersion),
		zap.Int("phrases", trie.Len()),
		zap.Int("patterns", len(patterns.rules)),
		zap.Int("platforms", len(engine.platforms.profiles)),
		zap.Bool("legacy_pattern_offsets", cfg.LegacyPatternOffsets),
	)

	return engine, nil
}

// Check evaluates content for the given platform. Violations keep detection
// order: phrases, platform rules, patterns, heuristics.
func (e *Engine) Check(content, platformID string) Result {
	violations := make([]Violation, 0)
	violations = append(violations, e.trie.Search(content)...)
	violations = append(violations, e.platforms.Validate(content, platformID)...)
	violations = append(violations, e.patterns.EvaluateAll(content)...)
	violations = append(violations, e.heuristics.EvaluateAll(content)...)

	return Result{
		IsCompliant: len(violations) == 0,
		Violations:  violations,
		Summary:     Summarize(violations),
		RiskLevel:   RiskFor(len(violations)),
	}
}

// Platforms exposes the platform table.
func (e *Engine) Platforms() *PlatformRules {
	return e.platforms
}

// RuleCount is the number of phrase and pattern rules loaded.
func (e *Engine) RuleCount() int {
	return e.trie.Len() + len(e.patterns.rules)
}

// Patterns exposes the pattern table.
func (e *Engine) Patterns() *PatternRuleSet {
	return e.patterns
}

// Summarize renders the human-readable summary for a violation list.
func Summarize(violations []Violation) string {
	if len(violations) == 0 {
		return "Content passes all compliance checks."
	}
	labels := Labels(violations)
	return fmt.Sprintf("Found %d violation(s) across %d categories: %s.",
		len(violations), len(labels), strings.Join(labels, ", "))
}

// Labels returns the distinct type labels in first-seen order.
func Labels(violations []Violation) []string {
	seen := make(map[ViolationType]bool)
	var labels []string
	for _, v := range violations {
		if seen[v.Type] {
			continue
		}
		seen[v.Type] = true
		labels = append(labels, v.Type.String())
	}
	return labels
}

// CountByType tallies violations per type.
func CountByType(violations []Violation) map[ViolationType]int {
	stats := make(map[ViolationType]int)
	for _, v := range violations {
		stats[v.Type]++
	}
	return stats
}
