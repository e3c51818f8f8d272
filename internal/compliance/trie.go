package compliance

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrEmptyPhrase is returned when inserting a blank phrase.
	ErrEmptyPhrase = errors.New("phrase must not be empty")
	// ErrUnknownType is returned when a phrase is tagged with an undeclared type.
	ErrUnknownType = errors.New("violation type is not declared")
)

// boundaryPunctuation lists the ASCII characters that separate words in
// addition to whitespace.
const boundaryPunctuation = ".,!?;:-()[]{}'\"@#$%^&*+=<>/\\|`~"

type trieNode struct {
	children      map[rune]*trieNode
	terminal      bool
	violationType ViolationType
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// PhraseTrie matches banned phrases on word boundaries. It is populated once
// and then only read, so a single instance may be shared between goroutines.
type PhraseTrie struct {
	root  *trieNode
	count int
}

// NewPhraseTrie creates an empty trie.
func NewPhraseTrie() *PhraseTrie {
	return &PhraseTrie{root: newTrieNode()}
}

// Insert adds a phrase tagged with t. Phrases are case-folded; inserting the
// same phrase again replaces its tag.
func (pt *PhraseTrie) Insert(phrase string, t ViolationType) error {
	if strings.TrimSpace(phrase) == "" {
		return ErrEmptyPhrase
	}
	if !t.Valid() {
		return fmt.Errorf("insert %q: %w", phrase, ErrUnknownType)
	}

	current := pt.root
	for _, r := range phrase {
		r = unicode.ToLower(r)
		next, ok := current.children[r]
		if !ok {
			next = newTrieNode()
			current.children[r] = next
		}
		current = next
	}

	if !current.terminal {
		pt.count++
	}
	current.terminal = true
	current.violationType = t
	return nil
}

// Len returns the number of distinct phrases stored.
func (pt *PhraseTrie) Len() int {
	return pt.count
}

// Search reports every stored phrase found in text on word boundaries.
// The walk restarts at each offset, so overlapping matches that begin at
// different offsets are all reported. Positions are rune offsets.
func (pt *PhraseTrie) Search(text string) []Violation {
	violations := make([]Violation, 0)
	original := []rune(text)
	folded := make([]rune, len(original))
	for i, r := range original {
		folded[i] = unicode.ToLower(r)
	}

	for start := range folded {
		current := pt.root
		for end := start; end < len(folded); end++ {
			next, ok := current.children[folded[end]]
			if !ok {
				break
			}
			current = next
			if !current.terminal || !isWholeWord(original, start, end) {
				continue
			}
			violations = append(violations, Violation{
				Phrase:         string(folded[start : end+1]),
				Type:           current.violationType,
				Position:       start,
				WordPosition:   wordPosition(original, start, end),
				OriginalPhrase: string(original[start : end+1]),
			})
		}
	}

	return violations
}

// isWholeWord checks the runes on either side of [start, end].
func isWholeWord(text []rune, start, end int) bool {
	if start > 0 && !isBoundary(text[start-1]) {
		return false
	}
	if end < len(text)-1 && !isBoundary(text[end+1]) {
		return false
	}
	return true
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(boundaryPunctuation, r)
}

// wordPosition renders the 1-based token range covered by [start, end].
func wordPosition(text []rune, start, end int) string {
	wordsBefore := len(strings.Fields(string(text[:start])))
	wordsInMatch := len(strings.Fields(string(text[start : end+1])))
	if wordsInMatch <= 1 {
		return fmt.Sprintf("Word %d", wordsBefore+1)
	}
	return fmt.Sprintf("Words %d-%d", wordsBefore+1, wordsBefore+wordsInMatch)
}
