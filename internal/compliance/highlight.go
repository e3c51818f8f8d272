package compliance

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

var highlightClasses = map[ViolationType]string{
	TypeFinancial:            "violation-financial",
	TypeMisleading:           "violation-misleading",
	TypeInappropriate:        "violation-inappropriate",
	TypeHealth:               "violation-health",
	TypeInvestmentScam:       "violation-investment",
	TypeUrgentCallToAction:   "violation-urgent",
	TypeUnrealisticGuarantee: "violation-guarantee",
	TypeIncomeClaim:          "violation-income",
	TypePressureTactic:       "violation-pressure",
	TypeAggressiveSales:      "violation-sales",
}

// HighlightClass returns the CSS class used to mark a violation type.
func HighlightClass(t ViolationType) string {
	if class, ok := highlightClasses[t]; ok {
		return class
	}
	return "violation-general"
}

type span struct {
	start, end int
	violation  Violation
}

// Highlight wraps every locatable violation in content with a span carrying
// its type. Only violations with an OriginalPhrase that still matches the text
// at Position are used. Spans are applied from the end of the text backwards;
// a span that would cross into one already applied is skipped. All text is
// HTML-escaped.
func Highlight(content string, violations []Violation) string {
	text := []rune(content)

	spans := make([]span, 0, len(violations))
	for _, v := range violations {
		if v.OriginalPhrase == "" || v.Position < 0 || v.Position > len(text) {
			continue
		}
		n := len([]rune(v.OriginalPhrase))
		if len(text)-v.Position < n {
			continue
		}
		end := v.Position + n
		if string(text[v.Position:end]) != v.OriginalPhrase {
			continue
		}
		spans = append(spans, span{start: v.Position, end: end, violation: v})
	}

	if len(spans) == 0 {
		return html.EscapeString(content)
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start > spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	// Pieces are collected right to left and reversed at the end.
	var pieces []string
	cursor := len(text)
	for _, s := range spans {
		if s.end > cursor {
			continue
		}
		pieces = append(pieces,
			html.EscapeString(string(text[s.end:cursor])),
			wrap(string(text[s.start:s.end]), s.violation.Type),
		)
		cursor = s.start
	}
	pieces = append(pieces, html.EscapeString(string(text[:cursor])))

	var b strings.Builder
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	return b.String()
}

func wrap(phrase string, t ViolationType) string {
	return fmt.Sprintf(`<span class="%s" title="%s">%s</span>`,
		HighlightClass(t), html.EscapeString(t.String()), html.EscapeString(phrase))
}
