package compliance

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	capsRatioThreshold  = 0.3
	capsMinLength       = 20
	maxExclamationMarks = 3
)

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// HeuristicAnalyzer runs the formatting and link checks. It has no state.
type HeuristicAnalyzer struct{}

// EvaluateAll runs capitalization, punctuation and link checks in that order.
func (HeuristicAnalyzer) EvaluateAll(content string) []Violation {
	violations := make([]Violation, 0)

	length := utf8.RuneCountInString(content)
	if CapsRatio(content) > capsRatioThreshold && length > capsMinLength {
		violations = append(violations, Violation{
			Phrase:   "Excessive capitalization detected",
			Type:     TypeFormatting,
			Position: 0,
		})
	}

	if strings.Count(content, "!") > maxExclamationMarks {
		violations = append(violations, Violation{
			Phrase:   "Too many exclamation marks",
			Type:     TypeFormatting,
			Position: utf8.RuneCountInString(content[:strings.Index(content, "!")]),
		})
	}

	for _, loc := range urlPattern.FindAllStringIndex(content, -1) {
		link := content[loc[0]:loc[1]]
		if !IsSuspiciousURL(link) {
			continue
		}
		violations = append(violations, Violation{
			Phrase:         link,
			Type:           TypeSuspiciousLink,
			Position:       utf8.RuneCountInString(content[:loc[0]]),
			OriginalPhrase: link,
		})
	}

	return violations
}

// CapsRatio is the share of ASCII upper-case letters among all characters.
// Empty content has a ratio of 0.
func CapsRatio(content string) float64 {
	length := utf8.RuneCountInString(content)
	if length == 0 {
		return 0
	}
	upper := 0
	for _, r := range content {
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	return float64(upper) / float64(length)
}

// IsSuspiciousURL flags link shorteners and bait keywords.
func IsSuspiciousURL(link string) bool {
	if host := linkHost(link); host != "" {
		for _, domain := range suspiciousDomains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return true
			}
		}
	}

	lower := strings.ToLower(link)
	for _, keyword := range suspiciousKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func linkHost(link string) string {
	if u, err := url.Parse(link); err == nil {
		return strings.ToLower(u.Hostname())
	}

	// url.Parse rejects bad escapes anywhere in the link; the host is still
	// the authority between "://" and the first path, query or fragment rune.
	host := link
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i >= 0 {
			host = host[1:i]
		}
	} else if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}
