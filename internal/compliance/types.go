package compliance

import (
	"fmt"
	"regexp"
)

// ViolationType identifies the rule family that produced a violation.
// The label returned by String is persisted and aggregated downstream, so the
// mapping in violationLabels must not change for existing values.
type ViolationType int

const (
	TypeUnknown ViolationType = iota
	TypeFinancial
	TypeMisleading
	TypeInappropriate
	TypeHealth
	TypeInvestmentScam
	TypeUnrealisticGuarantee
	TypeIncomeClaim
	TypeUrgentCallToAction
	TypePressureTactic
	TypeAggressiveSales
	TypeSubscriptionTrap
	TypePlatformError
	TypeLengthViolation
	TypeHashtagRequirement
	TypeFormatting
	TypeSuspiciousLink
)

var violationLabels = map[ViolationType]string{
	TypeFinancial:            "Financial Violation",
	TypeMisleading:           "Misleading Content",
	TypeInappropriate:        "Inappropriate Content",
	TypeHealth:               "Health Misinformation",
	TypeInvestmentScam:       "Investment Scam",
	TypeUnrealisticGuarantee: "Unrealistic Guarantee",
	TypeIncomeClaim:          "Income Claim",
	TypeUrgentCallToAction:   "Urgent Call to Action",
	TypePressureTactic:       "Pressure Tactic",
	TypeAggressiveSales:      "Aggressive Sales",
	TypeSubscriptionTrap:     "Potential Subscription Trap",
	TypePlatformError:        "Platform Error",
	TypeLengthViolation:      "Length Violation",
	TypeHashtagRequirement:   "Hashtag Requirement",
	TypeFormatting:           "Formatting Violation",
	TypeSuspiciousLink:       "Suspicious Link",
}

var labelTypes = func() map[string]ViolationType {
	m := make(map[string]ViolationType, len(violationLabels))
	for t, label := range violationLabels {
		m[label] = t
	}
	return m
}()

// String returns the stable display label.
func (t ViolationType) String() string {
	if label, ok := violationLabels[t]; ok {
		return label
	}
	return "Unknown"
}

// Valid reports whether t is one of the declared violation types.
func (t ViolationType) Valid() bool {
	_, ok := violationLabels[t]
	return ok
}

// MarshalText encodes the type as its label.
func (t ViolationType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid violation type: %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a label produced by MarshalText.
func (t *ViolationType) UnmarshalText(text []byte) error {
	parsed, err := ParseViolationType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseViolationType maps a label back to its ViolationType.
func ParseViolationType(label string) (ViolationType, error) {
	if t, ok := labelTypes[label]; ok {
		return t, nil
	}
	return TypeUnknown, fmt.Errorf("unknown violation type label: %q", label)
}

// AllTypes returns every declared violation type in declaration order.
func AllTypes() []ViolationType {
	types := make([]ViolationType, 0, len(violationLabels))
	for t := TypeFinancial; t <= TypeSuspiciousLink; t++ {
		types = append(types, t)
	}
	return types
}

// RiskLevel is the three-tier severity derived from the violation count.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskFor maps a violation count to its risk level: 0 is Low, 1-2 Medium, 3+ High.
func RiskFor(count int) RiskLevel {
	switch {
	case count <= 0:
		return RiskLow
	case count <= 2:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Rank orders risk levels for filtering (Low < Medium < High).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Violation is a single detected rule breach.
type Violation struct {
	Phrase         string        `json:"phrase" yaml:"phrase"`
	Type           ViolationType `json:"type" yaml:"type"`
	Position       int           `json:"position" yaml:"position"`
	WordPosition   string        `json:"wordPosition,omitempty" yaml:"wordPosition,omitempty"`
	OriginalPhrase string        `json:"originalPhrase,omitempty" yaml:"originalPhrase,omitempty"`
}

// Result is the outcome of one compliance check.
type Result struct {
	IsCompliant bool        `json:"isCompliant" yaml:"isCompliant"`
	Violations  []Violation `json:"violations" yaml:"violations"`
	Summary     string      `json:"summary" yaml:"summary"`
	RiskLevel   RiskLevel   `json:"riskLevel" yaml:"riskLevel"`
}

// PatternRule pairs a compiled pattern with the type it reports.
type PatternRule struct {
	Pattern *regexp.Regexp
	Type    ViolationType
}

// PlatformProfile holds the publishing constraints of one destination.
type PlatformProfile struct {
	ID              string   `json:"id"`
	MaxLength       int      `json:"maxLength"`
	HashtagRequired bool     `json:"hashtagRequired"`
	ContentKinds    []string `json:"contentKinds"`
}
