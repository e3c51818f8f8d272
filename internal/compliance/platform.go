package compliance

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// PlatformRules validates content against per-platform publishing limits.
type PlatformRules struct {
	profiles map[string]PlatformProfile
}

// NewPlatformRules builds the lookup table from the built-in profiles.
func NewPlatformRules() *PlatformRules {
	profiles := make(map[string]PlatformProfile, len(defaultPlatformProfiles))
	for _, p := range defaultPlatformProfiles {
		profiles[p.ID] = p.clone()
	}
	return &PlatformRules{profiles: profiles}
}

// Profile looks up a platform by its case-sensitive identifier.
func (pr *PlatformRules) Profile(id string) (PlatformProfile, bool) {
	p, ok := pr.profiles[id]
	if !ok {
		return PlatformProfile{}, false
	}
	return p.clone(), true
}

// Profiles returns all profiles sorted by ID.
func (pr *PlatformRules) Profiles() []PlatformProfile {
	out := make([]PlatformProfile, 0, len(pr.profiles))
	for _, p := range pr.profiles {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks length and hashtag requirements. An unknown platform yields
// a single Platform Error and no further checks.
func (pr *PlatformRules) Validate(content, platformID string) []Violation {
	violations := make([]Violation, 0)

	profile, ok := pr.profiles[platformID]
	if !ok {
		return append(violations, Violation{
			Phrase:   "Unknown Platform",
			Type:     TypePlatformError,
			Position: 0,
		})
	}

	if length := utf8.RuneCountInString(content); length > profile.MaxLength {
		violations = append(violations, Violation{
			Phrase:   fmt.Sprintf("Content too long (%d/%d characters)", length, profile.MaxLength),
			Type:     TypeLengthViolation,
			Position: profile.MaxLength,
		})
	}

	if profile.HashtagRequired && !strings.Contains(content, "#") {
		violations = append(violations, Violation{
			Phrase:   "Missing required hashtags",
			Type:     TypeHashtagRequirement,
			Position: 0,
		})
	}

	return violations
}

func (p PlatformProfile) clone() PlatformProfile {
	kinds := make([]string, len(p.ContentKinds))
	copy(kinds, p.ContentKinds)
	p.ContentKinds = kinds
	return p
}
