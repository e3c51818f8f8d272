package compliance

// RulesVersion changes whenever a seed table below changes. Cached results are
// keyed on it.
const RulesVersion = "2025.1"

// PhraseEntry is a banned phrase and the type it reports.
type PhraseEntry struct {
	Phrase string        `json:"phrase"`
	Type   ViolationType `json:"type"`
}

var seedPhrases = map[ViolationType][]string{
	TypeFinancial: {
		"free money", "get rich quick", "guaranteed profit", "easy money",
		"make money fast", "no risk investment", "instant cash", "free cash",
		"money back guarantee", "risk free", "guaranteed returns", "quick cash",
		"invest now",
	},
	TypeMisleading: {
		"fake offer", "limited time only", "act now", "urgent",
		"this is not a scam", "too good to be true", "exclusive deal",
		"secret method", "doctors hate this", "one weird trick",
	},
	TypeInappropriate: {
		"abuse", "hate", "discrimination", "harassment", "bullying",
		"violence", "threat", "spam", "scam", "fraud",
	},
	TypeHealth: {
		"miracle cure", "instant weight loss", "lose weight overnight",
		"cure cancer", "fda approved", "doctor recommended", "medical breakthrough",
		"secret formula", "ancient remedy",
	},
	TypeInvestmentScam: {
		"crypto giveaway", "bitcoin doubler", "investment opportunity",
		"ponzi scheme", "pyramid scheme", "mlm opportunity", "passive income guaranteed",
	},
}

// seedOrder fixes insertion order so re-tagged duplicates resolve the same way
// on every build.
var seedOrder = []ViolationType{
	TypeFinancial, TypeMisleading, TypeInappropriate, TypeHealth, TypeInvestmentScam,
}

// SeedPhrases returns a copy of the built-in phrase table in insertion order.
func SeedPhrases() []PhraseEntry {
	var entries []PhraseEntry
	for _, t := range seedOrder {
		for _, phrase := range seedPhrases[t] {
			entries = append(entries, PhraseEntry{Phrase: phrase, Type: t})
		}
	}
	return entries
}

type patternSource struct {
	expr string
	typ  ViolationType
}

func defaultPatternSources() []patternSource {
	return []patternSource{
		{`(?i)\b\d+\s*%\s*guaranteed`, TypeUnrealisticGuarantee},
		{`(?i)\bguaranteed\s+\d+\s*%`, TypeUnrealisticGuarantee},
		{`(?i)\$\d+\s*(per|/)\s*(day|hour|week)`, TypeIncomeClaim},
		{`(?i)click\s+here\s+now`, TypeUrgentCallToAction},
		{`(?i)limited\s+time\s+offer`, TypePressureTactic},
		{`(?i)\b(buy|purchase)\s+now\b`, TypeAggressiveSales},
		{`(?i)\bfree\s+trial\b`, TypeSubscriptionTrap},
	}
}

var defaultPlatformProfiles = []PlatformProfile{
	{ID: "instagram", MaxLength: 2200, ContentKinds: []string{"image", "video", "story"}},
	{ID: "twitter", MaxLength: 280, ContentKinds: []string{"text", "image", "video"}},
	{ID: "facebook", MaxLength: 63206, ContentKinds: []string{"text", "image", "video", "link"}},
	{ID: "linkedin", MaxLength: 3000, HashtagRequired: true, ContentKinds: []string{"text", "image", "video", "document"}},
	{ID: "tiktok", MaxLength: 150, HashtagRequired: true, ContentKinds: []string{"video"}},
	{ID: "ad-campaign", MaxLength: 1000, ContentKinds: []string{"text", "image", "video"}},
	{ID: "email-marketing", MaxLength: 5000, ContentKinds: []string{"text", "image", "html"}},
}

var (
	suspiciousDomains  = []string{"bit.ly", "tinyurl.com", "goo.gl", "t.co"}
	suspiciousKeywords = []string{"free", "money", "cash", "prize", "winner"}
)
