package transform

import "strings"

// NormalizeName lower-cases s, trims it and collapses inner whitespace runs
// into single spaces.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// AliasTable maps normalized spellings onto canonical names.
type AliasTable map[string]string

// DefaultPlatformAliases returns the built-in platform aliases.
func DefaultPlatformAliases() map[string]string {
	return map[string]string{
		"insta":     "instagram",
		"ig":        "instagram",
		"fb":        "facebook",
		"yt":        "youtube",
		"tw":        "twitter",
		"x":         "twitter",
		"li":        "linkedin",
		"tt":        "tiktok",
		"tik tok":   "tiktok",
		"you tube":  "youtube",
		"linked in": "linkedin",
	}
}

// DefaultMetricAliases returns the built-in metric aliases.
func DefaultMetricAliases() map[string]string {
	return map[string]string{
		"followers count": "followers",
		"follower count":  "followers",
		"follower":        "followers",
		"impr":            "impressions",
		"impr.":           "impressions",
		"impression":      "impressions",
		"view":            "views",
		"like":            "likes",
		"eng rate":        "engagement rate",
	}
}

// NewAliasTable merges overrides over defaults. Both keys and targets are
// normalized.
func NewAliasTable(defaults, overrides map[string]string) AliasTable {
	t := make(AliasTable, len(defaults)+len(overrides))
	for _, m := range []map[string]string{defaults, overrides} {
		for from, to := range m {
			if from, to = NormalizeName(from), NormalizeName(to); from != "" && to != "" {
				t[from] = to
			}
		}
	}
	return t
}

// Resolve normalizes name and maps it through the table.
func (t AliasTable) Resolve(name string) string {
	n := NormalizeName(name)
	if canonical, ok := t[n]; ok {
		return canonical
	}
	return n
}
