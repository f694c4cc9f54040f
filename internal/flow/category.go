package flow

import (
	"sort"
	"strings"

	"github.com/campussafe/safebot/internal/models"
)

// categorySynonyms maps lowercase aliases to canonical categories. Matching
// is a case-insensitive substring check of the alias against the input, so
// "someone stole my laptop" lands on Theft. "Other" must be asked for
// explicitly; nothing falls back to it silently.
var categorySynonyms = map[string]models.Category{
	"accident":  models.CategoryAccident,
	"injury":    models.CategoryAccident,
	"injured":   models.CategoryAccident,
	"medical":   models.CategoryAccident,
	"emergency": models.CategoryAccident,
	"fire":      models.CategoryAccident,
	"fall":      models.CategoryAccident,
	"collision": models.CategoryAccident,
	"crash":     models.CategoryAccident,

	"theft":      models.CategoryTheft,
	"steal":      models.CategoryTheft,
	"stole":      models.CategoryTheft,
	"stolen":     models.CategoryTheft,
	"robbery":    models.CategoryTheft,
	"robbed":     models.CategoryTheft,
	"burglary":   models.CategoryTheft,
	"pickpocket": models.CategoryTheft,

	"harassment":   models.CategoryHarassment,
	"harass":       models.CategoryHarassment,
	"bully":        models.CategoryHarassment,
	"bullying":     models.CategoryHarassment,
	"abuse":        models.CategoryHarassment,
	"assault":      models.CategoryHarassment,
	"violence":     models.CategoryHarassment,
	"violent":      models.CategoryHarassment,
	"threat":       models.CategoryHarassment,
	"stalking":     models.CategoryHarassment,
	"intimidation": models.CategoryHarassment,

	"safety violation": models.CategorySafetyViolation,
	"violation":        models.CategorySafetyViolation,
	"hazard":           models.CategorySafetyViolation,
	"unsafe":           models.CategorySafetyViolation,
	"broken":           models.CategorySafetyViolation,
	"damage":           models.CategorySafetyViolation,
	"damaged":          models.CategorySafetyViolation,
	"electrical":       models.CategorySafetyViolation,
	"exposed":          models.CategorySafetyViolation,
	"leak":             models.CategorySafetyViolation,

	"other": models.CategoryOther,
	"misc":  models.CategoryOther,
}

// sortedAliases holds the synonym keys longest-first so that multi-word
// aliases ("safety violation") win over their substrings ("violation") and
// matching is deterministic regardless of map iteration order.
var sortedAliases = func() []string {
	aliases := make([]string, 0, len(categorySynonyms))
	for alias := range categorySynonyms {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return aliases
}()

// NormalizeCategory maps free-text input onto a canonical category.
// It returns false when nothing matches; the caller must re-prompt rather
// than defaulting.
func NormalizeCategory(input string) (models.Category, bool) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return "", false
	}

	// Exact canonical names first.
	for _, c := range models.Categories {
		if text == strings.ToLower(string(c)) {
			return c, true
		}
	}

	for _, alias := range sortedAliases {
		if strings.Contains(text, alias) {
			return categorySynonyms[alias], true
		}
	}
	return "", false
}

// CategoryList renders the canonical categories for re-prompt messages.
func CategoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
