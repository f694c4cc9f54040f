package flow

import (
	"strings"
	"testing"

	"github.com/campussafe/safebot/internal/models"
)

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		input string
		want  models.Category
		ok    bool
	}{
		{"theft", models.CategoryTheft, true},
		{"THEFT", models.CategoryTheft, true},
		{"  Theft  ", models.CategoryTheft, true},
		{"someone stole my laptop", models.CategoryTheft, true},
		{"my bike was stolen", models.CategoryTheft, true},
		{"accident", models.CategoryAccident, true},
		{"there was a fire in the lab", models.CategoryAccident, true},
		{"harassment", models.CategoryHarassment, true},
		{"a student is bullying me", models.CategoryHarassment, true},
		{"safety violation", models.CategorySafetyViolation, true},
		{"exposed wiring in block b", models.CategorySafetyViolation, true},
		{"other", models.CategoryOther, true},
		{"Other", models.CategoryOther, true},

		// Unmatched input must force re-entry, never default.
		{"", "", false},
		{"asdfgh", "", false},
		{"lost my homework", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeCategory(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeCategory(%q) = (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMultiWordAliasWins(t *testing.T) {
	// "safety violation" contains the shorter alias "violation"; the longer
	// alias must match first so both land on the same canonical category.
	got, ok := NormalizeCategory("this is a safety violation")
	if !ok || got != models.CategorySafetyViolation {
		t.Errorf("got (%q, %v)", got, ok)
	}
}

func TestCategoryListMentionsEveryCanonical(t *testing.T) {
	list := CategoryList()
	for _, c := range models.Categories {
		if !strings.Contains(list, string(c)) {
			t.Errorf("category list missing %q: %s", c, list)
		}
	}
}
