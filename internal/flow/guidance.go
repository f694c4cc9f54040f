package flow

import "github.com/campussafe/safebot/internal/models"

// safetyGuidance holds the static per-category advice appended to a
// submission confirmation. Purely advisory; a missing entry is not an error.
var safetyGuidance = map[models.Category]string{
	models.CategoryAccident: "🩹 Safety tip: if anyone is hurt, call campus emergency services first. " +
		"Do not move seriously injured people unless they are in immediate danger.",
	models.CategoryTheft: "🔒 Safety tip: avoid leaving valuables unattended, and report stolen ID cards " +
		"to the registry so they can be deactivated.",
	models.CategoryHarassment: "🤝 Support is available: the campus counselling unit offers confidential " +
		"sessions, and you can request a welfare check through the security office.",
	models.CategorySafetyViolation: "⚠️ Safety tip: keep clear of the hazard area and warn others nearby " +
		"until maintenance confirms it has been secured.",
}

// Guidance returns the static safety guidance for a category, if any.
func Guidance(category models.Category) (string, bool) {
	text, ok := safetyGuidance[category]
	return text, ok
}
