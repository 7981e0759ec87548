package report

import "strings"

var (
	highTierRecommendations = []string{
		"Immediate consultation with an orthopedic specialist or spine surgeon is recommended.",
		"Additional imaging studies (MRI, CT) may be warranted for detailed assessment.",
		"Clinical correlation with patient symptoms and physical examination is essential.",
		"Consider referral for comprehensive spine evaluation.",
	}
	moderateTierRecommendations = []string{
		"Follow-up consultation with the treating physician is recommended.",
		"Consider additional imaging if symptoms persist or worsen.",
		"Monitor patient for any progression of symptoms.",
		"Physical therapy evaluation may be beneficial.",
	}
	routineTierRecommendations = []string{
		"Routine follow-up as clinically indicated.",
		"No immediate intervention appears necessary based on this analysis.",
		"Continue standard care protocols.",
		"Patient education on spine health and posture is recommended.",
	}
)

// Recommendations returns the fixed clinical-action list for a
// classification, escalating in urgency with the classification tier.
func Recommendations(classification string) []string {
	switch {
	case strings.Contains(classification, "High"):
		return highTierRecommendations
	case strings.Contains(classification, "Moderate"), strings.Contains(classification, "Possibly"):
		return moderateTierRecommendations
	default:
		return routineTierRecommendations
	}
}
