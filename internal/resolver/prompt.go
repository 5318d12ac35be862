package resolver

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/hada/internal/model"
)

// recordKeys is the exact key set a full-record response must contain.
var recordKeys = []string{
	"Chemical",
	"Description",
	"Source",
	"HumanHealth",
	"EnvironmentalImpact",
	"PregnancySafe",
	"Fragrance",
	"Acneogenic",
	"Sensitivity_Risk",
	"Hyperpigmentation_Benefit",
	"Anti_Aging_Benefit",
}

// assessmentKeys is the exact key set an assessment response must contain.
var assessmentKeys = []string{"ingredient", "safe", "reason"}

var recordSystemPrompt = `You are a cosmetic ingredient safety analyst.

Respond with a single JSON object and nothing else. The object must contain
exactly these keys and no others: ` + strings.Join(recordKeys, ", ") + `.

- Chemical: the ingredient's common INCI name.
- Description: one sentence describing what the ingredient is and does.
- Source: where the information comes from (e.g. "CIR", "EWG", "literature").
- HumanHealth: short summary of human health concerns, or "None known".
- EnvironmentalImpact: short summary; mention "slow biodegradation" or "toxic" when applicable.
- PregnancySafe: "Yes", "No" or "Unknown".
- Fragrance: "No" unless the ingredient is a fragrance component, otherwise a short description.
- Acneogenic: the number 1 if the ingredient is known to clog pores, otherwise 0.
- Sensitivity_Risk: one of "Low", "Medium", "High".
- Hyperpigmentation_Benefit: "Yes" or "No".
- Anti_Aging_Benefit: "Yes" or "No".

Keep every text value under 200 characters.`

var assessmentSystemPrompt = `You assess whether a cosmetic ingredient suits a specific skin concern.

Respond with a single JSON object and nothing else. The object must contain
exactly these keys and no others: ` + strings.Join(assessmentKeys, ", ") + `.

- ingredient: the ingredient name as given.
- safe: one of "safe", "neutral", "not safe".
- reason: one short sentence explaining the verdict.`

func recordUserPrompt(ingredient string) string {
	return fmt.Sprintf("Ingredient: %s", ingredient)
}

func assessmentUserPrompt(ingredient string, concern model.Concern) string {
	return fmt.Sprintf("Ingredient: %s\nConcern: %s", ingredient, concern.Label())
}
