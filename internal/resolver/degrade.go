package resolver

import (
	"github.com/ashita-ai/hada/internal/model"
)

// maxDiagnostic caps the error text stored in a degraded placeholder.
const maxDiagnostic = 100

// DegradedRecord is the placeholder returned when a record cannot be resolved.
// Every attribute takes its neutral value; Description carries the cause.
func DegradedRecord(ingredient string, cause error) model.IngredientRecord {
	return model.IngredientRecord{
		Chemical:                 ingredient,
		Description:              diagnostic(cause),
		Source:                   model.SourceAPIError,
		HumanHealth:              model.Unknown,
		EnvironmentalImpact:      model.Unknown,
		PregnancySafe:            model.Unknown,
		Fragrance:                model.No,
		Acneogenic:               "0",
		SensitivityRisk:          model.RiskLow,
		HyperpigmentationBenefit: model.No,
		AntiAgingBenefit:         model.No,
	}
}

// DegradedAssessment is the placeholder returned when an assessment cannot be resolved.
func DegradedAssessment(cause error) model.ConcernAssessment {
	return model.ConcernAssessment{
		Safe:   model.SafetyUnknown,
		Reason: diagnostic(cause),
	}
}

func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error(), maxDiagnostic)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
