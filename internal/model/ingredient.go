package model

// Sentinel values marking records that did not come from real resolution.
const (
	SourceAPIError = "API Error"
	SourceMock     = "Mock"
)

// Enumerated field values.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"

	Yes = "Yes"
	No  = "No"

	Unknown = "Unknown"
)

// IngredientRecord describes a cosmetic chemical's safety, health and
// environmental attributes. JSON field names are part of the durable flat
// schema and the HTTP response; do not rename them.
type IngredientRecord struct {
	Chemical                 string `json:"Chemical"`
	Description              string `json:"Description"`
	Source                   string `json:"Source"`
	HumanHealth              string `json:"HumanHealth"`
	EnvironmentalImpact      string `json:"EnvironmentalImpact"`
	PregnancySafe            string `json:"PregnancySafe"`
	Fragrance                string `json:"Fragrance"`
	Acneogenic               Score  `json:"Acneogenic"`
	SensitivityRisk          string `json:"Sensitivity_Risk"`
	HyperpigmentationBenefit string `json:"Hyperpigmentation_Benefit"`
	AntiAgingBenefit         string `json:"Anti_Aging_Benefit"`

	// Populated per request by the annotator; never persisted in the flat shape.
	ConcernNote []string `json:"Concern_Note,omitempty"`

	// Per-concern assessments, present when the store holds dimensional data.
	Assessments map[Concern]ConcernAssessment `json:"Assessments,omitempty"`
}

// Degraded reports whether the record is a placeholder for a failed resolution.
func (r IngredientRecord) Degraded() bool {
	return r.Source == SourceAPIError
}

// Clone returns a deep copy of r.
func (r IngredientRecord) Clone() IngredientRecord {
	out := r
	if r.ConcernNote != nil {
		out.ConcernNote = append([]string(nil), r.ConcernNote...)
	}
	if r.Assessments != nil {
		out.Assessments = make(map[Concern]ConcernAssessment, len(r.Assessments))
		for c, a := range r.Assessments {
			out.Assessments[c] = a
		}
	}
	return out
}

// Safety values for a ConcernAssessment.
const (
	SafetySafe    = "safe"
	SafetyNeutral = "neutral"
	SafetyNotSafe = "not safe"
	SafetyUnknown = "unknown"
)

// ConcernAssessment is the suitability verdict for one (ingredient, concern) pair.
type ConcernAssessment struct {
	Safe   string `json:"safe"`
	Reason string `json:"reason"`
}

// Degraded reports whether the assessment is a placeholder for a failed resolution.
func (a ConcernAssessment) Degraded() bool {
	return a.Safe == SafetyUnknown
}
