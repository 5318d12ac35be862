package hada

// Concern identifies a skin, health or environmental dimension a caller
// cares about: "acne", "sensitive_skin", "fragrance_free", "eco",
// "anti_aging" or "hyperpigmentation".
type Concern string

// Record is the public representation of an ingredient record.
// It is a curated view of internal/model.IngredientRecord for use in
// extension interfaces. No internal package imports; safe to use from
// outside the module.
type Record struct {
	Chemical                 string
	Description              string
	Source                   string
	HumanHealth              string
	EnvironmentalImpact      string
	PregnancySafe            string
	Fragrance                string
	Acneogenic               float64 // 0 or 1
	SensitivityRisk          string  // Low, Medium or High
	HyperpigmentationBenefit string  // Yes or No
	AntiAgingBenefit         string  // Yes or No
}

// Assessment is one ingredient judged against one concern.
type Assessment struct {
	Safe   string // safe, neutral, not safe or unknown
	Reason string
}
