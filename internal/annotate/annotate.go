// Package annotate derives per-concern advisory notes from a resolved
// ingredient record. Rules only read fields already on the record; nothing
// here calls out to the resolver or the store.
package annotate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashita-ai/hada/internal/model"
)

// rule returns the advisory for one concern, or "" when it does not apply.
type rule func(rec model.IngredientRecord) string

var rules = map[model.Concern]rule{
	model.ConcernAcne:              acneRule,
	model.ConcernSensitiveSkin:     sensitiveSkinRule,
	model.ConcernFragranceFree:     fragranceRule,
	model.ConcernEco:               ecoRule,
	model.ConcernAntiAging:         antiAgingRule,
	model.ConcernHyperpigmentation: hyperpigmentationRule,
}

// ecoMarkers trigger the eco warning when found in EnvironmentalImpact.
var ecoMarkers = []string{"slow biodegradation", "toxic"}

// Canonicalize maps caller-supplied concern identifiers to the recognized set,
// deduplicated and in canonical order. Unrecognized identifiers are dropped.
func Canonicalize(raw []string) []model.Concern {
	want := make(map[model.Concern]bool, len(raw))
	for _, r := range raw {
		if c, ok := model.ParseConcern(r); ok {
			want[c] = true
		}
	}
	out := make([]model.Concern, 0, len(want))
	for _, c := range model.CanonicalConcerns {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

// Annotate returns a copy of rec whose ConcernNote lists the advisories for
// concerns, evaluated in canonical order whatever order concerns arrive in.
// Any notes already on rec are replaced.
func Annotate(rec model.IngredientRecord, concerns []model.Concern) model.IngredientRecord {
	out := rec.Clone()
	out.ConcernNote = nil

	want := make(map[model.Concern]bool, len(concerns))
	for _, c := range concerns {
		want[c] = true
	}
	for _, c := range model.CanonicalConcerns {
		if !want[c] {
			continue
		}
		if note := rules[c](rec); note != "" {
			out.ConcernNote = append(out.ConcernNote, note)
		}
		if a, ok := rec.Assessments[c]; ok {
			out.ConcernNote = append(out.ConcernNote, assessmentNote(c, a))
		}
	}
	return out
}

func acneRule(rec model.IngredientRecord) string {
	score := rec.Acneogenic.Float()
	if score <= 0 {
		return ""
	}
	return fmt.Sprintf("Warning: acneogenic score %s; may clog pores on acne-prone skin.",
		strconv.FormatFloat(score, 'f', -1, 64))
}

func sensitiveSkinRule(rec model.IngredientRecord) string {
	switch {
	case strings.EqualFold(strings.TrimSpace(rec.SensitivityRisk), model.RiskHigh):
		return "Avoid: high irritant risk for sensitive skin."
	case strings.EqualFold(strings.TrimSpace(rec.SensitivityRisk), model.RiskMedium):
		return "Caution: moderate irritation risk for sensitive skin."
	}
	return ""
}

func fragranceRule(rec model.IngredientRecord) string {
	f := strings.TrimSpace(rec.Fragrance)
	if f == "" || strings.EqualFold(f, model.No) {
		return ""
	}
	return fmt.Sprintf("Note: fragrance component (%s); avoid for fragrance-free routines.", f)
}

func ecoRule(rec model.IngredientRecord) string {
	impact := strings.ToLower(rec.EnvironmentalImpact)
	for _, m := range ecoMarkers {
		if strings.Contains(impact, m) {
			return fmt.Sprintf("Warning: environmental concern: %s.", strings.TrimRight(strings.TrimSpace(rec.EnvironmentalImpact), "."))
		}
	}
	return ""
}

func antiAgingRule(rec model.IngredientRecord) string {
	if isYes(rec.AntiAgingBenefit) {
		return "Benefit: supports anti-aging care."
	}
	return ""
}

func hyperpigmentationRule(rec model.IngredientRecord) string {
	if isYes(rec.HyperpigmentationBenefit) {
		return "Benefit: may help fade hyperpigmentation."
	}
	return ""
}

func assessmentNote(c model.Concern, a model.ConcernAssessment) string {
	if a.Reason == "" {
		return fmt.Sprintf("%s: %s", c.Label(), a.Safe)
	}
	return fmt.Sprintf("%s: %s (%s)", c.Label(), a.Safe, a.Reason)
}

func isYes(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), model.Yes)
}
