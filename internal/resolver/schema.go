package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ashita-ai/hada/internal/model"
)

// ParseRecord validates model output against the full-record schema: one JSON
// object, exactly the required keys, string text fields, numeric Acneogenic,
// and known enum values (matched case-insensitively, stored canonically).
func ParseRecord(content string) (model.IngredientRecord, error) {
	obj, err := parseObject(content, recordKeys)
	if err != nil {
		return model.IngredientRecord{}, err
	}

	var rec model.IngredientRecord
	text := map[string]*string{
		"Chemical":            &rec.Chemical,
		"Description":         &rec.Description,
		"Source":              &rec.Source,
		"HumanHealth":         &rec.HumanHealth,
		"EnvironmentalImpact": &rec.EnvironmentalImpact,
		"PregnancySafe":       &rec.PregnancySafe,
		"Fragrance":           &rec.Fragrance,
	}
	for key, dst := range text {
		v := obj[key]
		if v.Type != gjson.String {
			return model.IngredientRecord{}, &SchemaError{Reason: fmt.Sprintf("%s must be a string", key)}
		}
		*dst = strings.TrimSpace(v.Str)
	}

	acne := obj["Acneogenic"]
	switch acne.Type {
	case gjson.Number:
		rec.Acneogenic = model.Score(acne.Raw)
	case gjson.String:
		s := strings.TrimSpace(acne.Str)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return model.IngredientRecord{}, &SchemaError{Reason: fmt.Sprintf("Acneogenic %q is not numeric", acne.Str)}
		}
		rec.Acneogenic = model.Score(s)
	default:
		return model.IngredientRecord{}, &SchemaError{Reason: "Acneogenic must be a number"}
	}

	if rec.SensitivityRisk, err = enumField(obj, "Sensitivity_Risk", model.RiskLow, model.RiskMedium, model.RiskHigh); err != nil {
		return model.IngredientRecord{}, err
	}
	if rec.HyperpigmentationBenefit, err = enumField(obj, "Hyperpigmentation_Benefit", model.Yes, model.No); err != nil {
		return model.IngredientRecord{}, err
	}
	if rec.AntiAgingBenefit, err = enumField(obj, "Anti_Aging_Benefit", model.Yes, model.No); err != nil {
		return model.IngredientRecord{}, err
	}
	return rec, nil
}

// ParseAssessment validates model output against the assessment schema.
func ParseAssessment(content string) (model.ConcernAssessment, error) {
	obj, err := parseObject(content, assessmentKeys)
	if err != nil {
		return model.ConcernAssessment{}, err
	}
	if obj["ingredient"].Type != gjson.String {
		return model.ConcernAssessment{}, &SchemaError{Reason: "ingredient must be a string"}
	}
	reason := obj["reason"]
	if reason.Type != gjson.String {
		return model.ConcernAssessment{}, &SchemaError{Reason: "reason must be a string"}
	}
	safe, err := enumField(obj, "safe", model.SafetySafe, model.SafetyNeutral, model.SafetyNotSafe)
	if err != nil {
		return model.ConcernAssessment{}, err
	}
	return model.ConcernAssessment{Safe: safe, Reason: strings.TrimSpace(reason.Str)}, nil
}

// parseObject checks that content is a single JSON object whose key set is
// exactly want, and returns its fields by key.
func parseObject(content string, want []string) (map[string]gjson.Result, error) {
	content = stripFence(strings.TrimSpace(content))
	if content == "" {
		return nil, &SchemaError{Reason: "empty response"}
	}
	if !gjson.Valid(content) {
		return nil, &SchemaError{Reason: "response is not valid JSON"}
	}
	res := gjson.Parse(content)
	if !res.IsObject() {
		return nil, &SchemaError{Reason: "response is not a JSON object"}
	}

	fields := make(map[string]gjson.Result, len(want))
	var dupes []string
	res.ForEach(func(k, v gjson.Result) bool {
		if _, seen := fields[k.Str]; seen {
			dupes = append(dupes, k.Str)
		}
		fields[k.Str] = v
		return true
	})
	if len(dupes) > 0 {
		return nil, &SchemaError{Reason: "duplicate keys: " + strings.Join(dupes, ", ")}
	}

	required := make(map[string]bool, len(want))
	var missing []string
	for _, k := range want {
		required[k] = true
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	var extra []string
	for k := range fields {
		if !required[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	switch {
	case len(missing) > 0:
		return nil, &SchemaError{Reason: "missing keys: " + strings.Join(missing, ", ")}
	case len(extra) > 0:
		return nil, &SchemaError{Reason: "unexpected keys: " + strings.Join(extra, ", ")}
	}
	return fields, nil
}

func enumField(obj map[string]gjson.Result, key string, allowed ...string) (string, error) {
	v := obj[key]
	if v.Type != gjson.String {
		return "", &SchemaError{Reason: fmt.Sprintf("%s must be a string", key)}
	}
	got := strings.TrimSpace(v.Str)
	for _, a := range allowed {
		if strings.EqualFold(got, a) {
			return a, nil
		}
	}
	return "", &SchemaError{Reason: fmt.Sprintf("%s %q not in [%s]", key, truncate(got, 40), strings.Join(allowed, ", "))}
}

// stripFence removes a surrounding ```json ... ``` block, which some models
// emit even when asked for bare JSON.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
