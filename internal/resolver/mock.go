package resolver

import (
	"context"

	"github.com/ashita-ai/hada/internal/model"
)

const mockReason = "mocked result for testing"

// Mock returns fixed neutral values without any network access. Deployments
// opt into it with HADA_RESOLVER_MODE=mock.
type Mock struct{}

// NewMock returns the deterministic mock resolver.
func NewMock() Mock { return Mock{} }

// Mode implements Resolver.
func (Mock) Mode() Mode { return ModeMock }

// ResolveRecord implements Resolver.
func (Mock) ResolveRecord(_ context.Context, ingredient string) RecordResult {
	return RecordResult{Record: model.IngredientRecord{
		Chemical:                 ingredient,
		Description:              mockReason,
		Source:                   model.SourceMock,
		HumanHealth:              model.Unknown,
		EnvironmentalImpact:      model.Unknown,
		PregnancySafe:            model.Unknown,
		Fragrance:                model.No,
		Acneogenic:               "0",
		SensitivityRisk:          model.RiskLow,
		HyperpigmentationBenefit: model.No,
		AntiAgingBenefit:         model.No,
	}}
}

// ResolveAssessment implements Resolver.
func (Mock) ResolveAssessment(context.Context, string, model.Concern) AssessmentResult {
	return AssessmentResult{Assessment: model.ConcernAssessment{
		Safe:   model.SafetyNeutral,
		Reason: mockReason,
	}}
}
