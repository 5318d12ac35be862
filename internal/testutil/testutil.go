// Package testutil provides shared test infrastructure: a quiet logger, a
// scriptable counting resolver, and temp-dir backed stores.
//
// Usage:
//
//	res := testutil.NewResolver()
//	res.Records["glycerin"] = testutil.Record("Glycerin", func(r *model.IngredientRecord) { r.Acneogenic = "1" })
//	st := testutil.NewFlatStore(t)
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/normalize"
	"github.com/ashita-ai/hada/internal/resolver"
	"github.com/ashita-ai/hada/internal/store"
)

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// Record returns a well-formed, non-degraded record for name with neutral
// values, after applying opts.
func Record(name string, opts ...func(*model.IngredientRecord)) model.IngredientRecord {
	rec := model.IngredientRecord{
		Chemical:                 name,
		Description:              "Test ingredient.",
		Source:                   "test",
		HumanHealth:              "None known",
		EnvironmentalImpact:      "Readily biodegradable",
		PregnancySafe:            model.Unknown,
		Fragrance:                model.No,
		Acneogenic:               "0",
		SensitivityRisk:          model.RiskLow,
		HyperpigmentationBenefit: model.No,
		AntiAgingBenefit:         model.No,
	}
	for _, o := range opts {
		o(&rec)
	}
	return rec
}

// Resolver is a resolver.Resolver that counts calls and answers from
// scripted tables keyed by normalized ingredient name. Unscripted names get
// Record(name). Names in Fail degrade with a transport error.
type Resolver struct {
	mu          sync.Mutex
	Records     map[string]model.IngredientRecord
	Assessments map[string]model.ConcernAssessment // key: "<normalized>:<concern>"
	Fail        map[string]bool

	// Delay is slept before every answer (respecting ctx).
	Delay time.Duration
	// Gate, when non-nil, blocks every call until it is closed.
	Gate chan struct{}

	recordCalls     atomic.Int32
	assessmentCalls atomic.Int32
}

// NewResolver returns an empty counting resolver.
func NewResolver() *Resolver {
	return &Resolver{
		Records:     make(map[string]model.IngredientRecord),
		Assessments: make(map[string]model.ConcernAssessment),
		Fail:        make(map[string]bool),
	}
}

// RecordCalls returns the number of ResolveRecord calls so far.
func (r *Resolver) RecordCalls() int { return int(r.recordCalls.Load()) }

// AssessmentCalls returns the number of ResolveAssessment calls so far.
func (r *Resolver) AssessmentCalls() int { return int(r.assessmentCalls.Load()) }

// Calls returns the total number of resolver calls so far.
func (r *Resolver) Calls() int { return r.RecordCalls() + r.AssessmentCalls() }

// Mode implements resolver.Resolver.
func (r *Resolver) Mode() resolver.Mode { return resolver.ModeMock }

// ResolveRecord implements resolver.Resolver.
func (r *Resolver) ResolveRecord(ctx context.Context, ingredient string) resolver.RecordResult {
	r.recordCalls.Add(1)
	key := normalize.Key(ingredient)
	if err := r.wait(ctx); err != nil {
		te := &resolver.TransportError{Op: "request", Err: err}
		return resolver.RecordResult{Record: resolver.DegradedRecord(ingredient, te), Err: te}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail[key] {
		te := &resolver.TransportError{Op: "request", Err: context.DeadlineExceeded}
		return resolver.RecordResult{Record: resolver.DegradedRecord(ingredient, te), Err: te}
	}
	rec, ok := r.Records[key]
	if !ok {
		rec = Record(ingredient)
	}
	rec.Chemical = ingredient
	return resolver.RecordResult{Record: rec}
}

// ResolveAssessment implements resolver.Resolver.
func (r *Resolver) ResolveAssessment(ctx context.Context, ingredient string, concern model.Concern) resolver.AssessmentResult {
	r.assessmentCalls.Add(1)
	key := normalize.Key(ingredient)
	if err := r.wait(ctx); err != nil {
		te := &resolver.TransportError{Op: "request", Err: err}
		return resolver.AssessmentResult{Assessment: resolver.DegradedAssessment(te), Err: te}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail[key] {
		te := &resolver.TransportError{Op: "request", Err: context.DeadlineExceeded}
		return resolver.AssessmentResult{Assessment: resolver.DegradedAssessment(te), Err: te}
	}
	a, ok := r.Assessments[key+":"+string(concern)]
	if !ok {
		a = model.ConcernAssessment{Safe: model.SafetyNeutral, Reason: "test assessment"}
	}
	return resolver.AssessmentResult{Assessment: a}
}

func (r *Resolver) wait(ctx context.Context) error {
	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Delay > 0 {
		t := time.NewTimer(r.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// NewFlatStore opens a flat-file store in a temp dir and closes it on cleanup.
func NewFlatStore(t *testing.T) *store.Store {
	t.Helper()
	return OpenStore(t, store.NewFlatFile(filepath.Join(t.TempDir(), "data.json")))
}

// NewDimensionalStore opens a dimensional CSV store in a temp dir.
func NewDimensionalStore(t *testing.T) *store.Store {
	t.Helper()
	return OpenStore(t, store.NewDimensionalFile(filepath.Join(t.TempDir(), "ingredients.csv")))
}

// NewSQLiteStore opens a SQLite store in a temp dir.
func NewSQLiteStore(t *testing.T) *store.Store {
	t.Helper()
	b, err := store.NewSQLite(filepath.Join(t.TempDir(), "hada.db"))
	require.NoError(t, err)
	return OpenStore(t, b)
}

// OpenStore opens backend and registers Close on cleanup.
func OpenStore(t *testing.T, backend store.Backend) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), backend, TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}
