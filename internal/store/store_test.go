package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hada/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleRecord(name string) model.IngredientRecord {
	return model.IngredientRecord{
		Chemical:                 name,
		Description:              "A humectant.",
		Source:                   "CIR",
		HumanHealth:              "None known",
		EnvironmentalImpact:      "Readily biodegradable",
		PregnancySafe:            model.Yes,
		Fragrance:                model.No,
		Acneogenic:               "0",
		SensitivityRisk:          model.RiskLow,
		HyperpigmentationBenefit: model.No,
		AntiAgingBenefit:         model.Yes,
	}
}

// failingBackend wraps a backend and fails every Save while fail is set.
type failingBackend struct {
	Backend
	mu   sync.Mutex
	fail bool
}

func (f *failingBackend) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingBackend) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Backend.Save(ctx, snap)
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp-*"))
	require.NoError(t, err)
	return matches
}

// ---------------------------------------------------------------------------
// Load edge cases
// ---------------------------------------------------------------------------

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	b := NewFlatFile(filepath.Join(t.TempDir(), "data.json"))
	snap, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Len())
}

func TestFileBackend_ZeroByteFileIsEmpty(t *testing.T) {
	for _, b := range []*FileBackend{
		NewFlatFile(filepath.Join(t.TempDir(), "data.json")),
		NewDimensionalFile(filepath.Join(t.TempDir(), "ingredients.csv")),
	} {
		require.NoError(t, os.WriteFile(b.Path(), nil, 0o600))
		snap, err := b.Load(context.Background())
		require.NoError(t, err)
		assert.Zero(t, snap.Len())
	}
}

func TestFileBackend_CorruptFlat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"Chemical": "Water",`), 0o600))

	_, err := NewFlatFile(path).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	var ce *CorruptStoreError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, path, ce.Path)
}

func TestFileBackend_FlatMissingChemical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"Description": "no name"}]`), 0o600))

	_, err := NewFlatFile(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileBackend_CorruptDimensional(t *testing.T) {
	tests := map[string]string{
		"missing column": "ingredient,concern,safe\nwater,acne,safe\n",
		"ragged row":     "ingredient,concern,safe,reason\nwater,acne\n",
		"empty concern":  "ingredient,concern,safe,reason\nwater,,safe,ok\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ingredients.csv")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := NewDimensionalFile(path).Load(context.Background())
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestFileBackend_DimensionalHeaderOrderAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingredients.csv")
	content := "\ufeffReason,Safe,Ingredient,Concern\n\"Gentle, non-comedogenic\",safe,Glycerin,acne\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	snap, err := NewDimensionalFile(path).Load(context.Background())
	require.NoError(t, err)
	e, ok := snap.Get("glycerin")
	require.True(t, ok)
	assert.Equal(t, model.ConcernAssessment{Safe: "safe", Reason: "Gentle, non-comedogenic"}, e.Assessments[model.ConcernAcne])
}

func TestSQLite_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hada.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, just some text that is long enough to have a header"), 0o600))

	_, err := NewSQLite(path)
	assert.ErrorIs(t, err, ErrCorrupt)
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestFlat_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	b := NewFlatFile(path)

	snap := NewSnapshot()
	rec := sampleRecord("Glycerin")
	rec.ConcernNote = []string{"should not persist"}
	snap.SetRecord("Glycerin", rec)
	snap.SetRecord("Niacinamide", sampleRecord("Niacinamide"))
	require.NoError(t, b.Save(context.Background(), snap))

	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	e, ok := loaded.Get("GLYCERIN")
	require.True(t, ok)
	assert.Equal(t, "Glycerin", e.Record.Chemical)
	assert.Nil(t, e.Record.ConcernNote)
	assert.Equal(t, model.Score("0"), e.Record.Acneogenic)
	assert.Empty(t, tempFiles(t, filepath.Dir(path)))
}

func TestFlat_DuplicateSpellingsCoalesce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	content := `[
	  {"Chemical": "Glycerin", "Source": "first"},
	  {"Chemical": "  GLYCERIN ", "Source": "second"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	snap, err := NewFlatFile(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	e, _ := snap.Get("glycerin")
	assert.Equal(t, "first", e.Record.Source)
}

func TestFlat_AcneogenicStringOrNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	content := `[{"Chemical": "A", "Acneogenic": "2"}, {"Chemical": "B", "Acneogenic": 3}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	snap, err := NewFlatFile(path).Load(context.Background())
	require.NoError(t, err)
	a, _ := snap.Get("a")
	b, _ := snap.Get("b")
	assert.InDelta(t, 2.0, a.Record.Acneogenic.Float(), 0)
	assert.InDelta(t, 3.0, b.Record.Acneogenic.Float(), 0)
}

func TestDimensional_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingredients.csv")
	b := NewDimensionalFile(path)

	snap := NewSnapshot()
	snap.SetAssessment("Niacinamide", model.ConcernAcne, model.ConcernAssessment{Safe: "safe", Reason: "Regulates sebum, \"gently\"."})
	snap.SetAssessment("Niacinamide", model.ConcernEco, model.ConcernAssessment{Safe: "neutral", Reason: "ok"})
	snap.SetAssessment("Alcohol Denat", model.ConcernSensitiveSkin, model.ConcernAssessment{Safe: "not safe", Reason: "drying\nand irritating"})
	require.NoError(t, b.Save(context.Background(), snap))

	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	e, ok := loaded.Get("niacinamide")
	require.True(t, ok)
	assert.Len(t, e.Assessments, 2)
	assert.Equal(t, "Regulates sebum, \"gently\".", e.Assessments[model.ConcernAcne].Reason)
	e, _ = loaded.Get("alcohol denat")
	assert.Equal(t, "drying\nand irritating", e.Assessments[model.ConcernSensitiveSkin].Reason)
}

func TestSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hada.db")
	b, err := NewSQLite(path)
	require.NoError(t, err)

	snap := NewSnapshot()
	snap.SetRecord("Glycerin", sampleRecord("Glycerin"))
	snap.SetAssessment("Glycerin", model.ConcernAcne, model.ConcernAssessment{Safe: "safe", Reason: "non-comedogenic"})
	snap.SetAssessment("Retinol", model.ConcernAntiAging, model.ConcernAssessment{Safe: "safe", Reason: "collagen"})
	require.NoError(t, b.Save(context.Background(), snap))
	require.NoError(t, b.Close())

	b, err = NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	e, ok := loaded.Get("glycerin")
	require.True(t, ok)
	require.NotNil(t, e.Record)
	assert.Equal(t, "Glycerin", e.Record.Chemical)
	assert.Equal(t, "safe", e.Assessments[model.ConcernAcne].Safe)

	e, ok = loaded.Get("retinol")
	require.True(t, ok)
	assert.Nil(t, e.Record)
	assert.Equal(t, "collagen", e.Assessments[model.ConcernAntiAging].Reason)
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

func TestOpen_CreatesArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	s, err := Open(context.Background(), NewFlatFile(path), testLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
	assert.Equal(t, "flat", s.Shape().String())
}

func TestOpen_CorruptAborts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Open(context.Background(), NewFlatFile(path), testLogger())
	assert.ErrorIs(t, err, ErrCorrupt)

	// The corrupt file is left untouched for inspection.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data))
}

func TestStore_PutRecordIsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	ctx := context.Background()
	s, err := Open(ctx, NewFlatFile(path), testLogger())
	require.NoError(t, err)

	got, err := s.PutRecord(ctx, "Glycerin", sampleRecord("Glycerin"))
	require.NoError(t, err)
	assert.Equal(t, "Glycerin", got.Chemical)

	// Visible to a fresh backend before Close.
	reloaded, err := NewFlatFile(path).Load(ctx)
	require.NoError(t, err)
	_, ok := reloaded.Get("glycerin")
	assert.True(t, ok)
	require.NoError(t, s.Close(ctx))
}

func TestStore_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, NewFlatFile(filepath.Join(t.TempDir(), "data.json")), testLogger())
	require.NoError(t, err)

	first := sampleRecord("Glycerin")
	second := sampleRecord("GLYCERIN")
	second.Source = "other"

	_, err = s.PutRecord(ctx, "Glycerin", first)
	require.NoError(t, err)
	got, err := s.PutRecord(ctx, " glycerin ", second)
	require.NoError(t, err)
	assert.Equal(t, "CIR", got.Source)
	assert.Equal(t, 1, s.Len())

	a1 := model.ConcernAssessment{Safe: "safe", Reason: "one"}
	a2 := model.ConcernAssessment{Safe: "not safe", Reason: "two"}
	_, err = s.PutAssessment(ctx, "Glycerin", model.ConcernAcne, a1)
	require.NoError(t, err)
	gotA, err := s.PutAssessment(ctx, "GLYCERIN", model.ConcernAcne, a2)
	require.NoError(t, err)
	assert.Equal(t, a1, gotA)
}

func TestStore_FlushFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{Backend: NewDimensionalFile(filepath.Join(t.TempDir(), "ingredients.csv"))}
	s, err := Open(ctx, fb, testLogger())
	require.NoError(t, err)

	fb.setFail(true)
	_, err = s.PutAssessment(ctx, "Retinol", model.ConcernAntiAging, model.ConcernAssessment{Safe: "safe", Reason: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, ok := s.Get("retinol")
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	_, err = s.PutRecord(ctx, "Retinol", sampleRecord("Retinol"))
	require.Error(t, err)
	assert.Zero(t, s.Len())

	fb.setFail(false)
	_, err = s.PutAssessment(ctx, "Retinol", model.ConcernAntiAging, model.ConcernAssessment{Safe: "safe", Reason: "r"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_RollbackKeepsExistingHalf(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hada.db")
	sb, err := NewSQLite(path)
	require.NoError(t, err)
	fb := &failingBackend{Backend: sb}
	s, err := Open(ctx, fb, testLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close(ctx) }()

	_, err = s.PutRecord(ctx, "Retinol", sampleRecord("Retinol"))
	require.NoError(t, err)

	fb.setFail(true)
	_, err = s.PutAssessment(ctx, "Retinol", model.ConcernAcne, model.ConcernAssessment{Safe: "safe", Reason: "r"})
	require.Error(t, err)
	fb.setFail(false)

	e, ok := s.Get("retinol")
	require.True(t, ok)
	assert.NotNil(t, e.Record)
	assert.Empty(t, e.Assessments)
}

func TestStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(ctx, NewFlatFile(path), testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Ingredient %d", i%10)
			_, err := s.PutRecord(ctx, name, sampleRecord(name))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, 10, s.Len())
	reloaded, err := NewFlatFile(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Len())
	assert.Empty(t, tempFiles(t, filepath.Dir(path)))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, NewFlatFile(filepath.Join(t.TempDir(), "data.json")), testLogger())
	require.NoError(t, err)
	_, err = s.PutRecord(ctx, "Glycerin", sampleRecord("Glycerin"))
	require.NoError(t, err)

	e, _ := s.Get("glycerin")
	e.Record.Source = "mutated"
	e.Record.ConcernNote = append(e.Record.ConcernNote, "x")

	again, _ := s.Get("glycerin")
	assert.Equal(t, "CIR", again.Record.Source)
	assert.Empty(t, again.Record.ConcernNote)
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, NewFlatFile(filepath.Join(t.TempDir(), "data.json")), testLogger())
	require.NoError(t, err)
	_, err = s.PutRecord(ctx, "   ", sampleRecord(""))
	assert.Error(t, err)
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "flat", HoldsRecords.String())
	assert.Equal(t, "dimensional", HoldsAssessments.String())
	assert.Equal(t, "unified", (HoldsRecords | HoldsAssessments).String())
	assert.True(t, (HoldsRecords | HoldsAssessments).Has(HoldsAssessments))
	assert.False(t, HoldsRecords.Has(HoldsAssessments))
}
