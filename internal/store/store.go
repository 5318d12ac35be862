// Package store holds the ingredient dataset in memory and persists it to a
// durable artifact with write-through semantics.
//
// Two on-disk shapes exist for the same data: a flat list of full ingredient
// records, and a dimensional ingredient x concern table of assessments. Both
// load into the same Snapshot, so nothing outside this package knows which
// one is in use.
//
//	Open() → Backend.Load → Snapshot (memory)
//	PutRecord / PutAssessment → mutate under lock → Backend.Save → return
//	Close() → final Backend.Save → Backend.Close
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/normalize"
	"github.com/ashita-ai/hada/internal/telemetry"
)

// Shape describes which halves of an Entry a backend can persist.
type Shape uint8

const (
	HoldsRecords Shape = 1 << iota
	HoldsAssessments
)

// Has reports whether s includes every bit of other.
func (s Shape) Has(other Shape) bool { return s&other == other }

func (s Shape) String() string {
	switch s {
	case HoldsRecords:
		return "flat"
	case HoldsAssessments:
		return "dimensional"
	case HoldsRecords | HoldsAssessments:
		return "unified"
	default:
		return "none"
	}
}

// Backend loads and saves the full dataset. Implementations need not be
// safe for concurrent use; Store serializes all calls.
type Backend interface {
	// Load reads the artifact. A missing artifact yields an empty snapshot;
	// an unparseable one yields a *CorruptStoreError.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the artifact with snap atomically.
	Save(ctx context.Context, snap *Snapshot) error

	// Shape reports what the backend can persist.
	Shape() Shape

	// Path identifies the artifact in logs and errors.
	Path() string

	Close() error
}

// Store is the process-scoped dataset. All reads and every mutate+flush
// sequence run under one mutex, so concurrent batches never interleave a read
// and a write.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu   sync.Mutex
	data *Snapshot
}

// Open loads the artifact, creating it when missing, and returns a ready Store.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) (*Store, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{backend: backend, logger: logger, data: snap}

	if snap.Len() == 0 {
		// Materialize the artifact so the first Load after a restart sees a
		// well-formed file rather than nothing.
		if err := backend.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", backend.Path(), err)
		}
	}

	logger.Info("store: loaded", "path", backend.Path(), "shape", backend.Shape().String(), "entries", snap.Len())
	s.registerMetrics()
	return s, nil
}

// Shape reports what the underlying backend can persist.
func (s *Store) Shape() Shape {
	return s.backend.Shape()
}

// Len returns the number of distinct ingredient keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Len()
}

// Get returns a copy of the entry for rawKey.
func (s *Store) Get(rawKey string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Get(rawKey)
}

// PutRecord merges rec under rawKey and flushes before returning. If the key
// already has a record, the stored one wins and is returned unchanged. On
// flush failure the in-memory change is rolled back.
func (s *Store) PutRecord(ctx context.Context, rawKey string, rec model.IngredientRecord) (model.IngredientRecord, error) {
	key := normalize.Key(rawKey)
	if key == "" {
		return model.IngredientRecord{}, fmt.Errorf("store: empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.data.SetRecord(key, rec) {
		e, _ := s.data.Get(key)
		return *e.Record, nil
	}
	if err := s.flushLocked(ctx); err != nil {
		s.data.removeRecord(key)
		return model.IngredientRecord{}, err
	}
	e, _ := s.data.Get(key)
	return *e.Record, nil
}

// PutAssessment merges a under (rawKey, concern) and flushes before returning.
// First writer wins, as with PutRecord.
func (s *Store) PutAssessment(ctx context.Context, rawKey string, concern model.Concern, a model.ConcernAssessment) (model.ConcernAssessment, error) {
	key := normalize.Key(rawKey)
	if key == "" {
		return model.ConcernAssessment{}, fmt.Errorf("store: empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.data.SetAssessment(key, concern, a) {
		e, _ := s.data.Get(key)
		return e.Assessments[concern], nil
	}
	if err := s.flushLocked(ctx); err != nil {
		s.data.removeAssessment(key, concern)
		return model.ConcernAssessment{}, err
	}
	return a, nil
}

// Flush writes the current dataset to the backend.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked saves with a context detached from cancellation: once a write
// starts it runs to completion even if the requesting client went away.
func (s *Store) flushLocked(ctx context.Context) error {
	if err := s.backend.Save(context.WithoutCancel(ctx), s.data); err != nil {
		return fmt.Errorf("store: save %s: %w", s.backend.Path(), err)
	}
	return nil
}

// Close performs a final flush and releases the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	closeErr := s.backend.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (s *Store) registerMetrics() {
	meter := telemetry.Meter("hada/store")
	_, _ = meter.Int64ObservableGauge("hada.store.entries",
		metric.WithDescription("Distinct ingredient keys held in the store"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.Len()))
			return nil
		}),
	)
}
