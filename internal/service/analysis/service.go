// Package analysis provides the ingredient resolution pipeline shared by the
// HTTP API and the MCP server.
//
// A batch is resolved in three steps: every distinct normalized name is looked
// up in the store, misses are resolved through the external resolver (one
// in-flight call per key across the whole process) and written through to the
// store, then each record is annotated for the requested concerns and
// replicated for every occurrence of its name in the input.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/hada/internal/annotate"
	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/normalize"
	"github.com/ashita-ai/hada/internal/resolver"
	"github.com/ashita-ai/hada/internal/store"
	"github.com/ashita-ai/hada/internal/telemetry"
)

// Store is the subset of *store.Store the pipeline needs.
type Store interface {
	Shape() store.Shape
	Get(rawKey string) (store.Entry, bool)
	PutRecord(ctx context.Context, rawKey string, rec model.IngredientRecord) (model.IngredientRecord, error)
	PutAssessment(ctx context.Context, rawKey string, concern model.Concern, a model.ConcernAssessment) (model.ConcernAssessment, error)
}

const (
	defaultResolverConcurrency = 4
	defaultBatchConcurrency    = 8
)

// Config bounds the pipeline's concurrency.
type Config struct {
	// ResolverConcurrency caps in-flight resolver calls across all batches.
	ResolverConcurrency int64
	// BatchConcurrency caps distinct keys processed at once within one batch.
	BatchConcurrency int
}

// Service runs resolution batches. One Service is shared by every caller in
// the process; its singleflight group and semaphore are what make concurrent
// batches cooperate.
type Service struct {
	store    Store
	resolver resolver.Resolver
	logger   *slog.Logger

	flights  singleflight.Group
	sem      *semaphore.Weighted

	waitersMu sync.Mutex
	waiters   map[string]int // flight key -> callers still waiting on it
	batchCap int

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	degraded    metric.Int64Counter
}

// New creates a Service.
func New(st Store, res resolver.Resolver, cfg Config, logger *slog.Logger) *Service {
	if cfg.ResolverConcurrency <= 0 {
		cfg.ResolverConcurrency = defaultResolverConcurrency
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}

	meter := telemetry.Meter("hada/analysis")
	hits, _ := meter.Int64Counter("hada.analysis.cache_hits",
		metric.WithDescription("Lookups answered from the store"),
	)
	misses, _ := meter.Int64Counter("hada.analysis.cache_misses",
		metric.WithDescription("Lookups that required the external resolver"),
	)
	degraded, _ := meter.Int64Counter("hada.analysis.degraded",
		metric.WithDescription("Resolver results replaced by degraded placeholders"),
	)
	return &Service{
		store:       st,
		resolver:    res,
		logger:      logger,
		sem:         semaphore.NewWeighted(cfg.ResolverConcurrency),
		waiters:     make(map[string]int),
		batchCap:    cfg.BatchConcurrency,
		cacheHits:   hits,
		cacheMisses: misses,
		degraded:    degraded,
	}
}

// ResolverMode reports which resolver backs the service.
func (s *Service) ResolverMode() resolver.Mode {
	return s.resolver.Mode()
}

// BatchInput is one analysis request.
type BatchInput struct {
	ProductName string
	Ingredients []string
	Concerns    []string
}

// DefaultConcern is assessed when a store that holds only assessments is
// asked for no recognized concern.
const DefaultConcern = model.ConcernAcne

// ResolveBatch returns one annotated record per non-empty ingredient name, in
// input order. Resolver failures never fail the batch; they surface as
// degraded records. The only errors are cancellation and store write failures.
func (s *Service) ResolveBatch(ctx context.Context, input BatchInput) ([]model.IngredientRecord, error) {
	concerns := annotate.Canonicalize(input.Concerns)
	if len(concerns) == 0 && !s.store.Shape().Has(store.HoldsRecords) {
		concerns = []model.Concern{DefaultConcern}
	}

	// Coalesce occurrences: each distinct key is resolved once, displayed by
	// its first spelling.
	var (
		keys     []string
		displays []string
		slots    = make(map[string]int)
		order    []int
	)
	for _, raw := range input.Ingredients {
		display := normalize.Display(raw)
		if display == "" {
			continue
		}
		key := normalize.Key(display)
		idx, ok := slots[key]
		if !ok {
			idx = len(keys)
			slots[key] = idx
			keys = append(keys, key)
			displays = append(displays, display)
		}
		order = append(order, idx)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("hada.batch.names", len(order)),
		attribute.Int("hada.batch.distinct", len(keys)),
		attribute.Int("hada.batch.concerns", len(concerns)),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := make([]model.IngredientRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchCap)
	for i := range keys {
		g.Go(func() error {
			rec, err := s.resolveKey(gctx, keys[i], displays[i], concerns)
			if err != nil {
				return err
			}
			resolved[i] = annotate.Annotate(rec, concerns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.IngredientRecord, len(order))
	for i, idx := range order {
		out[i] = resolved[idx].Clone()
	}
	return out, nil
}

// resolveKey gathers the record and requested assessments for one key,
// resolving whatever the store lacks.
func (s *Service) resolveKey(ctx context.Context, key, display string, concerns []model.Concern) (model.IngredientRecord, error) {
	shape := s.store.Shape()
	entry, _ := s.store.Get(key)

	rec := model.IngredientRecord{Chemical: display}
	if shape.Has(store.HoldsRecords) {
		if entry.Record != nil {
			s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "record")))
			rec = *entry.Record
		} else {
			s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "record")))
			var err error
			if rec, err = s.resolveRecord(ctx, key, display); err != nil {
				return model.IngredientRecord{}, err
			}
		}
	}

	if !shape.Has(store.HoldsAssessments) || len(concerns) == 0 {
		return rec, nil
	}

	var (
		mu          sync.Mutex
		assessments = make(map[model.Concern]model.ConcernAssessment, len(concerns))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range concerns {
		if a, ok := entry.Assessments[c]; ok {
			s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "assessment")))
			assessments[c] = a
			continue
		}
		s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "assessment")))
		g.Go(func() error {
			a, err := s.resolveAssessment(gctx, key, display, c)
			if err != nil {
				return err
			}
			mu.Lock()
			assessments[c] = a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.IngredientRecord{}, err
	}
	rec.Assessments = assessments
	return rec, nil
}

// resolveRecord claims the record flight for key. The flight runs detached
// from ctx so that a write it starts always completes; a caller whose ctx is
// done stops waiting but does not abort the flight.
func (s *Service) resolveRecord(ctx context.Context, key, display string) (model.IngredientRecord, error) {
	v, err := s.await(ctx, "record:"+key, func(fctx context.Context) (any, error) {
		if e, ok := s.store.Get(key); ok && e.Record != nil {
			return *e.Record, nil
		}
		if err := s.acquire(fctx, "record:"+key); err != nil {
			return nil, err
		}
		res := s.resolver.ResolveRecord(fctx, display)
		s.sem.Release(1)

		if res.Err != nil {
			s.logger.Warn("analysis: record resolution degraded", "ingredient", display, "error", res.Err)
			s.degraded.Add(fctx, 1, metric.WithAttributes(attribute.String("kind", "record")))
			return res.Record, nil
		}
		stored, err := s.store.PutRecord(fctx, key, res.Record)
		if err != nil {
			return nil, fmt.Errorf("analysis: persist record %q: %w", display, err)
		}
		s.logger.Debug("analysis: record resolved", "ingredient", display, "key", key)
		return stored, nil
	})
	if err != nil {
		return model.IngredientRecord{}, err
	}
	return v.(model.IngredientRecord).Clone(), nil
}

// resolveAssessment is resolveRecord for one (key, concern) pair.
func (s *Service) resolveAssessment(ctx context.Context, key, display string, concern model.Concern) (model.ConcernAssessment, error) {
	v, err := s.await(ctx, "assessment:"+key+":"+string(concern), func(fctx context.Context) (any, error) {
		if e, ok := s.store.Get(key); ok {
			if a, ok := e.Assessments[concern]; ok {
				return a, nil
			}
		}
		if err := s.acquire(fctx, "assessment:"+key+":"+string(concern)); err != nil {
			return nil, err
		}
		res := s.resolver.ResolveAssessment(fctx, display, concern)
		s.sem.Release(1)

		if res.Err != nil {
			s.logger.Warn("analysis: assessment resolution degraded",
				"ingredient", display, "concern", string(concern), "error", res.Err)
			s.degraded.Add(fctx, 1, metric.WithAttributes(attribute.String("kind", "assessment")))
			return res.Assessment, nil
		}
		stored, err := s.store.PutAssessment(fctx, key, concern, res.Assessment)
		if err != nil {
			return nil, fmt.Errorf("analysis: persist assessment %q/%s: %w", display, concern, err)
		}
		return stored, nil
	})
	if err != nil {
		return model.ConcernAssessment{}, err
	}
	return v.(model.ConcernAssessment), nil
}

// errAbandoned is returned by a flight whose callers all stopped waiting
// before it could call the resolver.
var errAbandoned = errors.New("analysis: flight abandoned")

// await joins or starts the flight for key. No flight starts once ctx is
// done, and a done ctx stops the wait without cancelling the flight.
func (s *Service) await(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.join(key)
		detached := context.WithoutCancel(ctx)
		ch := s.flights.DoChan(key, func() (any, error) {
			return fn(detached)
		})
		select {
		case r := <-ch:
			s.leave(key)
			if errors.Is(r.Err, errAbandoned) {
				// Joined after the flight gave up; start a fresh one.
				continue
			}
			return r.Val, r.Err
		case <-ctx.Done():
			s.leave(key)
			return nil, ctx.Err()
		}
	}
}

// acquire takes a resolver slot for the flight key. A flight nobody waits
// for any more gives its slot back without calling the resolver.
func (s *Service) acquire(ctx context.Context, key string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.waitersMu.Lock()
	live := s.waiters[key] > 0
	s.waitersMu.Unlock()
	if !live {
		s.sem.Release(1)
		return errAbandoned
	}
	return nil
}

func (s *Service) join(key string) {
	s.waitersMu.Lock()
	s.waiters[key]++
	s.waitersMu.Unlock()
}

func (s *Service) leave(key string) {
	s.waitersMu.Lock()
	if s.waiters[key]--; s.waiters[key] <= 0 {
		delete(s.waiters, key)
	}
	s.waitersMu.Unlock()
}
