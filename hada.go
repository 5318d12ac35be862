// Package hada is the public API for embedding the hada ingredient safety
// server.
//
// Programs that want the server inside their own process, or that bring
// their own ingredient resolver, import this package instead of forking
// cmd/hada:
//
//	app, err := hada.New(
//	    hada.WithVersion(version),
//	    hada.WithLogger(logger),
//	    hada.WithResolver(myResolver{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: hada (root) imports
// internal/*, but internal/* never imports hada (root). Public types
// (Record, Assessment, Concern) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package hada

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/hada/api"
	"github.com/ashita-ai/hada/internal/config"
	"github.com/ashita-ai/hada/internal/mcp"
	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/ratelimit"
	"github.com/ashita-ai/hada/internal/resolver"
	"github.com/ashita-ai/hada/internal/server"
	"github.com/ashita-ai/hada/internal/service/analysis"
	"github.com/ashita-ai/hada/internal/store"
	"github.com/ashita-ai/hada/internal/telemetry"
)

const shutdownPhaseTimeout = 10 * time.Second

// App is the hada server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	store        *store.Store
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the hada server. It loads configuration, opens the store
// (refusing a corrupt artifact), builds the resolver and wires every
// subsystem. It does NOT accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Parse()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.storeFormat != "" {
		cfg.StoreFormat = o.storeFormat
		cfg.StorePath = o.storePath
		if cfg.StorePath == "" {
			cfg.StorePath = config.DefaultStorePath(o.storeFormat)
		}
	}
	cfg.ExternalResolver = o.resolver != nil
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.Info("hada starting",
		"version", version,
		"port", cfg.Port,
		"store_format", cfg.StoreFormat,
		"store_path", cfg.StorePath,
	)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	res, err := newResolver(cfg, o.resolver, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("resolver: %w", err)
	}

	// Open the store. A corrupt artifact stops startup here; it is never reset.
	backend, err := newBackend(cfg)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	st, err := store.Open(context.Background(), backend, logger)
	if err != nil {
		_ = backend.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("open store: %w", err)
	}

	analysisSvc := analysis.New(st, res, analysis.Config{
		ResolverConcurrency: int64(cfg.ResolverConcurrency),
		BatchConcurrency:    cfg.BatchConcurrency,
	}, logger)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting enabled", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	mcpSrv := mcp.New(analysisSvc, cfg.MaxBatchSize, logger, version)
	srv := server.New(server.ServerConfig{
		AnalysisSvc:         analysisSvc,
		Store:               st,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Middlewares:         middlewares,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		MaxBatchSize:        cfg.MaxBatchSize,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        st,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for tests and for programs that
// serve hada on their own listener instead of calling Run.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is done or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until signal or server error.
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	return errors.Join(serveErr, a.Shutdown(context.Background()))
}

// Shutdown performs a two-phase graceful shutdown:
// (1) stop accepting HTTP requests and drain in-flight ones, whose
// resolutions still write through to the store,
// (2) final store flush and close.
// It then stops the rate limiter and the OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("hada shutting down")

	// Phase 1: HTTP drain.
	httpCtx, httpCancel := context.WithTimeout(ctx, shutdownPhaseTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	// Phase 2: final flush.
	var storeErr error
	storeCtx, storeCancel := context.WithTimeout(ctx, shutdownPhaseTimeout)
	if err := a.store.Close(storeCtx); err != nil {
		a.logger.Error("store close failed; the last writes may be lost", "error", err, "entries", a.store.Len())
		storeErr = fmt.Errorf("store close: %w", err)
	}
	storeCancel()

	// Cleanup.
	_ = a.limiter.Close()
	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Warn("otel shutdown error", "error", err)
	}

	a.logger.Info("hada stopped")
	return storeErr
}

// newResolver returns the embedding program's resolver when one was given,
// otherwise the configured live or mock resolver.
func newResolver(cfg config.Config, external Resolver, logger *slog.Logger) (resolver.Resolver, error) {
	if external != nil {
		logger.Info("resolver: external")
		return &resolverAdapter{inner: external}, nil
	}

	mode, err := resolver.ParseMode(cfg.ResolverMode)
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(resolver.Options{
		Mode:    mode,
		Keys:    resolver.StaticKey(cfg.OpenAIAPIKey),
		Model:   cfg.ResolverModel,
		BaseURL: cfg.ResolverBaseURL,
		Timeout: cfg.ResolverTimeout,
		RPS:     cfg.ResolverRPS,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if mode == resolver.ModeMock {
		logger.Warn("resolver: running in mock mode; results are placeholders")
	} else {
		logger.Info("resolver: live", "model", cfg.ResolverModel, "base_url", cfg.ResolverBaseURL)
	}
	return res, nil
}

// newBackend selects the durable backend for cfg.StoreFormat.
func newBackend(cfg config.Config) (store.Backend, error) {
	switch cfg.StoreFormat {
	case config.StoreFlat:
		return store.NewFlatFile(cfg.StorePath), nil
	case config.StoreDimensional:
		return store.NewDimensionalFile(cfg.StorePath), nil
	case config.StoreSQLite:
		b, err := store.NewSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store format %q", cfg.StoreFormat)
	}
}

// resolverAdapter wraps a public Resolver in the internal contract: errors
// become degraded results rather than propagating.
type resolverAdapter struct {
	inner Resolver
}

const modeExternal resolver.Mode = "external"

func (a *resolverAdapter) Mode() resolver.Mode { return modeExternal }

func (a *resolverAdapter) ResolveRecord(ctx context.Context, ingredient string) resolver.RecordResult {
	rec, err := a.inner.ResolveRecord(ctx, ingredient)
	if err != nil {
		te := &resolver.TransportError{Op: "external resolver", Err: err}
		return resolver.RecordResult{Record: resolver.DegradedRecord(ingredient, te), Err: te}
	}
	out := fromPublicRecord(rec)
	out.Chemical = ingredient
	return resolver.RecordResult{Record: out}
}

func (a *resolverAdapter) ResolveAssessment(ctx context.Context, ingredient string, concern model.Concern) resolver.AssessmentResult {
	as, err := a.inner.ResolveAssessment(ctx, ingredient, Concern(concern))
	if err != nil {
		te := &resolver.TransportError{Op: "external resolver", Err: err}
		return resolver.AssessmentResult{Assessment: resolver.DegradedAssessment(te), Err: te}
	}
	safe := strings.ToLower(strings.TrimSpace(as.Safe))
	switch safe {
	case model.SafetySafe, model.SafetyNeutral, model.SafetyNotSafe:
	default:
		se := &resolver.SchemaError{Reason: fmt.Sprintf("safe: unrecognized value %q", as.Safe)}
		return resolver.AssessmentResult{Assessment: resolver.DegradedAssessment(se), Err: se}
	}
	return resolver.AssessmentResult{Assessment: model.ConcernAssessment{Safe: safe, Reason: as.Reason}}
}

func fromPublicRecord(r Record) model.IngredientRecord {
	return model.IngredientRecord{
		Chemical:                 r.Chemical,
		Description:              r.Description,
		Source:                   r.Source,
		HumanHealth:              r.HumanHealth,
		EnvironmentalImpact:      r.EnvironmentalImpact,
		PregnancySafe:            r.PregnancySafe,
		Fragrance:                r.Fragrance,
		Acneogenic:               model.Score(strconv.FormatFloat(r.Acneogenic, 'f', -1, 64)),
		SensitivityRisk:          r.SensitivityRisk,
		HyperpigmentationBenefit: r.HyperpigmentationBenefit,
		AntiAgingBenefit:         r.AntiAgingBenefit,
	}
}
