package hada

import (
	"context"
	"net/http"
)

// Resolver synthesizes data for ingredients the store has never seen.
// When provided via WithResolver, replaces the configured live or mock
// resolver. Implementations must be safe for concurrent use.
//
// A returned error never fails a request: the ingredient is answered with a
// degraded placeholder (Source "API Error" or safe "unknown") that is not
// persisted, so the next request retries it.
type Resolver interface {
	ResolveRecord(ctx context.Context, ingredient string) (Record, error)
	ResolveAssessment(ctx context.Context, ingredient string, concern Concern) (Assessment, error)
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
