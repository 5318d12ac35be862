package hada

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	storeFormat string
	storePath   string
	logger      *slog.Logger
	version     string
	resolver    Resolver
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (HADA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithStore overrides the store format and path from config
// (HADA_STORE_FORMAT and HADA_STORE_PATH). format is "flat", "dimensional"
// or "sqlite"; an empty path uses the format's default file name.
func WithStore(format, path string) Option {
	return func(o *resolvedOptions) {
		o.storeFormat = format
		o.storePath = path
	}
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithResolver replaces the configured resolver. HADA_RESOLVER_MODE and
// OPENAI_API_KEY are ignored when a resolver is supplied.
func WithResolver(r Resolver) Option {
	return func(o *resolvedOptions) { o.resolver = r }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
