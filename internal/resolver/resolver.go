// Package resolver synthesizes ingredient records for names missing from the
// store by asking an external inference model.
//
// Resolvers never fail: every call returns a usable value. When the model is
// unreachable, slow, or answers with something that does not match the
// required schema, the result is a degraded placeholder marked with a
// sentinel and Err explains why. One ingredient's failure must never fail a
// whole batch.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ashita-ai/hada/internal/model"
)

// Mode selects the resolver implementation. It is always chosen explicitly by
// configuration, never inferred from whether a credential happens to exist.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeMock:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("resolver: unknown mode %q (must be live or mock)", s)
	}
}

// Resolver produces records and assessments for unknown ingredients.
// Implementations must be safe for concurrent use.
type Resolver interface {
	// ResolveRecord synthesizes a full record for ingredient.
	ResolveRecord(ctx context.Context, ingredient string) RecordResult

	// ResolveAssessment judges ingredient against a single concern.
	ResolveAssessment(ctx context.Context, ingredient string, concern model.Concern) AssessmentResult

	Mode() Mode
}

// RecordResult always carries a usable Record. Err is non-nil (a
// *TransportError or *SchemaError) exactly when Record is degraded.
type RecordResult struct {
	Record model.IngredientRecord
	Err    error
}

// AssessmentResult always carries a usable Assessment. Err is non-nil exactly
// when Assessment is degraded.
type AssessmentResult struct {
	Assessment model.ConcernAssessment
	Err        error
}

// TransportError covers network failures, timeouts and non-200 responses.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resolver: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("resolver: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError means the model answered but the content was not a JSON object
// with exactly the required keys and valid values.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "resolver: invalid response: " + e.Reason
}

// ErrNoCredential is returned by New when live mode has no API key.
var ErrNoCredential = errors.New("resolver: live mode requires an API key")

// APIKeyProvider supplies the resolver credential or reports its absence.
type APIKeyProvider interface {
	APIKey() (string, bool)
}

// EnvKey reads the credential from an environment variable.
type EnvKey string

// APIKey implements APIKeyProvider.
func (e EnvKey) APIKey() (string, bool) {
	v := os.Getenv(string(e))
	return v, v != ""
}

// StaticKey is a fixed credential.
type StaticKey string

// APIKey implements APIKeyProvider.
func (k StaticKey) APIKey() (string, bool) {
	return string(k), k != ""
}

// Options configures New.
type Options struct {
	Mode    Mode
	Keys    APIKeyProvider
	Model   string
	BaseURL string
	Timeout time.Duration // per call
	RPS     float64       // outbound requests per second; 0 means unlimited

	HTTPClient *http.Client // optional, for tests
	Logger     *slog.Logger
}

// New builds the resolver for opts.Mode.
func New(opts Options) (Resolver, error) {
	switch opts.Mode {
	case ModeMock:
		return NewMock(), nil
	case ModeLive:
		if opts.Keys == nil {
			return nil, ErrNoCredential
		}
		key, ok := opts.Keys.APIKey()
		if !ok {
			return nil, ErrNoCredential
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:     key,
			Model:      opts.Model,
			BaseURL:    opts.BaseURL,
			Timeout:    opts.Timeout,
			RPS:        opts.RPS,
			HTTPClient: opts.HTTPClient,
		}), nil
	default:
		return nil, fmt.Errorf("resolver: mode must be set explicitly (got %q)", opts.Mode)
	}
}
