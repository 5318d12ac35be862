package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/telemetry"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultBaseURL = "https://api.openai.com/v1"

	// defaultTimeout bounds a single chat completion. The HTTP client timeout
	// sits slightly above it so the context deadline fires first.
	defaultTimeout = 15 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible chat completions resolver.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	HTTPClient *http.Client
}

// OpenAI resolves ingredients through the chat completions API with
// temperature 0 and JSON-object response format.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter // nil when unlimited
	httpClient *http.Client

	duration metric.Float64Histogram
}

// NewOpenAI creates a live resolver.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	dur, _ := telemetry.Meter("hada/resolver").Float64Histogram("hada.resolver.duration",
		metric.WithDescription("Time spent in external resolver calls (ms)"),
		metric.WithUnit("ms"),
	)
	return &OpenAI{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		limiter:    limiter,
		httpClient: client,
		duration:   dur,
	}
}

// Mode implements Resolver.
func (o *OpenAI) Mode() Mode { return ModeLive }

// ResolveRecord implements Resolver.
func (o *OpenAI) ResolveRecord(ctx context.Context, ingredient string) RecordResult {
	content, err := o.complete(ctx, "record", recordSystemPrompt, recordUserPrompt(ingredient))
	if err != nil {
		return RecordResult{Record: DegradedRecord(ingredient, err), Err: err}
	}
	rec, err := ParseRecord(content)
	if err != nil {
		return RecordResult{Record: DegradedRecord(ingredient, err), Err: err}
	}
	// The stored display name must match the lookup key, so the caller's
	// spelling wins over whatever name the model chose.
	rec.Chemical = ingredient
	return RecordResult{Record: rec}
}

// ResolveAssessment implements Resolver.
func (o *OpenAI) ResolveAssessment(ctx context.Context, ingredient string, concern model.Concern) AssessmentResult {
	content, err := o.complete(ctx, "assessment", assessmentSystemPrompt, assessmentUserPrompt(ingredient, concern))
	if err != nil {
		return AssessmentResult{Assessment: DegradedAssessment(err), Err: err}
	}
	a, err := ParseAssessment(content)
	if err != nil {
		return AssessmentResult{Assessment: DegradedAssessment(err), Err: err}
	}
	return AssessmentResult{Assessment: a}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete runs one chat completion and returns the assistant content.
// Errors are *TransportError or *SchemaError.
func (o *OpenAI) complete(ctx context.Context, kind, system, user string) (content string, err error) {
	ctx, span := telemetry.Tracer("hada/resolver").Start(ctx, "resolver."+kind)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome)))
		span.End()
	}()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if o.limiter != nil {
		if err := o.limiter.Wait(callCtx); err != nil {
			return "", &TransportError{Op: "rate limit wait", Err: err}
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", &TransportError{Op: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	otel.GetTextMapPropagator().Inject(callCtx, propagation.HeaderCarrier(req.Header))

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &TransportError{Op: "request", Err: fmt.Errorf("timed out after %s", o.timeout)}
		}
		return "", &TransportError{Op: "request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &TransportError{Op: "request", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(respBody)))}
	}

	var result chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", &TransportError{Op: "decode response", Err: err}
	}
	if result.Error != nil {
		return "", &TransportError{Op: "request", Err: fmt.Errorf("%s: %s", result.Error.Type, result.Error.Message)}
	}
	if len(result.Choices) == 0 {
		return "", &SchemaError{Reason: "no choices in response"}
	}
	return result.Choices[0].Message.Content, nil
}
