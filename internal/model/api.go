package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// AnalyzeRequest is the request body for POST /v1/analyze.
type AnalyzeRequest struct {
	ProductName string   `json:"product_name"`
	Ingredients []string `json:"ingredients"`
	Concerns    []string `json:"concerns"`
}

// AnalyzeResponse is the data payload for POST /v1/analyze.
type AnalyzeResponse struct {
	ProductName string             `json:"product_name,omitempty"`
	Results     []IngredientRecord `json:"results"`
}

// HealthResponse is the data payload for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	ResolverMode  string `json:"resolver_mode"`
	StoreEntries  int    `json:"store_entries"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
