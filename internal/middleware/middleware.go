// Package middleware provides the built-in admission middlewares: request
// validation, content screening, global throughput capping, and the rate
// limit adapter bridging the admission engine into the pipeline.
package middleware

import (
	"encoding/json"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

// Error codes surfaced in rejection bodies.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeSecurityViolation = "AI_SECURITY_VIOLATION"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeContentThreat     = "CONTENT_THREAT"
)

// Priorities used by the built-in middlewares. Lower runs first.
const (
	PriorityThroughput = 5
	PriorityValidation = 10
	PriorityContent    = 20
	PriorityRateLimit  = 30
)

type errorBody struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// reject writes a JSON rejection response and aborts the chain.
func reject(mctx *domain.Context, status int, code, message string) {
	resp := mctx.EnsureResponse()
	resp.StatusCode = status
	resp.Headers["content-type"] = "application/json"
	body, err := json.Marshal(errorBody{
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		resp.Body = body
	}
	mctx.Abort()
}
