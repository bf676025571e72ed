// Package httpbind adapts net/http requests onto the middleware pipeline.
package httpbind

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// DefaultMaxBodyBytes caps how much of a request body is buffered for
// admission checks.
const DefaultMaxBodyBytes = 1 << 20

// Options configure the binding.
type Options struct {
	// MaxBodyBytes caps the buffered request body. Zero means
	// DefaultMaxBodyBytes; negative disables buffering entirely.
	MaxBodyBytes int64
	// ExtractUser resolves the authenticated caller, when one exists.
	ExtractUser func(r *http.Request) *domain.User
	// Logger receives pipeline failures. Defaults to a silent logger.
	Logger observability.Logger
}

// Handler wraps next with the middleware pipeline. Aborted requests are
// answered from the pipeline's response; admitted requests flow through to
// next carrying any headers the pipeline set.
func Handler(p *pipeline.Pipeline, opts Options, next http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewStdLogger(nil)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mctx := contextFrom(r, maxBody)
		if opts.ExtractUser != nil {
			mctx.User = opts.ExtractUser(r)
		}

		ctx := observability.WithTraceID(r.Context(), mctx.Request.ID)
		if err := p.Execute(ctx, mctx); err != nil {
			logger.Error("pipeline execution failed", map[string]any{
				"request_id": mctx.Request.ID,
				"error":      err.Error(),
			})
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if mctx.Response != nil {
			for key, value := range mctx.Response.Headers {
				w.Header().Set(key, value)
			}
		}
		if mctx.Aborted {
			status := http.StatusForbidden
			var body []byte
			if mctx.Response != nil {
				if mctx.Response.StatusCode != 0 {
					status = mctx.Response.StatusCode
				}
				body = mctx.Response.Body
			}
			w.WriteHeader(status)
			_, _ = w.Write(body)
			return
		}

		// Validators may have swapped in a sanitized body.
		if mctx.Request.Body != nil {
			r.Body = io.NopCloser(bytes.NewReader(mctx.Request.Body))
			r.ContentLength = int64(len(mctx.Request.Body))
		}
		next.ServeHTTP(w, r)
	})
}

func contextFrom(r *http.Request, maxBody int64) *domain.Context {
	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(key)] = values[0]
		}
	}

	var body []byte
	if maxBody > 0 && r.Body != nil && r.Body != http.NoBody {
		body, _ = io.ReadAll(io.LimitReader(r.Body, maxBody))
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	id := headers["x-request-id"]
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	return domain.NewContext(domain.Request{
		ID:         id,
		Method:     r.Method,
		URL:        r.URL.Path,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	})
}
