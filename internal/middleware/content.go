package middleware

import (
	"context"
	"strings"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// ThreatClassifier inspects request content and reports whether it should
// be blocked, with a short machine-readable category.
type ThreatClassifier interface {
	Classify(mctx *domain.Context) (blocked bool, category string)
}

// ClassifierFunc adapts a function to the ThreatClassifier interface.
type ClassifierFunc func(mctx *domain.Context) (bool, string)

// Classify implements ThreatClassifier.
func (f ClassifierFunc) Classify(mctx *domain.Context) (bool, string) {
	return f(mctx)
}

// KeywordClassifier blocks bodies containing any of the listed substrings,
// compared case-insensitively.
func KeywordClassifier(keywords ...string) ThreatClassifier {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != "" {
			lowered = append(lowered, strings.ToLower(kw))
		}
	}
	return ClassifierFunc(func(mctx *domain.Context) (bool, string) {
		if len(mctx.Request.Body) == 0 {
			return false, ""
		}
		body := strings.ToLower(string(mctx.Request.Body))
		for _, kw := range lowered {
			if strings.Contains(body, kw) {
				return true, "keyword:" + kw
			}
		}
		return false, ""
	})
}

// ContentOptions configure the content screening middleware.
type ContentOptions struct {
	Classifier ThreatClassifier
	Logger     observability.Logger
}

// Content builds a middleware that screens request content through the
// classifier and rejects threats with a 403.
func Content(opts ContentOptions) *pipeline.Config {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewStdLogger(nil)
	}
	handler := func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
		if opts.Classifier != nil {
			if blocked, category := opts.Classifier.Classify(mctx); blocked {
				logger.Info("content threat blocked", map[string]any{
					"request_id": mctx.Request.ID,
					"category":   category,
				})
				reject(mctx, 403, CodeContentThreat, "content blocked")
				return nil
			}
		}
		return next(ctx)
	}
	return &pipeline.Config{
		Name:     "content",
		Priority: PriorityContent,
		Enabled:  true,
		Handler:  handler,
	}
}
