package middleware

import (
	"context"
	"errors"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// Validator inspects a request body and either rejects it or returns the
// sanitized bytes to carry forward. A nil sanitized slice keeps the
// original body.
type Validator interface {
	Validate(mctx *domain.Context) (sanitized []byte, err error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(mctx *domain.Context) ([]byte, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(mctx *domain.Context) ([]byte, error) {
	return f(mctx)
}

// MaxBodyValidator rejects bodies larger than limit bytes.
func MaxBodyValidator(limit int) Validator {
	return ValidatorFunc(func(mctx *domain.Context) ([]byte, error) {
		if limit > 0 && len(mctx.Request.Body) > limit {
			return nil, &ValidationError{Message: "request body too large"}
		}
		return nil, nil
	})
}

// ValidationError carries a caller-visible rejection message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation builds a middleware that runs each validator in order. The
// first failure rejects the request with a 400; successful validators may
// replace the request body with a sanitized copy.
func Validation(validators ...Validator) *pipeline.Config {
	handler := func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
		for _, v := range validators {
			if v == nil {
				continue
			}
			sanitized, err := v.Validate(mctx)
			if err != nil {
				message := "request validation failed"
				var verr *ValidationError
				if errors.As(err, &verr) && verr.Message != "" {
					message = verr.Message
				}
				reject(mctx, 400, CodeValidationFailed, message)
				return nil
			}
			if sanitized != nil {
				mctx.Request.Body = sanitized
			}
		}
		return next(ctx)
	}
	return &pipeline.Config{
		Name:     "validation",
		Priority: PriorityValidation,
		Enabled:  true,
		Handler:  handler,
	}
}
