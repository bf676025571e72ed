// Package admission defines sentinel errors.
package admission

import "errors"

// ErrConfigNotFound indicates a check against an unregistered policy name.
// It is fatal to the calling request and must surface as a 5xx-class failure.
var ErrConfigNotFound = errors.New("rate limit configuration not found")

// ErrInvalidConfig indicates a policy that fails validation.
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// ErrConfigExists indicates a duplicate policy registration.
var ErrConfigExists = errors.New("rate limit configuration already registered")
