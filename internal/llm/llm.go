// Package llm is the boundary to the external text-generation service.
// The pipeline only sees Client and the typed error classes; transport
// details stay behind the interface.
package llm

import (
	"context"
	"errors"
)

// Typed backend failures. Stage and loop boundaries convert these into
// failure results instead of propagating them raw.
var (
	ErrConnection         = errors.New("llm: connection failed")
	ErrInvalidCredentials = errors.New("llm: invalid credentials")
	ErrMalformedResponse  = errors.New("llm: malformed response")
)

// Params tunes a single generation call.
type Params struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool // request a structured JSON document instead of prose
}

// Client generates text (or a JSON document when Params.JSONMode is
// set) from a rendered prompt.
type Client interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}
