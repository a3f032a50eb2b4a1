// Package synth turns a prompt, a category and a count into an ordered batch
// of idea drafts. Implementations never assign ids or timestamps.
package synth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ideaforge/api/internal/idea"
)

// Synthesizer produces exactly count drafts or an error, never a partial batch.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string, category idea.Category, count int) ([]idea.Draft, error)
	Name() string
}

// Validate applies the input rules every backend shares.
func Validate(prompt string, category idea.Category, count int) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", idea.InvalidRequest("prompt", "please provide a prompt")
	}
	if !category.Valid() {
		return "", idea.InvalidRequest("category", "content type must be blog, video, or social")
	}
	if count < 1 {
		return "", idea.InvalidRequest("count", "count must be a positive integer")
	}
	return trimmed, nil
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	GenAIAPIKey string
	GenAIModel  string
	Model       ModelOptions
}

// New builds the synthesizer named by opts.Backend; "" means template.
func New(ctx context.Context, opts Options, log *zap.Logger) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "template":
		return NewTemplate(), nil
	case "model":
		gen, err := NewGenAIGenerator(ctx, opts.GenAIAPIKey, opts.GenAIModel)
		if err != nil {
			return nil, err
		}
		return NewModel(gen, opts.Model, log), nil
	default:
		return nil, fmt.Errorf("unknown synth backend %q", opts.Backend)
	}
}
