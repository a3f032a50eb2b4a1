package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"ideaforge/api/internal/idea"
)

const defaultGenAIModel = "gemini-2.0-flash"

var systemPrompts = map[idea.Category]string{
	idea.CategoryBlog:   `Generate %d unique blog post ideas about "%s". For each idea, provide a compelling title and a brief description that includes potential key points to cover. Also suggest 3-5 relevant keywords for SEO.`,
	idea.CategoryVideo:  `Generate %d engaging video content ideas about "%s". For each idea, provide an attention-grabbing title and a brief description of what the video would cover. Include potential talking points and visual elements. Also suggest 3-5 relevant keywords for discoverability.`,
	idea.CategorySocial: `Generate %d social media content ideas about "%s". For each idea, provide a catchy caption/headline and a brief description of the content. Specify which platform(s) it would work best on (Instagram, Twitter, LinkedIn, TikTok, etc.). Also suggest 3-5 relevant hashtags.`,
}

const responseFormat = `Respond with a JSON array only. Each element must be an object with the keys "title" (at most 100 characters), "body" (the description) and "keywords" (an array of strings).`

// Generator is one raw completion round trip against a generative model.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GenAIGenerator calls the Gemini API through google.golang.org/genai.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	if model == "" {
		model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w", err)
	}
	return resp.Text(), nil
}

// ModelOptions tune the breaker around the model backend.
type ModelOptions struct {
	Timeout          time.Duration
	FailureThreshold uint
	FailureWindow    uint
	OpenDelay        time.Duration
}

func (o *ModelOptions) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.FailureWindow == 0 {
		o.FailureWindow = 5
	}
	if o.FailureThreshold == 0 || o.FailureThreshold > o.FailureWindow {
		o.FailureThreshold = 3
		if o.FailureThreshold > o.FailureWindow {
			o.FailureThreshold = o.FailureWindow
		}
	}
	if o.OpenDelay <= 0 {
		o.OpenDelay = 30 * time.Second
	}
}

// Model is the generative-model backed synthesizer.
type Model struct {
	gen     Generator
	breaker circuitbreaker.CircuitBreaker[[]idea.Draft]
	timeout time.Duration
	log     *zap.Logger
}

func NewModel(gen Generator, opts ModelOptions, log *zap.Logger) *Model {
	opts.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	breaker := circuitbreaker.NewBuilder[[]idea.Draft]().
		WithFailureThresholdRatio(opts.FailureThreshold, opts.FailureWindow).
		WithDelay(opts.OpenDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.Warn("synth: model circuit breaker state change",
				zap.String("from", event.OldState.String()),
				zap.String("to", event.NewState.String()),
			)
		}).
		Build()
	return &Model{gen: gen, breaker: breaker, timeout: opts.Timeout, log: log}
}

func (m *Model) Name() string {
	return "model"
}

func (m *Model) Synthesize(ctx context.Context, prompt string, category idea.Category, count int) ([]idea.Draft, error) {
	trimmed, err := Validate(prompt, category, count)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(systemPrompts[category], count, trimmed) + " " + responseFormat

	drafts, err := failsafe.With(m.breaker).Get(func() ([]idea.Draft, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		raw, err := m.gen.Generate(callCtx, system, trimmed)
		if err != nil {
			return nil, err
		}
		return parseDrafts(raw, category, count)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, idea.SynthesisUnavailable(fmt.Errorf("model backend circuit open: %w", err))
		}
		return nil, idea.SynthesisUnavailable(err)
	}
	return drafts, nil
}

type modelIdea struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Hashtags    []string `json:"hashtags"`
}

// parseDrafts accepts a bare JSON array or an object wrapping it under
// "ideas". Fewer than count usable items fails the whole batch.
func parseDrafts(raw string, category idea.Category, count int) ([]idea.Draft, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var items []modelIdea
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		var wrapped struct {
			Ideas []modelIdea `json:"ideas"`
		}
		if wrapErr := json.Unmarshal([]byte(raw), &wrapped); wrapErr != nil {
			return nil, fmt.Errorf("decode model response: %w", err)
		}
		items = wrapped.Ideas
	}

	drafts := make([]idea.Draft, 0, count)
	for _, item := range items {
		if len(drafts) == count {
			break
		}
		body := firstNonBlank(item.Body, item.Content, item.Description)
		keywords := item.Keywords
		if len(keywords) == 0 {
			keywords = item.Hashtags
		}
		draft := idea.Draft{
			Title:    idea.TruncateTitle(strings.TrimSpace(item.Title)),
			Body:     strings.TrimSpace(body),
			Category: category,
			Keywords: idea.NormalizeKeywords(keywords),
		}
		if idea.ValidateDraft(draft) != nil {
			continue
		}
		drafts = append(drafts, draft)
	}
	if len(drafts) < count {
		return nil, fmt.Errorf("model returned %d usable ideas, want %d", len(drafts), count)
	}
	return drafts, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
