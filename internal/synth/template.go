package synth

import (
	"context"
	"fmt"
	"strings"

	"ideaforge/api/internal/idea"
)

type categoryTemplate struct {
	title    string
	body     string
	keywords func(lowered string) []string
}

var templates = map[idea.Category]categoryTemplate{
	idea.CategoryBlog: {
		title: "%d. How %s is Changing the Industry in 2025",
		body:  "This blog post will explore the revolutionary ways that %s is transforming industry standards and practices. Cover the latest innovations, expert insights, and future predictions.",
		keywords: func(lowered string) []string {
			return []string{"innovation", lowered, "industry trends", "2025 forecast"}
		},
	},
	idea.CategoryVideo: {
		title: "%d. 5 Minutes to Understand %s: A Visual Guide",
		body:  "Create a concise, visually engaging explanation of %s that anyone can understand in just 5 minutes. Use animations, real-world examples, and expert interviews.",
		keywords: func(lowered string) []string {
			return []string{"explainer video", lowered, "visual guide", "beginner friendly"}
		},
	},
	idea.CategorySocial: {
		title: "%d. Did you know these 3 facts about %s? #MindBlown",
		body:  "Short-form carousel post revealing surprising facts about %s that most people don't know. Perfect for Instagram and LinkedIn. Include eye-catching graphics and a call to action.",
		keywords: func(lowered string) []string {
			return []string{lowered, "facts", "didyouknow", "mindblown"}
		},
	},
}

// Template is the deterministic, side-effect free synthesizer.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (t *Template) Name() string {
	return "template"
}

func (t *Template) Synthesize(_ context.Context, prompt string, category idea.Category, count int) ([]idea.Draft, error) {
	trimmed, err := Validate(prompt, category, count)
	if err != nil {
		return nil, err
	}
	tmpl := templates[category]
	lowered := strings.ToLower(trimmed)

	drafts := make([]idea.Draft, 0, count)
	for ordinal := 1; ordinal <= count; ordinal++ {
		drafts = append(drafts, idea.Draft{
			Title:    idea.TruncateTitle(fmt.Sprintf(tmpl.title, ordinal, trimmed)),
			Body:     fmt.Sprintf(tmpl.body, trimmed),
			Category: category,
			Keywords: tmpl.keywords(lowered),
		})
	}
	return drafts, nil
}
