package export

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"ideaforge/api/internal/idea"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplate     *htmltemplate.Template
	markdownTemplate *texttemplate.Template
)

func init() {
	funcMap := map[string]any{
		"upper":      strings.ToUpper,
		"join":       strings.Join,
		"formatDate": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006") },
	}
	htmlTemplate = htmltemplate.Must(htmltemplate.New("ideas.html").Funcs(funcMap).ParseFS(templateFS, "templates/ideas.html"))
	markdownTemplate = texttemplate.Must(texttemplate.New("ideas.md").Funcs(funcMap).ParseFS(templateFS, "templates/ideas.md"))
}

// TemplateData holds data for export rendering.
type TemplateData struct {
	Title       string
	Owner       string
	Category    idea.Category
	GeneratedAt time.Time
	Sections    []TemplateSection
}

// TemplateSection groups ideas of one category.
type TemplateSection struct {
	Category idea.Category
	Ideas    []idea.Idea
}

// buildTemplateData groups ideas by category in the canonical category order,
// preserving the newest-first order within each group.
func buildTemplateData(owner string, category idea.Category, ideas []idea.Idea, now time.Time) TemplateData {
	title := "Saved content ideas"
	if category != "" {
		title = "Saved " + string(category) + " ideas"
	}
	data := TemplateData{Title: title, Owner: owner, Category: category, GeneratedAt: now}
	for _, c := range idea.Categories {
		var group []idea.Idea
		for _, item := range ideas {
			if item.Category == c {
				group = append(group, item)
			}
		}
		if len(group) > 0 {
			data.Sections = append(data.Sections, TemplateSection{Category: c, Ideas: group})
		}
	}
	return data
}

// RenderHTML renders the ideas document as a standalone HTML page.
func RenderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderMarkdown renders the ideas document as Markdown.
func RenderMarkdown(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
