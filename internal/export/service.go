package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/ideastore"
)

// IdeaLister is the slice of the idea store export reads from.
type IdeaLister interface {
	ListByOwner(ctx context.Context, owner string, filter ideastore.Filter) ([]idea.Idea, error)
}

// Service provides idea export functionality
type Service struct {
	ideas     IdeaLister
	archiver  Archiver
	log       *zap.Logger
	now       func() time.Time
	renderPDF func(ctx context.Context, html string) ([]byte, error)
}

// NewService creates a new export service. archiver may be nil.
func NewService(ideas IdeaLister, archiver Archiver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{ideas: ideas, log: log, now: time.Now, renderPDF: renderPDF}
	// A typed nil *MinioArchiver must not be stored in the interface.
	if ma, ok := archiver.(*MinioArchiver); !ok || ma != nil {
		s.archiver = archiver
	}
	return s
}

// Export renders every saved idea of the requesting principal, optionally
// narrowed to one category.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if !req.Owner.Authenticated() {
		return nil, idea.Unauthenticated("sign in to export ideas")
	}
	if req.Category != "" && !req.Category.Valid() {
		return nil, idea.InvalidRequest("category", "content type must be blog, video, or social")
	}

	ideas, err := s.ideas.ListByOwner(ctx, req.Owner.ID, ideastore.Filter{Category: req.Category})
	if err != nil {
		return nil, fmt.Errorf("list ideas for export: %w", err)
	}

	now := s.now().UTC()
	data := buildTemplateData(req.Owner.ID, req.Category, ideas, now)
	stem := sanitizeFilename(data.Title)

	res := &Result{Count: len(ideas), CreatedAt: now}
	switch req.Format {
	case FormatMarkdown, "":
		md, err := RenderMarkdown(data)
		if err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		res.Data, res.Filename, res.MimeType = []byte(md), stem+".md", "text/markdown; charset=utf-8"
	case FormatHTML:
		html, err := RenderHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		res.Data, res.Filename, res.MimeType = []byte(html), stem+".html", "text/html; charset=utf-8"
	case FormatPDF:
		html, err := RenderHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		pdf, err := s.renderPDF(ctx, html)
		if err != nil {
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		res.Data, res.Filename, res.MimeType = pdf, stem+".pdf", "application/pdf"
	default:
		return nil, idea.InvalidRequest("format", fmt.Sprintf("unsupported format: %s", req.Format))
	}

	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, req.Owner.ID, res)
		if err != nil {
			s.log.Warn("export: archive failed", zap.String("owner_id", req.Owner.ID), zap.Error(err))
		} else {
			res.ArchiveKey = key
		}
	}
	return res, nil
}
