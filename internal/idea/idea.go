// Package idea holds the content-idea model shared by the synthesizers, the
// store and the lifecycle coordinator.
package idea

import (
	"strings"
	"time"
	"unicode/utf8"

	"ideaforge/api/internal/rbac"
)

// MaxTitleLength is counted in runes.
const MaxTitleLength = 100

type Category string

const (
	CategoryBlog   Category = "blog"
	CategoryVideo  Category = "video"
	CategorySocial Category = "social"
)

var Categories = []Category{CategoryBlog, CategoryVideo, CategorySocial}

func (c Category) Valid() bool {
	switch c {
	case CategoryBlog, CategoryVideo, CategorySocial:
		return true
	default:
		return false
	}
}

// ParseCategory normalizes case and surrounding whitespace before checking
// membership in the closed set.
func ParseCategory(raw string) (Category, error) {
	category := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !category.Valid() {
		return "", InvalidRequest("category", "content type must be blog, video, or social")
	}
	return category, nil
}

// Draft is the synthesizer output: content only, no identity or ownership.
type Draft struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category Category `json:"category"`
	Keywords []string `json:"keywords"`
}

type Idea struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  Category  `json:"category"`
	Keywords  []string  `json:"keywords"`
	Owner     string    `json:"owner,omitempty"`
	Saved     bool      `json:"saved"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Draft strips identity, ownership and timestamps.
func (i Idea) Draft() Draft {
	return Draft{
		Title:    i.Title,
		Body:     i.Body,
		Category: i.Category,
		Keywords: append([]string(nil), i.Keywords...),
	}
}

// Durable reports whether the record carries the invariants of a persisted idea.
func (i Idea) Durable() bool {
	return i.Saved && i.Owner != ""
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title    *string   `json:"title,omitempty"`
	Body     *string   `json:"body,omitempty"`
	Keywords *[]string `json:"keywords,omitempty"`
	Category *Category `json:"category,omitempty"`
	Owner    *string   `json:"owner,omitempty"`
}

// Apply returns the patched copy of current. Attempts to move an idea to a
// different category or owner are rejected rather than ignored.
func (p Patch) Apply(current Idea) (Idea, error) {
	if p.Category != nil && *p.Category != current.Category {
		return Idea{}, Validation("category", "category cannot be changed; delete and recreate the idea instead")
	}
	if p.Owner != nil && *p.Owner != current.Owner {
		return Idea{}, Validation("owner", "owner cannot be changed")
	}

	next := current
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Body != nil {
		next.Body = strings.TrimSpace(*p.Body)
	}
	if p.Keywords != nil {
		next.Keywords = NormalizeKeywords(*p.Keywords)
	}
	if err := ValidateDraft(next.Draft()); err != nil {
		return Idea{}, err
	}
	return next, nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Keywords == nil
}

// ValidateDraft enforces the persisted-record field constraints.
func ValidateDraft(d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return Validation("title", "please add a title")
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.Title)) > MaxTitleLength {
		return Validation("title", "title cannot be more than 100 characters")
	}
	if strings.TrimSpace(d.Body) == "" {
		return Validation("body", "please add content")
	}
	if !d.Category.Valid() {
		return Validation("category", "please specify the content type")
	}
	return nil
}

// NormalizeKeywords trims entries and drops blanks, keeping order. A nil
// input yields an empty, non-nil slice so records always serialize as [].
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		out = append(out, keyword)
	}
	return out
}

// TruncateTitle cuts a title to MaxTitleLength runes.
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:MaxTitleLength]))
}

// Principal is the authenticated actor resolved by the auth layer.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.ID) != ""
}

func (p Principal) IsAdmin() bool {
	return rbac.Normalize(p.Role) == rbac.RoleAdmin
}

// CanMutate is the single ownership predicate for reading, updating and
// deleting a durable idea.
func CanMutate(requester Principal, target Idea) bool {
	if !requester.Authenticated() {
		return false
	}
	return requester.ID == target.Owner || requester.IsAdmin()
}
