package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdeaRow is the persisted shape of a durable idea.
type IdeaRow struct {
	ID        string
	OwnerID   string
	Title     string
	Body      string
	Category  string
	Keywords  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdeaFilter narrows ListIdeasByOwner. Zero values mean no filter.
type IdeaFilter struct {
	Category string
	Limit    int
	Offset   int
}
