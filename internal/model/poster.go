package model

import "time"

// Poster is a generated quote poster kept for history.
type Poster struct {
	ID          string    `json:"id"`
	BookTitle   string    `json:"book_title"`
	Quotes      []string  `json:"quotes"`
	PosterURL   string    `json:"poster_url"`
	ImageURL    string    `json:"image_url,omitempty"`
	CoreThought string    `json:"core_thought,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
