package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// CreatePoster records a generated poster.
func (r *Repository) CreatePoster(ctx context.Context, p *model.Poster) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posters (id, book_title, quotes, poster_url, image_url, core_thought, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		p.ID,
		p.BookTitle,
		pq.Array(p.Quotes),
		p.PosterURL,
		nullableString(p.ImageURL),
		nullableString(p.CoreThought),
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create poster: %w", err)
	}
	return nil
}

// ListPostersByTitle returns recent posters for a book, newest first.
func (r *Repository) ListPostersByTitle(ctx context.Context, title string, limit int) ([]*model.Poster, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, book_title, quotes, poster_url, image_url, core_thought, created_at
		FROM posters
		WHERE book_title = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, title, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posters: %w", err)
	}
	defer rows.Close()

	var posters []*model.Poster
	for rows.Next() {
		var (
			p           model.Poster
			quotes      []string
			imageURL    *string
			coreThought *string
		)
		if err := rows.Scan(&p.ID, &p.BookTitle, pq.Array(&quotes), &p.PosterURL, &imageURL, &coreThought, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan poster: %w", err)
		}
		p.Quotes = quotes
		p.ImageURL = stringOrEmpty(imageURL)
		p.CoreThought = stringOrEmpty(coreThought)
		posters = append(posters, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posters: %w", err)
	}
	return posters, nil
}
