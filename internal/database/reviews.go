package database

import (
	"context"
	"fmt"
	"time"

	"carservice/internal/domain"
	"carservice/internal/model"
)

func (db *DB) AddReview(ctx context.Context, r *model.Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.Visible = true
	res, err := db.ExecContext(ctx,
		"INSERT INTO reviews (author_id, author, text, visible, created_at) VALUES (?, ?, ?, 1, ?)",
		r.AuthorID, r.Author, r.Text, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// ListVisibleReviews returns the newest visible reviews first.
func (db *DB) ListVisibleReviews(ctx context.Context, limit int) ([]model.Review, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		"SELECT id, author_id, author, text, visible, created_at FROM reviews WHERE visible = 1 ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.AuthorID, &r.Author, &r.Text, &r.Visible, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) HideReview(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "UPDATE reviews SET visible = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("review", id)
	}
	return nil
}
