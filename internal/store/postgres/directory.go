package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

// Directory resolves user profiles from the users table for read-time joins.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	defer logger.DeferLogDuration("directory.GetByID", time.Now())()
	p := &model.UserProfile{}
	err := d.pool.QueryRow(ctx,
		`SELECT id, username, full_name, bio, avatar_url FROM users WHERE id = $1`, id,
	).Scan(&p.ID, &p.Username, &p.FullName, &p.Bio, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory.GetByID: %w", err)
	}
	return p, nil
}

func (d *Directory) GetMany(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	defer logger.DeferLogDuration("directory.GetMany", time.Now())()
	out := make(map[string]model.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, username, full_name, bio, avatar_url FROM users WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("directory.GetMany query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.UserProfile
		if err := rows.Scan(&p.ID, &p.Username, &p.FullName, &p.Bio, &p.AvatarURL); err != nil {
			return nil, fmt.Errorf("directory.GetMany scan: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory.GetMany rows: %w", err)
	}
	return out, nil
}
