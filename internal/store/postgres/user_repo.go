package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samikhan1239/Fiver/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar, email, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, u.ID, u.Name, u.Avatar, u.Email)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, avatar, email, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
