package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"courier/api/internal/util"
)

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return User{}, fmt.Errorf("%w: username must not be empty", ErrValidation)
	}
	if user.ID == "" {
		user.ID = util.NewID("usr")
	}
	if user.Role == "" {
		user.Role = "member"
	}
	user.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.Email, user.Role, user.CreatedAt)
	if err != nil {
		return User{}, classify(fmt.Errorf("insert user: %w", err))
	}
	return user, nil
}

func (s *SQLStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return User{}, classify(fmt.Errorf("get user: %w", err))
	}
	return user, nil
}

func userExists(ctx context.Context, q queryer, userID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}
