package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// InsertUser stores a user whose password is already hashed
func (s *Store) InsertUser(ctx context.Context, email, name, role, hashedPassword string) (*models.User, error) {
	u := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		Password:  hashedPassword,
		CreatedAt: now(),
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.Role, u.Password, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with email, or nil
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, role, password, created_at FROM users WHERE email = ?`, email)
}

// GetUser returns the user with id, or nil
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, role, password, created_at FROM users WHERE id = ?`, id)
}

// CountUsers returns the number of registered users
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	u := &models.User{}
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Password, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// AddGroupMember puts userID into groupID
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO group_member (group_id, user_id) VALUES (?, ?)
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// GroupIDsForUser returns the ids of the groups userID belongs to
func (s *Store) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT group_id FROM group_member WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
