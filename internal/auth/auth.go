package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
)

// UserStore persists local accounts
type UserStore interface {
	InsertUser(ctx context.Context, email, name, role, hashedPassword string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// AuthService registers and authenticates local accounts
type AuthService struct {
	users UserStore
}

func NewAuthService(users UserStore) *AuthService {
	return &AuthService{users: users}
}

// CreateUser registers an account. The first account becomes an admin.
func (s *AuthService) CreateUser(ctx context.Context, email, name, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	return s.users.InsertUser(ctx, email, name, role, string(hashedPassword))
}

// ValidateUser checks a password login
func (s *AuthService) ValidateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ResolveUser maps verified claims to a stored user. Tokens from an external
// provider may carry only an email known locally.
func (s *AuthService) ResolveUser(ctx context.Context, claims *Claims) (*models.User, error) {
	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil || user != nil {
		return user, err
	}
	if claims.Email == "" {
		return nil, nil
	}
	return s.users.GetUserByEmail(ctx, strings.ToLower(claims.Email))
}
