package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kunledawodu/counterex/internal/domain"
	"github.com/kunledawodu/counterex/internal/models"
	"github.com/kunledawodu/counterex/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
)

// UserService handles registration and credential checks.
type UserService struct {
	store    QueryStore
	counters *CounterService
}

func NewUserService(store QueryStore, counters *CounterService) *UserService {
	return &UserService{store: store, counters: counters}
}

type RegisterCmd struct {
	Username string
	Email    string
	Password string
}

// Register creates the user together with a zeroed progress row per tier.
func (s *UserService) Register(ctx context.Context, cmd RegisterCmd) (models.User, error) {
	cmd.Username = strings.TrimSpace(cmd.Username)
	cmd.Email = strings.TrimSpace(cmd.Email)
	if cmd.Username == "" || cmd.Password == "" {
		return models.User{}, errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	var row repository.User
	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		var err error
		row, err = q.CreateUser(ctx, repository.CreateUserParams{
			ID:       repository.ToPgUUID(uuid.New()),
			Username: cmd.Username,
			Email:    cmd.Email,
			Password: string(hash),
			Role:     domain.RoleUser,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return s.counters.ensureAll(ctx, q, repository.FromPgUUID(row.ID))
	})
	if err != nil {
		return models.User{}, err
	}
	return userModel(row), nil
}

// Authenticate verifies a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	row, err := s.store.Queries().GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(row.Password), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return userModel(row), nil
}

// Get returns one user by ID.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	row, err := s.store.Queries().GetUser(ctx, repository.ToPgUUID(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return userModel(row), nil
}
