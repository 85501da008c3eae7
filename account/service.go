// Package account registers users and checks their credentials. Passwords are
// stored only as bcrypt hashes.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gurre/moviecat/model"
)

// ErrInvalidCredentials is returned when no user matches the username and password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore persists user rows.
type UserStore interface {
	Insert(ctx context.Context, u model.User) (model.User, error)
	FindByUsername(ctx context.Context, username string) ([]model.User, error)
}

// Service implements registration and login.
// Example:
//
//	store, err := account.OpenSQLite("moviecat.db")
//	svc := account.New(store, bcrypt.DefaultCost, nil)
//	id, err := svc.Authenticate(ctx, "alice", "secret")
type Service struct {
	users  UserStore
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Service hashing with the given bcrypt cost. Costs outside the
// bcrypt range fall back to bcrypt.DefaultCost.
func New(users UserStore, cost int, logger *slog.Logger) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		cost:   cost,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Register validates r, hashes the password and stores the user. Duplicate
// usernames are accepted.
func (s *Service) Register(ctx context.Context, r model.Registration) (model.User, error) {
	if err := r.Validate(); err != nil {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		// Passwords longer than 72 bytes are the only input bcrypt rejects.
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			v := &model.ValidationError{}
			v.Add("password", "must be at most 72 bytes")
			return model.User{}, v
		}
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Insert(ctx, model.User{
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: string(hash),
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return model.User{}, err
	}
	s.logger.Info("registered user", slog.Int64("user_id", u.UserID), slog.String("username", u.Username))
	return u, nil
}

// Authenticate returns the identity of the first user named username whose password
// hash matches, or ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (model.Identity, error) {
	if username == "" || password == "" {
		return model.Identity{}, ErrInvalidCredentials
	}
	users, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return model.Identity{}, err
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
			return model.Identity{UserID: u.UserID, Username: u.Username}, nil
		}
	}
	s.logger.Debug("login rejected", slog.String("username", username), slog.Int("candidates", len(users)))
	return model.Identity{}, ErrInvalidCredentials
}
