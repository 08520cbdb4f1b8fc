// Package auth registers users and checks their passwords. It is the only
// place that sees plaintext passwords; the ledger stores bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/store"
)

var (
	ErrMissingField       = errors.New("missing field")
	ErrPasswordMismatch   = errors.New("passwords don't match")
	ErrUsernameTaken      = ledger.ErrUsernameTaken
	ErrInvalidCredentials = errors.New("invalid username and/or password")
)

// DefaultInitialCash is the opening balance of a new account.
var DefaultInitialCash = decimal.NewFromInt(10000)

type Service struct {
	db          store.Querier
	ledger      *ledger.Ledger
	initialCash decimal.Decimal
	cost        int
	logger      *slog.Logger
}

type Option func(*Service)

// WithInitialCash sets the opening balance for new users.
func WithInitialCash(cash decimal.Decimal) Option {
	return func(s *Service) { s.initialCash = cash }
}

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(db store.Querier, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		db:          db,
		ledger:      l,
		initialCash: DefaultInitialCash,
		cost:        bcrypt.DefaultCost,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.New(s.logger)
	}
	s.logger = s.logger.With("component", "auth")
	return s
}

// Register creates a user after checking the form fields.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (ledger.User, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return ledger.User{}, fmt.Errorf("%w: username", ErrMissingField)
	case password == "":
		return ledger.User{}, fmt.Errorf("%w: password", ErrMissingField)
	case confirmation == "":
		return ledger.User{}, fmt.Errorf("%w: password confirmation", ErrMissingField)
	case password != confirmation:
		return ledger.User{}, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return ledger.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.ledger.CreateUser(ctx, s.db, username, string(hash), s.initialCash)
	if err != nil {
		return ledger.User{}, err
	}
	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate returns the user when the password matches.
func (s *Service) Authenticate(ctx context.Context, username, password string) (ledger.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return ledger.User{}, ErrInvalidCredentials
	}
	u, err := s.ledger.UserByUsername(ctx, s.db, username)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return ledger.User{}, ErrInvalidCredentials
		}
		return ledger.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)); err != nil {
		return ledger.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup resolves a username without checking a password. The CLI uses it
// to act on behalf of a local user.
func (s *Service) Lookup(ctx context.Context, username string) (ledger.User, error) {
	return s.ledger.UserByUsername(ctx, s.db, username)
}
