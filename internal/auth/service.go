package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Service implements authentication business logic, keeping HTTP handlers thin and focused on request parsing /
// response formatting.
type Service struct {
	store  store.Store
	config *config.Config
	hash   hasher
	log    zerolog.Logger
}

// NewService creates a new authentication service.
func NewService(st store.Store, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		config: cfg,
		hash:   newHasher(cfg),
		log:    logger,
	}
}

// RegisterRequest is the input for Service.Register.
type RegisterRequest struct {
	Email       string
	Username    string
	DisplayName string
	Password    string
}

// LoginRequest is the input for Service.Login. Identifier resolves as an email when it contains "@", otherwise as a
// case-insensitive username.
type LoginRequest struct {
	Identifier string
	Password   string
	OTP        string
}

// AuthResult is the output for Register and Login.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register validates inputs, creates the user, and mints their first session token.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email, err := ValidateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.store.CreateUser(ctx, store.CreateUserParams{
		Email:        email,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	})
	if err != nil {
		// store.ErrEmailTaken / store.ErrUsernameTaken pass through.
		return nil, err
	}

	sess, err := s.store.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Debug().Str("user_id", u.ID).Msg("User registered")

	return &AuthResult{User: u, Token: sess.Token}, nil
}

// Login verifies credentials and mints a fresh session token. Accounts with TOTP enabled additionally require a
// valid one-time code.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	u, err := s.lookupUser(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Spend the verification anyway; skipping Argon2id here would
			// make "no such user" observably faster than "wrong password".
			s.hash.burn(req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	match, err := s.hash.Compare(req.Password, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if u.TOTPEnabled {
		if req.OTP == "" {
			return nil, ErrMFARequired
		}
		if !totp.Validate(req.OTP, u.TOTPSecret) {
			return nil, ErrInvalidMFACode
		}
	}

	sess, err := s.store.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Debug().Str("user_id", u.ID).Msg("User logged in")

	return &AuthResult{User: u, Token: sess.Token}, nil
}

// Logout deletes the presented session token. Unknown tokens are a no-op, so logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAccount removes the user's account. The store cascades sessions, push subscriptions, friendships, thread
// participations and owned servers; authored messages survive with a dangling authorId.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("Account deleted")
	return nil
}

func (s *Service) lookupUser(ctx context.Context, identifier string) (*model.User, error) {
	if strings.Contains(identifier, "@") {
		return s.store.UserByEmail(ctx, strings.ToLower(identifier))
	}
	return s.store.UserByUsername(ctx, identifier)
}
