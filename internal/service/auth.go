package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/auth"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

// AuthService turns GitHub logins and email/password credentials into
// session tokens.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT)
//
// The token subject is the user's email: that is the identity locks and
// comments are recorded under.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// LoginOrRegisterGitHub upserts the GitHub user and issues a token.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	id := ghUser.ID
	user := &model.User{
		GitHubID:  &id,
		Login:     ghUser.Login,
		Email:     ghUser.Identity(),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("identity", user.Email),
	)
	return s.issue(user)
}

// Register creates an email/password account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.passwords.CheckStrength(password); err != nil {
		return nil, apperror.ValidationFailed("password", strings.TrimPrefix(err.Error(), "auth: "))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Login:        strings.SplitN(email, "@", 2)[0],
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("identity", email))
	return s.issue(user)
}

// Login checks email/password credentials. Unknown emails and wrong
// passwords get the same error so accounts cannot be probed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		return nil, invalid
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Info("failed login", slog.String("identity", email))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user logged in", slog.String("identity", email))
	return s.issue(user)
}

// Me returns the account behind an identity taken from a validated token.
func (s *AuthService) Me(ctx context.Context, identity string) (*model.User, error) {
	if identity == "" {
		return nil, apperror.Unauthorized("not logged in")
	}
	return s.users.GetUserByEmail(ctx, identity)
}

// ValidateToken returns the identity encoded in tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	identity, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return identity, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Email, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}
