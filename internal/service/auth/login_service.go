package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// TokenTypeBearer is the token_type reported with every issued token.
const TokenTypeBearer = "bearer"

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	Username    string `json:"username"`
}

// LoginService authenticates operators and provisions their accounts.
type LoginService interface {
	// Login verifies the credentials and issues an access token.
	// Returns ErrInvalidCredentials for an unknown user or wrong password.
	Login(ctx context.Context, username, password string) (*LoginResult, error)

	// Register hashes password and stores a new user.
	Register(ctx context.Context, username, password, role string) (*domain.User, error)
}

type loginServiceImpl struct {
	users      store.UserStore
	tokens     JWTService
	verifier   PasswordVerifier
	bcryptCost int
	logger     *slog.Logger
}

var _ LoginService = (*loginServiceImpl)(nil)

// NewLoginService creates a LoginService. bcryptCost is used for Register.
func NewLoginService(
	users store.UserStore,
	tokens JWTService,
	verifier PasswordVerifier,
	bcryptCost int,
	logger *slog.Logger,
) LoginService {
	if users == nil {
		panic("users cannot be nil")
	}
	if tokens == nil {
		panic("tokens cannot be nil")
	}
	if verifier == nil {
		verifier = NewBcryptVerifier()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loginServiceImpl{
		users:      users,
		tokens:     tokens,
		verifier:   verifier,
		bcryptCost: bcryptCost,
		logger:     logger.With(slog.String("component", "login_service")),
	}
}

func (s *loginServiceImpl) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Info("login failed: unknown user", slog.String("username", username))
			return nil, ErrInvalidCredentials
		}
		log.Error("failed to look up user",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		log.Info("login failed: wrong password", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(ctx, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	log.Info("user logged in", slog.String("username", user.Username))
	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		Role:        user.Role,
		Username:    user.Username,
	}, nil
}

func (s *loginServiceImpl) Register(ctx context.Context, username, password, role string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	user, err := domain.NewUser(username, password, role)
	if err != nil {
		return nil, err
	}

	hashed, err := HashPassword(user.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		log.Error("failed to create user",
			slog.String("error", err.Error()),
			slog.String("username", user.Username))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info("user registered",
		slog.String("username", user.Username),
		slog.String("role", user.Role))
	return user, nil
}
