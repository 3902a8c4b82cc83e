// Package service holds the storefront's use cases.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var errInvalidCredentials = apperr.AuthenticationFailed("invalid credentials")

// TokenRevoker keeps the ids of tokens invalidated by logout.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AccountService struct {
	users    *repository.UserRepository
	tokens   *auth.Manager
	revoker  TokenRevoker
	validate *validator.Validate
	logger   *zap.Logger
	hashCost int
}

func NewAccountService(users *repository.UserRepository, tokens *auth.Manager, revoker TokenRevoker, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:    users,
		tokens:   tokens,
		revoker:  revoker,
		validate: validator.New(),
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperr.Validation("password is too long")
	}
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Register creates an account and signs the caller in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, *auth.TokenPair, error) {
	email := normalizeEmail(in.Email)
	if err := s.validate.Var(email, "required,email,max=191"); err != nil {
		return nil, nil, apperr.Validation("enter a valid email address")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, nil, apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, apperr.Validation("a user with this email already exists")
	}

	hashed, err := s.hash(in.Password)
	if err != nil {
		return nil, nil, err
	}

	u := &models.User{
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Password:  hashed,
		IsActive:  true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("User registered", zap.Uint("user_id", u.ID))
	return u, pair, nil
}

// Login checks credentials against active accounts.
func (s *AccountService) Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil, errInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, nil, errInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *AccountService) parse(ctx context.Context, token, tokenType string) (*auth.Claims, error) {
	claims, err := s.tokens.Parse(token, tokenType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuthenticationFailed, err, "token is invalid or expired")
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperr.AuthenticationFailed("token has been revoked")
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parse(ctx, refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	access, _, err := s.tokens.Issue(u.ID, u.Email, auth.TokenTypeAccess)
	return access, err
}

// Logout revokes the caller's access token and, when given, its refresh
// token.
func (s *AccountService) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if refreshToken != "" {
		claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "refresh token is invalid or expired")
		}
		if claims.UserID != access.UserID {
			return apperr.Validation("refresh token belongs to another user")
		}
		if err := s.revoker.Revoke(ctx, claims.ID, s.tokens.Remaining(claims)); err != nil {
			return err
		}
	}
	return s.revoker.Revoke(ctx, access.ID, s.tokens.Remaining(access))
}

// Authenticate resolves a bearer access token to its claims and user.
func (s *AccountService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, *models.User, error) {
	claims, err := s.parse(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return claims, u, nil
}

func (s *AccountService) activeUser(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.AuthenticationFailed("user not found")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.AuthenticationFailed("user is inactive")
	}
	return u, nil
}

// EnsureUser creates an active account for email unless one exists.
func (s *AccountService) EnsureUser(ctx context.Context, in RegisterInput) (*models.User, bool, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	if err == nil {
		return u, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}
	u, _, err = s.Register(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// MemoryRevoker is a process-local TokenRevoker for single-instance setups
// without Redis.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, until := range m.revoked {
		if !until.After(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[jti] = now.Add(ttl)
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[jti]
	return ok && until.After(m.now()), nil
}
