package service

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newAccountService(t *testing.T) (*AccountService, *gorm.DB) {
	db := repotest.NewDB(t)
	tokens := auth.NewManager(&config.JWTConfig{Secret: "s", AccessTTL: 5 * time.Minute, RefreshTTL: time.Hour})
	svc := NewAccountService(repository.NewUserRepository(db), tokens, NewMemoryRevoker(), zap.NewNop())
	svc.hashCost = bcrypt.MinCost
	return svc, db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, RegisterInput{Email: "  Amina@Example.COM ", Password: "s3cret-pass", FirstName: "Amina"})
	require.NoError(t, err)
	assert.Equal(t, "amina@example.com", u.Email)
	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)

	got, pair, err := svc.Login(ctx, "AMINA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, user, err := svc.Authenticate(ctx, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "short"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "long-enough"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, RegisterInput{Email: "A@example.com", Password: "long-enough"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLoginFailures(t *testing.T) {
	svc, db := newAccountService(t)
	ctx := context.Background()

	u, _, err := svc.Register(ctx, RegisterInput{Email: "b@example.com", Password: "long-enough"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "b@example.com", "wrong-password")
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))

	_, _, err = svc.Login(ctx, "nobody@example.com", "long-enough")
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("is_active", false).Error)
	_, _, err = svc.Login(ctx, "b@example.com", "long-enough")
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))
}

func TestRefreshAndLogout(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "c@example.com", Password: "long-enough"})
	require.NoError(t, err)

	access, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	claims, _, err := svc.Authenticate(ctx, access)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.Access)
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))

	require.NoError(t, svc.Logout(ctx, claims, pair.Refresh))

	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))
	_, _, err = svc.Authenticate(ctx, access)
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationFailed))

	require.NoError(t, svc.Logout(ctx, claims, ""))
}

func TestEnsureUser(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	u, created, err := svc.EnsureUser(ctx, RegisterInput{Email: "d@example.com", Password: "long-enough"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.EnsureUser(ctx, RegisterInput{Email: "D@example.com", Password: "other-pass"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestMemoryRevokerExpires(t *testing.T) {
	r := NewMemoryRevoker()
	now := time.Now()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Revoke(context.Background(), "jti", time.Minute))
	revoked, _ := r.IsRevoked(context.Background(), "jti")
	assert.True(t, revoked)

	r.now = func() time.Time { return now.Add(2 * time.Minute) }
	revoked, _ = r.IsRevoked(context.Background(), "jti")
	assert.False(t, revoked)
}
