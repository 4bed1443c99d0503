package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

func newTestAuth(t *testing.T) (*authService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	svc := NewAuthService(env.store, AuthSettings{
		Secret:     "test-secret-that-is-long-enough-123",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}).(*authService)
	return svc, env
}

func register(t *testing.T, svc AuthService, username string) *models.AuthTokens {
	t.Helper()
	tokens, err := svc.Register(context.Background(), &models.CreateUserRequest{
		Username: username, Password: "hunter22hunter", DisplayName: "  " + username + "  ",
	})
	require.NoError(t, err)
	return tokens
}

func TestAuth_RegisterIssuesTokensForStableUserID(t *testing.T) {
	svc, _ := newTestAuth(t)

	tokens := register(t, svc, "alice")
	require.NotEmpty(t, tokens.User.ID)
	assert.Empty(t, tokens.User.PasswordHash)
	assert.Equal(t, "alice", tokens.User.DisplayName)
	assert.Equal(t, 900, tokens.ExpiresIn)

	claims, err := svc.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.User.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestAuth_RegisterRejectsDuplicateAndInvalid(t *testing.T) {
	svc, env := newTestAuth(t)
	ctx := context.Background()
	register(t, svc, "alice")

	_, err := svc.Register(ctx, &models.CreateUserRequest{Username: "alice", Password: "another-password"})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	_, err = svc.Register(ctx, &models.CreateUserRequest{Username: "b!", Password: "another-password"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	// Başarısız kayıt ardında session bırakmaz.
	n, err := env.store.Repos().Sessions.DeleteExpired(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAuth_Login(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	register(t, svc, "alice")

	tokens, err := svc.Login(ctx, &models.LoginRequest{Username: " alice ", Password: "hunter22hunter"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "whatever-pass"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestAuth_RefreshRotatesOnce(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	first := register(t, svc, "alice")

	second, err := svc.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = svc.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized, "a rotated token must not be reusable")
}

func TestAuth_ExpiredRefreshIsDeleted(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	tokens := register(t, svc, "alice")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	svc.now = time.Now
	_, err = svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized, "expired session must be gone")
}

func TestAuth_LogoutIsIdempotent(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	tokens := register(t, svc, "alice")

	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))

	_, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestAuth_ValidateRejectsForeignTokens(t *testing.T) {
	svc, _ := newTestAuth(t)
	tokens := register(t, svc, "alice")

	other := issuer{secret: []byte("some-other-secret-entirely-456"), accessTTL: time.Minute}
	forged, err := other.sign(tokens.User, time.Now())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(forged)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = svc.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}
