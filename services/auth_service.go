package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService, identity provider: her oturuma kalıcı bir kullanıcı ID'si bağlar.
// Ledger, bildirim ve konuşma kayıtlarının hepsi bu ID ile anahtarlanır.
type AuthService interface {
	Register(ctx context.Context, req *models.CreateUserRequest) (*models.AuthTokens, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthTokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// PurgeExpiredSessions, süresi dolmuş refresh token'ları siler.
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// AuthSettings, token ömürleri ve imza anahtarı.
type AuthSettings struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost sıfırsa bcrypt.DefaultCost + 2 kullanılır. Testler MinCost verir.
	BcryptCost int
}

const tokenIssuer = "pano"

var errBadCredentials = fmt.Errorf("%w: invalid username or password", pkg.ErrUnauthorized)

type authService struct {
	store  *Store
	issuer issuer
	cost   int
	now    func() time.Time
}

// NewAuthService, constructor.
func NewAuthService(store *Store, settings AuthSettings) AuthService {
	cost := settings.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost + 2
	}
	return &authService{
		store: store,
		issuer: issuer{
			secret:     []byte(settings.Secret),
			accessTTL:  settings.AccessTTL,
			refreshTTL: settings.RefreshTTL,
		},
		cost: cost,
		now:  time.Now,
	}
}

// Register, kullanıcıyı ve ilk oturumunu tek transaction'da yazar.
// Session yazımı başarısız olursa yarım kalmış bir hesap oluşmaz.
func (s *authService) Register(ctx context.Context, req *models.CreateUserRequest) (*models.AuthTokens, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	var tokens *models.AuthTokens
	err = s.store.Tx(ctx, "register", func(r *repository.Set) error {
		if err := r.Users.Create(ctx, user); err != nil {
			return err
		}
		var openErr error
		tokens, openErr = s.openSession(ctx, r, user)
		return openErr
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[auth] registered user=%s id=%s", user.Username, user.ID)
	return tokens, nil
}

func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthTokens, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	repos := s.store.Repos()
	user, err := repos.Users.GetByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, pkg.ErrNotFound):
		return nil, errBadCredentials
	case err != nil:
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, errBadCredentials
	}

	return s.openSession(ctx, repos, user)
}

// RefreshToken, rotation yapar: eski session silinir, yenisi yazılır.
// İkisi aynı transaction'da olduğu için bir refresh token en fazla bir kez kullanılabilir.
// Süresi dolmuş token yine de silinir.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	var (
		tokens  *models.AuthTokens
		expired bool
	)
	err := s.store.Tx(ctx, "refresh", func(r *repository.Set) error {
		expired = false

		session, err := r.Sessions.GetByRefreshToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				return fmt.Errorf("%w: invalid refresh token", pkg.ErrUnauthorized)
			}
			return err
		}
		if err := r.Sessions.DeleteByID(ctx, session.ID); err != nil {
			return fmt.Errorf("failed to delete old session: %w", err)
		}
		if s.now().After(session.ExpiresAt) {
			expired = true
			return nil
		}

		user, err := r.Users.GetByID(ctx, session.UserID)
		if err != nil {
			return err
		}
		tokens, err = s.openSession(ctx, r, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%w: refresh token expired", pkg.ErrUnauthorized)
	}
	return tokens, nil
}

// Logout, refresh token'ı iptal eder. Bilinmeyen token hata değildir.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	sessions := s.store.Repos().Sessions

	session, err := sessions.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return sessions.DeleteByID(ctx, session.ID)
}

func (s *authService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return s.issuer.parse(tokenString)
}

// GetUser, middleware'in her istekte çağırdığı lookup. Hash asla dışarı çıkmaz.
func (s *authService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *authService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Repos().Sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[auth] purged %d expired sessions", n)
	}
	return n, nil
}

// openSession, access token imzalar ve r üzerinden yeni bir refresh session yazar.
func (s *authService) openSession(ctx context.Context, r *repository.Set, user *models.User) (*models.AuthTokens, error) {
	now := s.now()

	access, err := s.issuer.sign(user, now)
	if err != nil {
		return nil, err
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.issuer.refreshTTL),
	}
	if err := r.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	public := *user
	public.PasswordHash = ""
	return &models.AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.issuer.accessTTL.Seconds()),
		User:         &public,
	}, nil
}

// ─── Token issuer ───

// issuer, HS256 access token'larını imzalar ve doğrular.
type issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (i issuer) sign(user *models.User, now time.Time) (string, error) {
	claims := &models.TokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (i issuer) parse(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user", pkg.ErrUnauthorized)
	}
	return claims, nil
}

// randomToken, opak refresh token üretir. JWT değildir; iptal için DB'de tutulur.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
