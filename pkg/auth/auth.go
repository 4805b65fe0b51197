// Package auth authenticates admin users and keeps their session in a signed
// JWT cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

const (
	// LoginPath is where unauthenticated admin requests are redirected.
	LoginPath = "/admin/login"

	// MinPasswordLength for admin accounts.
	MinPasswordLength = 8

	// MinSecretLength of the HS256 signing secret.
	MinSecretLength = 32

	issuer     = "drinks.fyi"
	contextKey = "auth.user"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken is returned for malformed, forged or expired session tokens.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrWeakPassword is returned when a password is too short.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// compared against when the user does not exist, so both paths pay for bcrypt
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("drinks.fyi-dummy-password"), bcrypt.DefaultCost)

// Users is the account store.
type Users interface {
	GetUser(ctx context.Context, username string) (*store.User, error)
}

// Config configures sessions.
type Config struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies credentials and session tokens.
type Authenticator struct {
	users  Users
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an authenticator.
func New(users Users, config Config, logger zerolog.Logger) (*Authenticator, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if config.TTL <= 0 {
		config.TTL = 12 * time.Hour
	}
	if config.CookieName == "" {
		config.CookieName = "drinks_session"
	}
	return &Authenticator{
		users:  users,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks username and password against the store.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	user, err := a.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a session token for username.
func (a *Authenticator) IssueToken(username string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.config.TTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := tok.SignedString(a.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies a session token and returns its claims.
func (a *Authenticator) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.config.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Login issues a session token and sets it as the session cookie.
func (a *Authenticator) Login(c echo.Context, username string) error {
	token, expires, err := a.IssueToken(username)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     a.config.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	a.logger.Info().Str("user", username).Msg("Admin logged in")
	return nil
}

// Logout clears the session cookie.
func (a *Authenticator) Logout(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     a.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAdmin rejects requests without a valid session. Browsers are
// redirected to the login page with the original path in "next".
func (a *Authenticator) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(a.config.CookieName)
		if err == nil && cookie.Value != "" {
			claims, err := a.ParseToken(cookie.Value)
			if err == nil {
				c.Set(contextKey, claims.Subject)
				return next(c)
			}
			a.logger.Debug().Err(err).Msg("Rejected session token")
		}

		req := c.Request()
		if req.Method != http.MethodGet {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		return c.Redirect(http.StatusSeeOther, LoginPath+"?next="+url.QueryEscape(req.URL.RequestURI()))
	}
}

// CurrentUser returns the authenticated username set by RequireAdmin.
func CurrentUser(c echo.Context) string {
	u, _ := c.Get(contextKey).(string)
	return u
}
