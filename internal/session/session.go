// Package session issues and checks the signed cookie that identifies the
// logged-in household member.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"walletwise/internal/bills"
)

const CookieName = "walletwise_session"

var (
	ErrInvalidToken = errors.New("invalid or expired session")
	ErrMissingToken = errors.New("session cookie required")
)

// Session is the authenticated identity carried by a request.
type Session struct {
	UserID int64
	Name   string
}

// Identity converts the session into the identity sent with a claim.
func (s Session) Identity() bills.Identity {
	return bills.Identity{UserID: s.UserID, Name: s.Name}
}

// Claims are the JWT claims of a session cookie.
type Claims struct {
	UserID int64  `json:"uid"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Manager signs and validates session tokens.
type Manager struct {
	secretKey []byte
	ttl       time.Duration
	secure    bool
	now       func() time.Time
}

// NewManager creates a manager. secure controls the cookie Secure flag.
func NewManager(secretKey string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		secure:    secure,
		now:       time.Now,
	}
}

// Issue creates a signed token for id.
func (m *Manager) Issue(id bills.Identity) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: id.UserID,
		Name:   id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(id.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the session it carries.
func (m *Manager) Validate(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return Session{}, ErrInvalidToken
	}
	return Session{UserID: claims.UserID, Name: claims.Name}, nil
}

// SetCookie issues a token for id and stores it on the response.
func (m *Manager) SetCookie(w http.ResponseWriter, id bills.Identity) error {
	token, err := m.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest validates the session cookie of r.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return Session{}, ErrMissingToken
	}
	return m.Validate(c.Value)
}

type contextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Require rejects requests without a valid session. Full page loads are sent
// to loginPath; HTMX requests get an HX-Redirect so the whole page navigates.
func (m *Manager) Require(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.FromRequest(r)
			if err != nil {
				if r.Header.Get("HX-Request") == "true" {
					w.Header().Set("HX-Redirect", loginPath)
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
