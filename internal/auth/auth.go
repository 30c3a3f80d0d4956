// Package auth signs users in with Google or a local dev form and keeps
// their sessions in SQL storage behind an HttpOnly cookie.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"profitdash/internal/core"
	"profitdash/internal/log"
)

const (
	SessionCookie = "profitdash_session"
	StateCookie   = "profitdash_oauth_state"

	stateTTL   = 10 * time.Minute
	tokenBytes = 32
)

var (
	ErrSessionExpired   = errors.New("session missing or expired")
	ErrInvalidState     = errors.New("oauth state mismatch")
	ErrProviderDisabled = errors.New("sign-in method not enabled")
)

// SessionStore persists users and hashed session tokens.
type SessionStore interface {
	UpsertUser(ctx context.Context, u core.User, now time.Time) error
	CreateSession(ctx context.Context, tokenHash, userID string, now, expiresAt time.Time) error
	SessionUser(ctx context.Context, tokenHash string, now time.Time) (core.User, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ProductClearer drops a user's product list on sign-out.
type ProductClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Options configures a Service.
type Options struct {
	// Google enables the OAuth flow; nil means dev sign-in only.
	Google       *GoogleProvider
	DevLogin     bool
	SessionTTL   time.Duration
	CookieSecure bool
	Logger       *log.Logger
	// OnSignOut runs after a user's session and products are gone.
	OnSignOut func(userID string)
}

type Service struct {
	store     SessionStore
	products  ProductClearer
	google    *GoogleProvider
	devLogin  bool
	ttl       time.Duration
	secure    bool
	validate  *validator.Validate
	logger    *log.Logger
	onSignOut func(string)
	now       func() time.Time
}

func NewService(store SessionStore, products ProductClearer, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &Service{
		store:     store,
		products:  products,
		google:    opts.Google,
		devLogin:  opts.DevLogin,
		ttl:       opts.SessionTTL,
		secure:    opts.CookieSecure,
		validate:  validator.New(),
		logger:    opts.Logger.WithComponent(log.ComponentAuth),
		onSignOut: opts.OnSignOut,
		now:       time.Now,
	}
}

// GoogleEnabled reports whether the Google button should be offered.
func (s *Service) GoogleEnabled() bool { return s.google != nil }

// DevEnabled reports whether the dev email form should be offered.
func (s *Service) DevEnabled() bool { return s.devLogin }

// DevLoginForm is the payload of the dev sign-in form.
type DevLoginForm struct {
	Email       string `validate:"required,email,max=254"`
	DisplayName string `validate:"max=100"`
}

// DevLogin signs in a local user identified only by email.
func (s *Service) DevLogin(ctx context.Context, w http.ResponseWriter, form DevLoginForm) (core.User, error) {
	if !s.devLogin {
		return core.User{}, ErrProviderDisabled
	}
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.DisplayName = strings.TrimSpace(form.DisplayName)
	if err := s.validate.Struct(form); err != nil {
		return core.User{}, fmt.Errorf("invalid sign-in form: %w", err)
	}

	user := core.User{
		ID:          "dev:" + form.Email,
		Email:       form.Email,
		DisplayName: form.DisplayName,
	}
	if err := s.StartSession(ctx, w, user); err != nil {
		return core.User{}, err
	}
	return user, nil
}

// BeginGoogle stores a fresh state in a cookie and returns the consent URL.
func (s *Service) BeginGoogle(w http.ResponseWriter) (string, error) {
	if s.google == nil {
		return "", ErrProviderDisabled
	}
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s.google.AuthCodeURL(state), nil
}

// CompleteGoogle checks the callback state, exchanges the code for a
// profile and starts a session.
func (s *Service) CompleteGoogle(w http.ResponseWriter, r *http.Request) (core.User, error) {
	if s.google == nil {
		return core.User{}, ErrProviderDisabled
	}

	clearCookie(w, StateCookie, "/auth", s.secure)

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(StateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return core.User{}, ErrInvalidState
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		return core.User{}, fmt.Errorf("google sign-in refused: %s", msg)
	}

	user, err := s.google.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		return core.User{}, err
	}
	if err := s.StartSession(r.Context(), w, user); err != nil {
		return core.User{}, err
	}
	return user, nil
}

// StartSession records the sign-in and sets the session cookie.
func (s *Service) StartSession(ctx context.Context, w http.ResponseWriter, user core.User) error {
	now := s.now()
	if err := s.store.UpsertUser(ctx, user, now); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	expires := now.Add(s.ttl)
	if err := s.store.CreateSession(ctx, hashToken(token), user.ID, now, expires); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.InfoContext(ctx, "User signed in",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpLogin)
	return nil
}

// Authenticate resolves the request's session cookie to a user.
func (s *Service) Authenticate(r *http.Request) (core.User, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return core.User{}, ErrSessionExpired
	}
	user, err := s.store.SessionUser(r.Context(), hashToken(cookie.Value), s.now())
	if errors.Is(err, core.ErrSessionNotFound) {
		return core.User{}, ErrSessionExpired
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load session: %w", err)
	}
	return user, nil
}

// Logout ends the session, clears the user's products and removes the cookie.
// It succeeds for requests without a valid session.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) error {
	defer clearCookie(w, SessionCookie, "/", s.secure)

	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	ctx := r.Context()
	hash := hashToken(cookie.Value)

	user, err := s.store.SessionUser(ctx, hash, s.now())
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("load session: %w", err)
	}
	if err := s.store.DeleteSession(ctx, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if user.ID == "" {
		return nil
	}

	if s.products != nil {
		if err := s.products.Clear(ctx, user.ID); err != nil {
			return fmt.Errorf("clear products: %w", err)
		}
	}
	if s.onSignOut != nil {
		s.onSignOut(user.ID)
	}

	s.logger.InfoContext(ctx, "User signed out",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpLogout)
	return nil
}

// PurgeExpired deletes expired sessions every interval until ctx is done.
func (s *Service) PurgeExpired(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.store.PurgeExpiredSessions(ctx, s.now())
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to purge expired sessions", log.FieldError, err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "Purged expired sessions", "count", n)
			}
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken is what the store keeps; a leaked table does not yield cookies.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
