// Package session holds the per-browser authentication state: tokens, the
// logged-in identity and display preferences, persisted in a Store and
// observable through Subscribe.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"winery/internal/core"
	"winery/internal/log"
	"winery/internal/winery"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	LanguageEnglish  = "en"
	LanguageGeorgian = "ka"
)

var ErrInvalidPreference = errors.New("invalid preference")

// Listener receives the identity after every change; nil means logged out.
type Listener func(identity *core.Identity)

// State is one browser session. All methods are safe for concurrent use.
type State struct {
	id     string
	store  Store
	auth   winery.AuthAPI
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	values    map[string]string
	identity  *core.Identity
	listeners map[int]Listener
	nextID    int
}

func newState(id string, store Store, auth winery.AuthAPI, logger *log.Logger, now func() time.Time) *State {
	return &State{
		id:        id,
		store:     store,
		auth:      auth,
		logger:    logger.With(log.FieldSessionID, shortID(id)),
		now:       now,
		values:    map[string]string{},
		listeners: map[int]Listener{},
	}
}

func (s *State) ID() string { return s.id }

// restore replaces the in-memory values with what the store holds.
func (s *State) restore(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = values
	s.identity = nil
	if raw := values[KeyUser]; raw != "" {
		var ident core.Identity
		if err := json.Unmarshal([]byte(raw), &ident); err == nil && ident.Username != "" {
			s.identity = &ident
		}
	}
}

// Login authenticates against the API and persists the result. Nothing is
// persisted when the call fails.
func (s *State) Login(ctx context.Context, username, password string) error {
	resp, err := s.auth.Login(ctx, core.Credentials{Username: username, Password: password})
	if err != nil {
		s.logger.WarnContext(ctx, "Login failed", log.FieldUsername, username, log.FieldError, err)
		return err
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("login: %w", core.ErrInvalidCredentials)
	}
	if err := s.apply(ctx, resp); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "User logged in", log.FieldUsername, resp.Username, "role", resp.Role)
	return nil
}

// Refresh exchanges the refresh token for a new token pair.
func (s *State) Refresh(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.values[KeyRefreshToken]
	s.mu.Unlock()
	if refresh == "" {
		return core.ErrUnauthorized
	}

	resp, err := s.auth.Refresh(ctx, refresh)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if err := s.apply(ctx, resp); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Token refreshed", log.FieldUsername, resp.Username)
	return nil
}

func (s *State) apply(ctx context.Context, resp core.AuthResponse) error {
	ident := resp.Identity()
	user, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	values := map[string]string{
		KeyAccessToken:  resp.AccessToken,
		KeyRefreshToken: resp.RefreshToken,
		KeyUser:         string(user),
	}
	if err := s.store.Set(ctx, s.id, values); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
	}
	s.identity = &ident
	notify := s.snapshotLocked()
	s.mu.Unlock()

	notify()
	return nil
}

// IsAuthenticated reports whether a token is present and its exp claim lies
// in the future. An expired or unreadable token logs the session out.
func (s *State) IsAuthenticated(ctx context.Context) bool {
	s.mu.Lock()
	if s.validLocked() {
		s.mu.Unlock()
		return true
	}
	notify, changed := s.clearLocked(ctx)
	s.mu.Unlock()

	if changed {
		s.logger.InfoContext(ctx, "Session expired")
		notify()
	}
	return false
}

func (s *State) validLocked() bool {
	exp, ok := tokenExpiry(s.values[KeyAccessToken])
	return ok && exp.After(s.now()) && s.identity != nil
}

// ExpiresWithin reports whether the access token expires in less than d.
func (s *State) ExpiresWithin(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := tokenExpiry(s.values[KeyAccessToken])
	if !ok {
		return false
	}
	return exp.Sub(s.now()) < d
}

// Logout drops tokens and identity. Preferences stay.
func (s *State) Logout(ctx context.Context) {
	s.mu.Lock()
	notify, changed := s.clearLocked(ctx)
	s.mu.Unlock()

	if changed {
		s.logger.InfoContext(ctx, "User logged out")
		notify()
	}
}

func (s *State) clearLocked(ctx context.Context) (func(), bool) {
	_, hadToken := s.values[KeyAccessToken]
	_, hadRefresh := s.values[KeyRefreshToken]
	if !hadToken && !hadRefresh && s.identity == nil {
		return func() {}, false
	}
	if err := s.store.Delete(ctx, s.id, KeyAccessToken, KeyRefreshToken, KeyUser); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear persisted session", log.FieldError, err)
	}
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	delete(s.values, KeyUser)
	s.identity = nil
	return s.snapshotLocked(), true
}

// snapshotLocked captures listeners and identity so they can be called after
// the mutex is released.
func (s *State) snapshotLocked() func() {
	var ident *core.Identity
	if s.identity != nil {
		cp := *s.identity
		ident = &cp
	}
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(ident)
		}
	}
}

// Subscribe registers fn and calls it right away with the current identity.
func (s *State) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	var ident *core.Identity
	if s.identity != nil {
		cp := *s.identity
		ident = &cp
	}
	s.mu.Unlock()

	fn(ident)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *State) publish() {
	s.mu.Lock()
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()
}

// Identity returns the logged-in user, if any.
func (s *State) Identity() (core.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return core.Identity{}, false
	}
	return *s.identity, true
}

func (s *State) IsAdmin() bool {
	ident, ok := s.Identity()
	return ok && ident.Role == core.RoleAdmin
}

// Token is the current bearer token or "".
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[KeyAccessToken]
}

// Context returns ctx carrying the session's bearer token.
func (s *State) Context(ctx context.Context) context.Context {
	return winery.WithToken(ctx, s.Token())
}

func (s *State) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.values[KeyTheme]; t == ThemeDark {
		return t
	}
	return ThemeLight
}

func (s *State) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: theme %q", ErrInvalidPreference, theme)
	}
	return s.setValue(ctx, KeyTheme, theme)
}

func (s *State) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.values[KeyLanguage]; l == LanguageGeorgian {
		return l
	}
	return LanguageEnglish
}

func (s *State) SetLanguage(ctx context.Context, lang string) error {
	if lang != LanguageEnglish && lang != LanguageGeorgian {
		return fmt.Errorf("%w: language %q", ErrInvalidPreference, lang)
	}
	return s.setValue(ctx, KeyLanguage, lang)
}

func (s *State) setValue(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, s.id, map[string]string{key: value}); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the API
// is the authority on signatures.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
