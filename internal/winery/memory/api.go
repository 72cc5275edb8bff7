// Package memory is an in-process implementation of the winery API. It backs
// the console's demo mode and the tests: it issues real HS256 tokens, enforces
// roles, computes page aggregates and writes audit and log records the way the
// REST service does.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"winery/internal/core"
	"winery/internal/log"
	"winery/internal/winery"
)

const maxLogEntries = 500

var _ winery.API = (*API)(nil)

type claims struct {
	Role core.Role `json:"role"`
	jwt.RegisteredClaims
}

type account struct {
	user core.User
	hash []byte
}

// API is safe for concurrent use.
type API struct {
	mu sync.RWMutex

	secret   []byte
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
	started  time.Time
	logger   *log.Logger

	nextID     map[string]int64
	persons    map[int64]core.Person
	categories map[int64]core.Category
	entries    map[int64]core.Entry
	events     map[int64]core.Event
	users      map[int64]*account
	refresh    map[string]string
	audit      []core.AuditLog
	logs       []core.LogEntry

	calls map[string]int
}

type Option func(*API)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

func WithSecret(secret string) Option {
	return func(a *API) { a.secret = []byte(secret) }
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(a *API) { a.tokenTTL = ttl }
}

// WithPasswordCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(a *API) { a.cost = cost }
}

func WithLogger(logger *log.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API seeded with the admin/admin and user/user accounts and a
// few persons and categories.
func New(opts ...Option) *API {
	a := &API{
		secret:     []byte(uuid.NewString()),
		tokenTTL:   time.Hour,
		cost:       bcrypt.DefaultCost,
		now:        time.Now,
		logger:     log.Discard(),
		nextID:     map[string]int64{},
		persons:    map[int64]core.Person{},
		categories: map[int64]core.Category{},
		entries:    map[int64]core.Entry{},
		events:     map[int64]core.Event{},
		users:      map[int64]*account{},
		refresh:    map[string]string{},
		calls:      map[string]int{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent(log.ComponentBackend)
	a.started = a.now()
	a.seed()
	return a
}

func (a *API) seed() {
	ts := core.Timestamp{Time: a.now()}
	for _, u := range []struct {
		name, password string
		role           core.Role
	}{
		{"admin", "admin", core.RoleAdmin},
		{"user", "user", core.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), a.cost)
		if err != nil {
			panic(fmt.Sprintf("memory: hash seed password: %v", err))
		}
		id := a.id(core.ResourceUsers)
		a.users[id] = &account{
			user: core.User{ID: id, Username: u.name, Role: u.role, Active: true, CreatedAt: ts, UpdatedAt: ts},
			hash: hash,
		}
	}
	for _, name := range []string{"Giorgi Beridze", "Nino Kapanadze", "Levan Tsiklauri"} {
		id := a.id(core.ResourcePersons)
		a.persons[id] = core.Person{ID: id, Name: name, Active: true, CreatedAt: ts, UpdatedAt: ts}
	}
	for _, c := range []struct{ name, color string }{
		{"Harvest", "#16A34A"},
		{"Bottling", "#3B82F6"},
		{"Cellar", "#9333EA"},
	} {
		id := a.id(core.ResourceCategories)
		a.categories[id] = core.Category{ID: id, Name: c.name, Color: c.color, Active: true, CreatedAt: ts, UpdatedAt: ts}
	}
	a.appendLog(core.LevelInfo, "winery.memory", "In-memory API started")
}

// Calls returns how many times the named operation was invoked.
func (a *API) Calls(op string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (a *API) TotalCalls() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func (a *API) id(resource string) int64 {
	a.nextID[resource]++
	return a.nextID[resource]
}

func (a *API) timestamp() core.Timestamp {
	return core.Timestamp{Time: a.now().Truncate(time.Second)}
}

// caller is the authenticated principal of a request.
type caller struct {
	username string
	role     core.Role
}

func (c caller) isAdmin() bool { return c.role == core.RoleAdmin }

// begin counts the call and authenticates ctx. Callers hold a.mu.
func (a *API) begin(ctx context.Context, op string, adminOnly bool) (caller, error) {
	a.calls[op]++
	raw := winery.TokenFrom(ctx)
	if raw == "" {
		return caller{}, core.ErrUnauthorized
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return caller{}, core.ErrUnauthorized
	}
	acc := a.userByName(c.Subject)
	if acc == nil || !acc.user.Active {
		return caller{}, core.ErrUnauthorized
	}
	who := caller{username: acc.user.Username, role: acc.user.Role}
	if adminOnly && !who.isAdmin() {
		a.appendLog(core.LevelWarn, "winery.security", fmt.Sprintf("Access denied for %s on %s", who.username, op))
		return caller{}, core.ErrForbidden
	}
	return who, nil
}

func (a *API) userByName(username string) *account {
	for _, acc := range a.users {
		if acc.user.Username == username {
			return acc
		}
	}
	return nil
}

func (a *API) issue(acc *account) (core.AuthResponse, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: acc.user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return core.AuthResponse{}, fmt.Errorf("sign token: %w", err)
	}
	refresh := uuid.NewString()
	a.refresh[refresh] = acc.user.Username
	return core.AuthResponse{
		AccessToken:  signed,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Username:     acc.user.Username,
		Role:         acc.user.Role,
	}, nil
}

func (a *API) Login(ctx context.Context, creds core.Credentials) (core.AuthResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["Login"]++

	acc := a.userByName(creds.Username)
	if acc == nil || !acc.user.Active || bcrypt.CompareHashAndPassword(acc.hash, []byte(creds.Password)) != nil {
		a.appendLog(core.LevelWarn, "winery.auth", "Failed login attempt for "+creds.Username)
		return core.AuthResponse{}, core.ErrInvalidCredentials
	}
	a.appendLog(core.LevelInfo, "winery.auth", "User logged in: "+acc.user.Username)
	return a.issue(acc)
}

// Refresh rotates the refresh token.
func (a *API) Refresh(ctx context.Context, refreshToken string) (core.AuthResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["Refresh"]++

	username, ok := a.refresh[refreshToken]
	if !ok {
		return core.AuthResponse{}, core.ErrInvalidCredentials
	}
	delete(a.refresh, refreshToken)
	acc := a.userByName(username)
	if acc == nil || !acc.user.Active {
		return core.AuthResponse{}, core.ErrInvalidCredentials
	}
	return a.issue(acc)
}

// record appends an audit row. Callers hold a.mu.
func (a *API) record(table string, id int64, action core.AuditAction, who caller, oldV, newV any) {
	entry := core.AuditLog{
		ID:        a.id("audit"),
		TableName: table,
		RecordID:  id,
		Action:    action,
		ChangedBy: who.username,
		ChangedAt: a.timestamp(),
		IPAddress: "127.0.0.1",
		UserAgent: "winery-memory",
	}
	if oldV != nil {
		entry.OldValues = mustJSON(oldV)
	}
	if newV != nil {
		entry.NewValues = mustJSON(newV)
	}
	a.audit = append(a.audit, entry)
	a.appendLog(core.LevelInfo, "winery.audit", fmt.Sprintf("%s %s #%d by %s", action, table, id, who.username))
}

func (a *API) appendLog(level core.LogLevel, logger, msg string) {
	a.logs = append(a.logs, core.LogEntry{
		ID:        a.id("logs"),
		Timestamp: a.timestamp(),
		Level:     level,
		Logger:    logger,
		Message:   msg,
		Thread:    "memory",
	})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
	a.logger.Debug(msg, "source", logger, "level", string(level))
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func notFound(what string, id int64) error {
	return &core.APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("%s not found with id: %d", what, id)}
}

func badRequest(msg string) error {
	return &core.APIError{Status: http.StatusBadRequest, Message: msg}
}

func conflict(msg string) error {
	return &core.APIError{Status: http.StatusConflict, Message: msg}
}
