// Package session caches the authenticated user of a field device across
// restarts: an opaque bearer token, the user record and an absolute expiry,
// persisted as three keys of a kv.Store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

// Storage keys. Written in this order, erased in reverse.
const (
	KeyToken  = "@biofugitive_token"
	KeyUser   = "@biofugitive_user"
	KeyExpiry = "@biofugitive_expiry"
)

// DefaultDuration is the fixed session lifetime granted by Login and
// ExtendSession.
const DefaultDuration = 24 * time.Hour

// FallbackToken is stored when Login receives an empty token.
const FallbackToken = "authenticated"

// ErrStorage wraps every store failure returned by the cache.
var ErrStorage = errors.New("session storage failure")

// FallbackUser returns the record stored when Login receives no user.
func FallbackUser() schema.User {
	return schema.User{"id": "user"}
}

// State is the cache's view of the session.
type State int

const (
	// StateChecking means Initialize has not completed yet. It is not
	// "logged out".
	StateChecking State = iota
	StateLoggedIn
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateLoggedIn:
		return "logged_in"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// Record is the persisted session.
type Record struct {
	Token     string
	User      schema.User
	ExpiresAt time.Time
}

// Options tunes a Cache. The zero value is usable.
type Options struct {
	// Duration defaults to DefaultDuration.
	Duration time.Duration
	// Clock defaults to time.Now.
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Cache is the session cache. Create it with New and call Initialize once
// before trusting any answer; until then State reports StateChecking.
type Cache struct {
	store    kv.Store
	duration time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// opMu serializes Initialize, Login, Logout and ExtendSession.
	opMu sync.Mutex

	mu     sync.RWMutex
	state  State
	record Record
}

// New returns a cache over store in StateChecking.
func New(store kv.Store, opts Options) *Cache {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache{
		store:    store,
		duration: opts.Duration,
		now:      opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		state:    StateChecking,
	}
}

// Initialize loads the persisted session. Expired, corrupt or partially
// written sessions are erased from the store. It never fails: every problem
// resolves to StateLoggedOut.
func (c *Cache) Initialize(ctx context.Context) State {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(StateChecking, Record{})

	rec, reason, err := c.load(ctx)
	if reason == "" {
		if rec == nil {
			c.setState(StateLoggedOut, Record{})
			return StateLoggedOut
		}
		c.setState(StateLoggedIn, *rec)
		c.logger.Debug("session restored",
			zap.String("user_id", rec.User.ID()),
			zap.Time("expires_at", rec.ExpiresAt))
		return StateLoggedIn
	}

	c.metrics.IncSessionDiscarded(reason)
	if reason == "expired" {
		c.logger.Info("session expired, clearing storage")
	} else {
		c.logger.Warn("discarding persisted session", zap.String("reason", reason), zap.Error(err))
	}
	if clearErr := c.clearStorage(ctx); clearErr != nil {
		c.logger.Error("failed to clear session storage", zap.Error(clearErr))
	}
	c.setState(StateLoggedOut, Record{})
	return StateLoggedOut
}

// load reads the three keys. A nil record with an empty reason means no
// session was stored.
func (c *Cache) load(ctx context.Context) (*Record, string, error) {
	token, hasToken, err := kv.Lookup(ctx, c.store, KeyToken)
	if err != nil {
		return nil, "read_error", err
	}
	rawUser, hasUser, err := kv.Lookup(ctx, c.store, KeyUser)
	if err != nil {
		return nil, "read_error", err
	}
	rawExpiry, hasExpiry, err := kv.Lookup(ctx, c.store, KeyExpiry)
	if err != nil {
		return nil, "read_error", err
	}

	switch {
	case !hasToken && !hasUser && !hasExpiry:
		return nil, "", nil
	case !hasToken || !hasUser || !hasExpiry:
		return nil, "partial", fmt.Errorf("token=%t user=%t expiry=%t", hasToken, hasUser, hasExpiry)
	}

	if token == "" {
		return nil, "corrupt", errors.New("empty token")
	}
	var user schema.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, "corrupt", fmt.Errorf("decode user: %w", err)
	}
	if user == nil {
		return nil, "corrupt", errors.New("user record is null")
	}
	expiryMillis, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return nil, "corrupt", fmt.Errorf("parse expiry: %w", err)
	}

	expiresAt := time.UnixMilli(expiryMillis)
	if !c.now().Before(expiresAt) {
		return nil, "expired", nil
	}
	return &Record{Token: token, User: user, ExpiresAt: expiresAt}, "", nil
}

// Login persists a new session valid for the configured duration. An empty
// token or user is replaced by FallbackToken / FallbackUser. When any write
// fails the in-memory state is left untouched, the keys already written are
// rolled back and an ErrStorage error is returned.
func (c *Cache) Login(ctx context.Context, token string, user schema.User) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if token == "" {
		token = FallbackToken
	}
	if len(user) == 0 {
		user = FallbackUser()
	}
	rec := Record{Token: token, User: user, ExpiresAt: c.expiryFromNow()}
	values, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	prev, hadPrev := c.activeRecord()
	var written []string
	for _, key := range writeOrder {
		if err := c.store.Set(ctx, key, values[key]); err != nil {
			c.logger.Error("error saving session", zap.String("key", key), zap.Error(err))
			c.rollback(ctx, written, prev, hadPrev)
			return fmt.Errorf("%w: write %s: %v", ErrStorage, key, err)
		}
		written = append(written, key)
	}

	rec.User = maps.Clone(user)
	c.setState(StateLoggedIn, rec)
	c.metrics.IncLogin()
	c.logger.Info("session started", zap.String("user_id", user.ID()), zap.Time("expires_at", rec.ExpiresAt))
	return nil
}

// writeOrder is the order Login writes the keys in.
var writeOrder = []string{KeyToken, KeyUser, KeyExpiry}

func encodeRecord(rec Record) (map[string]string, error) {
	rawUser, err := json.Marshal(rec.User)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	return map[string]string{
		KeyToken:  rec.Token,
		KeyUser:   string(rawUser),
		KeyExpiry: formatExpiry(rec.ExpiresAt),
	}, nil
}

// activeRecord returns a copy of the live session, if any.
func (c *Cache) activeRecord() (Record, bool) {
	if !c.IsLoggedIn() {
		return Record{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec := c.record
	rec.User = maps.Clone(rec.User)
	return rec, true
}

// rollback undoes a failed Login. Keys the login overwrote get the previous
// session's values back, so a still-valid session survives a restart. Keys
// it never reached still hold the previous values. Without a previous
// session, or when restoring fails, every key is erased and the next
// Initialize reads a clean logged-out state.
func (c *Cache) rollback(ctx context.Context, written []string, prev Record, hadPrev bool) {
	if hadPrev {
		values, err := encodeRecord(prev)
		for _, key := range written {
			if err != nil {
				break
			}
			err = c.store.Set(ctx, key, values[key])
		}
		if err == nil {
			return
		}
		c.logger.Error("failed to restore previous session", zap.Error(err))
	}
	if err := c.clearStorage(ctx); err != nil {
		c.logger.Error("failed to roll back partial session", zap.Error(err))
	}
}

// Logout erases the persisted session and forgets it. Calling it while
// logged out succeeds. The in-memory session is dropped even when the store
// refuses the erase; the error is still returned.
func (c *Cache) Logout(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	wasLoggedIn := c.State() == StateLoggedIn
	err := c.clearStorage(ctx)
	c.setState(StateLoggedOut, Record{})
	if err != nil {
		c.logger.Error("error logging out", zap.Error(err))
		return err
	}
	if wasLoggedIn {
		c.metrics.IncLogout()
		c.logger.Info("session ended")
	}
	return nil
}

// ExtendSession pushes the expiry to now + duration. It only rewrites the
// expiry key and does nothing unless a session is active.
func (c *Cache) ExtendSession(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.IsLoggedIn() {
		return nil
	}

	expiresAt := c.expiryFromNow()
	if err := c.store.Set(ctx, KeyExpiry, formatExpiry(expiresAt)); err != nil {
		c.logger.Error("error extending session", zap.Error(err))
		return fmt.Errorf("%w: write %s: %v", ErrStorage, KeyExpiry, err)
	}

	c.mu.Lock()
	c.record.ExpiresAt = expiresAt
	c.mu.Unlock()
	c.metrics.IncExtension()
	return nil
}

// clearStorage removes the keys in reverse write order. Every key is
// attempted even when an earlier removal fails.
func (c *Cache) clearStorage(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyExpiry, KeyUser, KeyToken} {
		if err := c.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStorage, errors.Join(errs...))
	}
	return nil
}

func (c *Cache) expiryFromNow() time.Time {
	// Millisecond precision is what the store keeps.
	return time.UnixMilli(c.now().Add(c.duration).UnixMilli())
}

func formatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (c *Cache) setState(s State, rec Record) {
	c.mu.Lock()
	c.state = s
	c.record = rec
	c.mu.Unlock()
}

// --- Accessors ---

// State reports the current state. A loaded session whose expiry has passed
// while the process kept running reports StateLoggedOut.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateLoggedIn && !c.now().Before(c.record.ExpiresAt) {
		return StateLoggedOut
	}
	return c.state
}

// IsLoggedIn reports whether an unexpired session is active.
func (c *Cache) IsLoggedIn() bool {
	return c.State() == StateLoggedIn
}

// IsLoading reports whether Initialize is still pending.
func (c *Cache) IsLoading() bool {
	return c.State() == StateChecking
}

// Token returns the bearer token, or "" when not logged in.
func (c *Cache) Token() string {
	if !c.IsLoggedIn() {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.Token
}

// User returns a copy of the cached user, or nil when not logged in.
func (c *Cache) User() schema.User {
	if !c.IsLoggedIn() {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.record.User)
}

// ExpiresAt returns the session expiry, or the zero time when not logged in.
func (c *Cache) ExpiresAt() time.Time {
	if !c.IsLoggedIn() {
		return time.Time{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.ExpiresAt
}

// Snapshot is a consistent, serializable view of the cache.
type Snapshot struct {
	State     string      `json:"state"`
	LoggedIn  bool        `json:"is_logged_in"`
	Loading   bool        `json:"is_loading"`
	User      schema.User `json:"user,omitempty"`
	Role      Role        `json:"role,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// Snapshot captures state, user, role and expiry under one read lock.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := c.state
	if state == StateLoggedIn && !c.now().Before(c.record.ExpiresAt) {
		state = StateLoggedOut
	}
	snap := Snapshot{
		State:    state.String(),
		LoggedIn: state == StateLoggedIn,
		Loading:  state == StateChecking,
	}
	if state == StateLoggedIn {
		exp := c.record.ExpiresAt
		snap.User = maps.Clone(c.record.User)
		snap.ExpiresAt = &exp
		if r, ok := ParseRole(c.record.User.Role()); ok {
			snap.Role = r
		}
	}
	return snap
}
