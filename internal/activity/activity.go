// Package activity keeps the bounded, most-recent-first log of user actions
// shown on the device. It is a convenience cache: storage problems are
// logged and never surfaced as failures.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/pkg/boundedlist"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

// StorageKey holds the JSON array of activities, newest first.
const StorageKey = "@recent_activities"

// MaxActivities caps the log.
const MaxActivities = 20

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Durability tells the caller how far an Append got.
type Durability int

const (
	// InMemory means the record is in the list but the store write failed.
	InMemory Durability = iota
	// Persisted means the list containing the record reached the store.
	Persisted
	// Cleared means a Clear removed the record before it reached the store.
	Cleared
)

func (d Durability) String() string {
	switch d {
	case Persisted:
		return "persisted"
	case Cleared:
		return "cleared"
	}
	return "in_memory"
}

// Overrides replace the kind defaults of a single record.
type Overrides struct {
	Message string
	// Color is ignored unless it is one of the five known tags.
	Color   schema.Color
	Details map[string]any
}

// Options tunes a Log. The zero value is usable.
type Options struct {
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Log is the activity cache.
type Log struct {
	store   kv.Store
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	list   []schema.Activity
	lastID int64
	seq    uint64 // bumped on every in-memory change

	writeMu     sync.Mutex
	written     uint64 // seq of the newest state handed to the store
	writeFailed bool   // whether that hand-off failed
	cleared     uint64 // seq of the newest Clear
}

// New returns an empty log over store. Call Initialize to load.
func New(store kv.Store, opts Options) *Log {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Log{
		store:   store,
		now:     opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Initialize loads the persisted list. A missing or unreadable list leaves
// the log empty.
func (l *Log) Initialize(ctx context.Context) {
	l.mu.Lock()
	l.list = nil
	l.seq++
	l.mu.Unlock()
	l.load(ctx)
}

// Refresh re-reads the store and replaces the in-memory list, picking up
// writes made behind this instance's back. When the stored value cannot be
// read or decoded the current list is kept.
func (l *Log) Refresh(ctx context.Context) {
	l.load(ctx)
}

func (l *Log) load(ctx context.Context) {
	raw, ok, err := kv.Lookup(ctx, l.store, StorageKey)
	if err != nil {
		l.logger.Error("error loading activities", zap.Error(err))
		return
	}

	var loaded []schema.Activity
	if ok {
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			l.logger.Error("error decoding activities", zap.Error(err))
			return
		}
	}
	loaded = boundedlist.Truncate(loaded, MaxActivities)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = loaded
	l.seq++
	for _, a := range loaded {
		if id, err := strconv.ParseInt(a.ID, 10, 64); err == nil && id > l.lastID {
			l.lastID = id
		}
	}
}

// Append records a new activity at the head of the log, truncates the log
// to MaxActivities and persists the whole list. The returned slice is the
// updated list. A failed store write is logged and reported only through
// the Durability tag; the in-memory record is kept.
func (l *Log) Append(ctx context.Context, kind Kind, o Overrides) ([]schema.Activity, Durability) {
	info, _ := Describe(kind)
	if o.Message != "" {
		info.Message = o.Message
	}
	if o.Color.Valid() {
		info.Color = o.Color
	}

	l.mu.Lock()
	now := l.now()
	record := schema.Activity{
		ID:        l.nextID(now),
		Type:      info.Type,
		Message:   info.Message,
		Color:     info.Color,
		Timestamp: now.UTC().Format(TimestampLayout),
		Details:   o.Details,
	}
	l.list = boundedlist.Prepend(l.list, record, MaxActivities, nil)
	l.seq++
	snapshot, seq := slices.Clone(l.list), l.seq
	l.mu.Unlock()

	l.metrics.IncActivityAppend(record.Type)

	durability, err := l.persist(ctx, snapshot, seq)
	if err != nil {
		l.metrics.IncPersistFailure("activity")
		l.logger.Error("error saving activities", zap.String("type", record.Type), zap.Error(err))
	}
	return snapshot, durability
}

// nextID derives an ID from the clock, bumped past the previous one so no
// two records of this log share an ID. Caller holds l.mu.
func (l *Log) nextID(now time.Time) string {
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return strconv.FormatInt(id, 10)
}

// persist writes snapshot unless a newer state already went to the store.
// A superseded snapshot reports how the newer state fared: Cleared when a
// Clear came after it, otherwise the outcome of the newest write.
func (l *Log) persist(ctx context.Context, snapshot []schema.Activity, seq uint64) (Durability, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	switch {
	case seq <= l.cleared:
		return Cleared, nil
	case seq <= l.written && l.writeFailed:
		return InMemory, nil
	case seq <= l.written:
		return Persisted, nil
	}

	l.written = seq
	err := kv.SetJSON(ctx, l.store, StorageKey, snapshot)
	l.writeFailed = err != nil
	if err != nil {
		return InMemory, err
	}
	return Persisted, nil
}

// Clear empties the log and erases the stored list. Clearing an empty log
// is harmless.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	l.list = nil
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.written, l.cleared, l.writeFailed = seq, seq, false
	if err := l.store.Remove(ctx, StorageKey); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		l.metrics.IncPersistFailure("activity")
		l.logger.Error("error clearing activities", zap.Error(err))
		return err
	}
	return nil
}

// List returns a copy of the log, newest first.
func (l *Log) List() []schema.Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := slices.Clone(l.list)
	if out == nil {
		out = []schema.Activity{}
	}
	return out
}
