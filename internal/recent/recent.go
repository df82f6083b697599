// Package recent remembers the person records most recently opened on the
// device, newest first, one entry per person.
package recent

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/pkg/boundedlist"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

const (
	StorageKey       = "@recent_persons"
	MaxRecentPersons = 50
)

type Options struct {
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Persons is the recently viewed persons cache.
type Persons struct {
	store   kv.Store
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	list []schema.PersonRef
	seq  uint64

	writeMu sync.Mutex
	written uint64
}

func New(store kv.Store, opts Options) *Persons {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Persons{store: store, now: opts.Clock, logger: opts.Logger, metrics: opts.Metrics}
}

// Initialize loads the stored list; missing or corrupt data yields an empty list.
func (p *Persons) Initialize(ctx context.Context) {
	var loaded []schema.PersonRef
	raw, ok, err := kv.Lookup(ctx, p.store, StorageKey)
	switch {
	case err != nil:
		p.logger.Error("error loading recent persons", zap.Error(err))
	case ok:
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			p.logger.Error("error decoding recent persons", zap.Error(err))
			loaded = nil
		}
	}

	p.mu.Lock()
	p.list = boundedlist.Truncate(loaded, MaxRecentPersons)
	p.seq++
	p.mu.Unlock()
}

// Touch moves ref to the front, dropping any older entry with the same
// PersonID. ViewedAt is stamped by the cache. Entries without a PersonID
// are ignored.
func (p *Persons) Touch(ctx context.Context, ref schema.PersonRef) []schema.PersonRef {
	if ref.PersonID == "" {
		return p.List()
	}
	ref.ViewedAt = p.now().UTC()

	p.mu.Lock()
	p.list = boundedlist.Prepend(p.list, ref, MaxRecentPersons, func(a, b schema.PersonRef) bool {
		return a.PersonID == b.PersonID
	})
	p.seq++
	snapshot, seq := slices.Clone(p.list), p.seq
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if seq > p.written {
		p.written = seq
		if err := kv.SetJSON(ctx, p.store, StorageKey, snapshot); err != nil {
			p.metrics.IncPersistFailure("recent")
			p.logger.Error("error saving recent persons", zap.String("person_id", ref.PersonID), zap.Error(err))
		}
	}
	return snapshot
}

// List returns a copy of the cache, newest first.
func (p *Persons) List() []schema.PersonRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := slices.Clone(p.list)
	if out == nil {
		out = []schema.PersonRef{}
	}
	return out
}

// Clear empties the cache and erases the stored list.
func (p *Persons) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.list = nil
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.written = seq
	if err := p.store.Remove(ctx, StorageKey); err != nil {
		p.metrics.IncPersistFailure("recent")
		p.logger.Error("error clearing recent persons", zap.Error(err))
		return err
	}
	return nil
}
