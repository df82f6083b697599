package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

// flakyStore fails writes while broken is set.
type flakyStore struct {
	kv.Store
	mu     sync.Mutex
	broken bool
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyStore) Set(ctx context.Context, key, val string) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("write refused")
	}
	return f.Store.Set(ctx, key, val)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newStore() kv.Store {
	return engine.NewMemStore(nil, nil, nil).Scope("device")
}

func persisted(t *testing.T, s kv.Store) []schema.Activity {
	t.Helper()
	raw, err := s.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	var list []schema.Activity
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	return list
}

func TestAppendDefaultsForKnownKind(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 30, 0, 123e6, time.UTC)
	l := New(newStore(), Options{Clock: fixedClock(now)})
	l.Initialize(ctx)

	list, durability := l.Append(ctx, KindLogin, Overrides{})
	require.Len(t, list, 1)
	assert.Equal(t, Persisted, durability)

	got := list[0]
	assert.Equal(t, "login", got.Type)
	assert.Equal(t, "Logged in successfully", got.Message)
	assert.Equal(t, schema.ColorSuccess, got.Color)
	assert.Equal(t, "2026-05-04T10:30:00.123Z", got.Timestamp)
	assert.Equal(t, fmt.Sprint(now.UnixMilli()), got.ID)
}

func TestAppendOverridesAndUnknownKind(t *testing.T) {
	ctx := context.Background()
	l := New(newStore(), Options{})
	l.Initialize(ctx)

	list, _ := l.Append(ctx, KindScanFailed, Overrides{
		Message: "Face matching failed - timeout",
		Details: map[string]any{"scan": "face"},
	})
	assert.Equal(t, "scan_failed", list[0].Type)
	assert.Equal(t, "Face matching failed - timeout", list[0].Message)
	assert.Equal(t, schema.ColorDanger, list[0].Color)
	assert.Equal(t, "face", list[0].Details["scan"])

	list, _ = l.Append(ctx, Kind("FILE_SELECTED"), Overrides{})
	assert.Equal(t, "FILE_SELECTED", list[0].Type)
	assert.Equal(t, FallbackMessage, list[0].Message)
	assert.Equal(t, schema.ColorPrimary, list[0].Color)

	list, _ = l.Append(ctx, KindNoMatch, Overrides{Color: schema.ColorInfo})
	assert.Equal(t, schema.ColorInfo, list[0].Color)

	list, _ = l.Append(ctx, KindNoMatch, Overrides{Color: "chartreuse"})
	assert.Equal(t, schema.ColorWarning, list[0].Color)
}

func TestBoundedLengthAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	l := New(store, Options{})
	l.Initialize(ctx)

	const n = 27
	for i := 1; i <= n; i++ {
		list, _ := l.Append(ctx, KindSearchPerformed, Overrides{Message: fmt.Sprintf("search %d", i)})
		assert.Len(t, list, min(i, MaxActivities))
		assert.Len(t, persisted(t, store), min(i, MaxActivities))
	}

	stored := persisted(t, store)
	require.Len(t, stored, MaxActivities)
	for i, a := range stored {
		assert.Equal(t, fmt.Sprintf("search %d", n-i), a.Message)
	}
	assert.Equal(t, stored, l.List())
}

func TestIDsAreUniqueWithinOneMillisecond(t *testing.T) {
	ctx := context.Background()
	l := New(newStore(), Options{Clock: fixedClock(time.UnixMilli(1_700_000_000_000))})
	l.Initialize(ctx)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		list, _ := l.Append(ctx, KindCameraAccess, Overrides{})
		assert.False(t, seen[list[0].ID], "duplicate id %s", list[0].ID)
		seen[list[0].ID] = true
	}
}

func TestIDsStayUniqueAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	clock := fixedClock(time.UnixMilli(1_700_000_000_000))

	first := New(store, Options{Clock: clock})
	first.Initialize(ctx)
	list, _ := first.Append(ctx, KindLogin, Overrides{})

	second := New(store, Options{Clock: clock})
	second.Initialize(ctx)
	list2, _ := second.Append(ctx, KindLogout, Overrides{})
	assert.NotEqual(t, list[0].ID, list2[0].ID)
}

func TestInsertionOrderIgnoresTimestamps(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(newStore(), Options{Clock: func() time.Time { return current }})
	l.Initialize(ctx)

	l.Append(ctx, KindLogin, Overrides{Message: "first"})
	current = current.Add(-time.Hour) // clock stepped backwards
	list, _ := l.Append(ctx, KindLogout, Overrides{Message: "second"})

	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.Equal(t, "first", list[1].Message)
	assert.Less(t, list[0].Timestamp, list[1].Timestamp)
}

func TestPersistFailureKeepsInMemoryRecord(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore()}
	m := metrics.New(prometheus.NewRegistry())
	l := New(store, Options{Metrics: m})
	l.Initialize(ctx)

	l.Append(ctx, KindLogin, Overrides{})
	store.setBroken(true)

	list, durability := l.Append(ctx, KindMatchFound, Overrides{})
	assert.Equal(t, InMemory, durability)
	assert.Len(t, list, 2)
	assert.Len(t, l.List(), 2)
	assert.Len(t, persisted(t, store), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("activity")))

	store.setBroken(false)
	list, durability = l.Append(ctx, KindNoMatch, Overrides{})
	assert.Equal(t, Persisted, durability)
	assert.Len(t, persisted(t, store), 3)
	assert.Equal(t, list, persisted(t, store))
}

// staleSeq reserves a sequence number the way Append does before it takes
// the write lock.
func staleSeq(l *Log) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

func TestSupersededSnapshotReportsNewestOutcome(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore()}
	l := New(store, Options{})
	l.Initialize(ctx)
	l.Append(ctx, KindLogin, Overrides{})

	// a Clear that lands between snapshot and write wins
	seq := staleSeq(l)
	require.NoError(t, l.Clear(ctx))
	durability, err := l.persist(ctx, []schema.Activity{{ID: "stale"}}, seq)
	require.NoError(t, err)
	assert.Equal(t, Cleared, durability)
	_, err = store.Get(ctx, StorageKey)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	// a newer write that failed is not reported as persisted
	seq = staleSeq(l)
	store.setBroken(true)
	_, newest := l.Append(ctx, KindLogout, Overrides{})
	assert.Equal(t, InMemory, newest)
	durability, err = l.persist(ctx, []schema.Activity{{ID: "stale"}}, seq)
	require.NoError(t, err)
	assert.Equal(t, InMemory, durability)

	// and one that succeeded is
	seq = staleSeq(l)
	store.setBroken(false)
	_, newest = l.Append(ctx, KindNoMatch, Overrides{})
	assert.Equal(t, Persisted, newest)
	durability, err = l.persist(ctx, []schema.Activity{{ID: "stale"}}, seq)
	require.NoError(t, err)
	assert.Equal(t, Persisted, durability)
	assert.Equal(t, "cleared", Cleared.String())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	l := New(store, Options{})
	l.Initialize(ctx)

	for i := 0; i < 4; i++ {
		l.Append(ctx, KindDocumentViewed, Overrides{})
	}

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.List())
	_, err := store.Get(ctx, StorageKey)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	require.NoError(t, l.Clear(ctx))

	restarted := New(store, Options{})
	restarted.Initialize(ctx)
	assert.Empty(t, restarted.List())
	assert.NotNil(t, restarted.List())
}

func TestInitializeCorruptOrMissing(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	l := New(store, Options{})
	l.Initialize(ctx)
	assert.Empty(t, l.List())

	require.NoError(t, store.Set(ctx, StorageKey, "[{broken"))
	l.Initialize(ctx)
	assert.Empty(t, l.List())

	// an oversized list written by someone else is capped on load
	var big []schema.Activity
	for i := 0; i < 30; i++ {
		big = append(big, schema.Activity{ID: fmt.Sprint(i), Type: "login"})
	}
	require.NoError(t, kv.SetJSON(ctx, store, StorageKey, big))
	l.Initialize(ctx)
	assert.Len(t, l.List(), MaxActivities)
}

func TestRefreshPicksUpExternalWrites(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	a := New(store, Options{})
	a.Initialize(ctx)
	b := New(store, Options{})
	b.Initialize(ctx)

	a.Append(ctx, KindForensicAnalysis, Overrides{})
	assert.Empty(t, b.List())

	b.Refresh(ctx)
	require.Len(t, b.List(), 1)
	assert.Equal(t, "forensic_analysis", b.List()[0].Type)

	// a corrupt value does not wipe what b already has
	require.NoError(t, store.Set(ctx, StorageKey, "garbage"))
	b.Refresh(ctx)
	assert.Len(t, b.List(), 1)

	require.NoError(t, store.Remove(ctx, StorageKey))
	b.Refresh(ctx)
	assert.Empty(t, b.List())
}

func TestConcurrentAppendsKeepNewestState(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	l := New(store, Options{})
	l.Initialize(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(ctx, KindScanSuccess, Overrides{})
		}()
	}
	wg.Wait()

	assert.Len(t, l.List(), MaxActivities)
	assert.Equal(t, l.List(), persisted(t, store))
}

func TestDescribe(t *testing.T) {
	info, ok := Describe(KindLogout)
	assert.True(t, ok)
	assert.Equal(t, Info{"logout", "Logged out", schema.ColorWarning}, info)

	_, ok = Describe("SOMETHING_ELSE")
	assert.False(t, ok)

	assert.Len(t, Kinds(), 10)
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	ts := func(d time.Duration) string { return now.Add(-d).Format(TimestampLayout) }

	cases := []struct {
		in   string
		want string
	}{
		{"", "Just now"},
		{ts(30 * time.Second), "Just now"},
		{ts(-time.Hour), "Just now"},
		{ts(time.Minute), "1 minute ago"},
		{ts(45 * time.Minute), "45 minutes ago"},
		{ts(time.Hour), "1 hour ago"},
		{ts(23 * time.Hour), "23 hours ago"},
		{ts(24 * time.Hour), "1 day ago"},
		{ts(6 * 24 * time.Hour), "6 days ago"},
		{"yesterday-ish", "Unknown time"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatTimeAgo(tc.in, now), tc.in)
	}

	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Local().Format("Jan 2, 2006"), FormatTimeAgo(old.Format(TimestampLayout), now))
}
