package engine

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

// MemStore is the thread-safe in-memory engine. Every mutation snapshots the
// touched namespace and hands it to the persister in the background.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [namespace][key]value
	data      map[string]map[string]string
	persister *Persistence
	logger    *zap.Logger
	wg        sync.WaitGroup

	// versions counts mutations per namespace (guarded by mu); flushed is the
	// newest version on disk (guarded by flushMu).
	versions map[string]uint64
	flushMu  sync.Mutex
	flushed  map[string]uint64
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and a persister; both may be nil.
func NewMemStore(initialData map[string]map[string]string, p *Persistence, logger *zap.Logger) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]string)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemStore{
		data:      initialData,
		persister: p,
		logger:    logger,
		versions:  make(map[string]uint64),
		flushed:   make(map[string]uint64),
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close flushes pending writes. The store stays usable afterwards.
func (m *MemStore) Close() error {
	m.Wait()
	return nil
}

func (m *MemStore) get(namespace, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[namespace][key]
	if !ok {
		return "", kv.ErrKeyNotFound
	}
	return val, nil
}

func (m *MemStore) set(namespace, key, val string) {
	m.mu.Lock()
	if m.data[namespace] == nil {
		m.data[namespace] = make(map[string]string)
	}
	m.data[namespace][key] = val
	m.versions[namespace]++
	snapshot, version := m.copyNamespace(namespace), m.versions[namespace]
	m.mu.Unlock()

	m.persist(namespace, snapshot, version)
}

func (m *MemStore) remove(namespace, key string) {
	m.mu.Lock()
	ns, ok := m.data[namespace]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := ns[key]; !ok {
		m.mu.Unlock()
		return
	}
	delete(ns, key)
	m.versions[namespace]++
	snapshot, version := m.copyNamespace(namespace), m.versions[namespace]
	m.mu.Unlock()

	m.persist(namespace, snapshot, version)
}

// persist writes a namespace snapshot in the background. A snapshot older
// than the one already on disk is dropped.
func (m *MemStore) persist(namespace string, snapshot map[string]string, version uint64) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.flushMu.Lock()
		defer m.flushMu.Unlock()
		if version <= m.flushed[namespace] {
			return
		}
		m.flushed[namespace] = version
		if err := m.persister.SaveNamespace(namespace, snapshot); err != nil {
			m.logger.Error("persist namespace failed",
				zap.String("namespace", namespace), zap.Error(err))
		}
	}()
}

// copyNamespace creates a copy of a namespace's data.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyNamespace(namespace string) map[string]string {
	original := m.data[namespace]
	out := make(map[string]string, len(original))
	for k, v := range original {
		out[k] = v
	}
	return out
}

// --- Namespaced Implementation ---

// Scope pins namespace. An invalid name yields a store whose every call
// fails with ErrInvalidNamespace.
func (m *MemStore) Scope(namespace string) kv.Store {
	return &scope{store: m, namespace: namespace, err: ValidateNamespace(namespace)}
}

func (m *MemStore) Namespaces(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for ns, keys := range m.data {
		if len(keys) > 0 {
			list = append(list, ns)
		}
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) Keys(_ context.Context, namespace string) ([]string, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		list = append(list, k)
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) Dump(_ context.Context, namespace string) (map[string]string, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to prevent external mutation of the internal map
	return m.copyNamespace(namespace), nil
}

// scope is a kv.Store that "remembers" its namespace.
type scope struct {
	store     *MemStore
	namespace string
	err       error
}

func (s *scope) check(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func (s *scope) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.store.get(s.namespace, key)
}

func (s *scope) Set(ctx context.Context, key, val string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.store.set(s.namespace, key, val)
	return nil
}

func (s *scope) Remove(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.store.remove(s.namespace, key)
	return nil
}
