package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Skip if Redis is not available
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	prefix := fmt.Sprintf("test:fieldcache:%d:", time.Now().UnixNano())
	return NewWithClient(client, prefix)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t).Scope("device")

	_, err := s.Get(ctx, "@biofugitive_token")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "@biofugitive_token", "tok with spaces"))
	got, err := s.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "tok with spaces", got)

	require.NoError(t, s.Remove(ctx, "@biofugitive_token"))
	require.NoError(t, s.Remove(ctx, "@biofugitive_token"))
	_, err = s.Get(ctx, "@biofugitive_token")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestScopesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	a, b := base.Scope("a"), base.Scope("b")

	require.NoError(t, a.Set(ctx, "k", "1"))
	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	require.NoError(t, a.Remove(ctx, "k"))
}
