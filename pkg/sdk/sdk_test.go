package sdk_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/internal/platform/config"
	"github.com/biofugitive/fieldcache/internal/server"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/schema"
	"github.com/biofugitive/fieldcache/pkg/sdk"
)

func serve(t *testing.T, store engine.Namespaced, port string) (*server.Router, string) {
	t.Helper()
	router := server.NewRouter(store, nil)
	go router.Listen(port)
	require.Eventually(t, func() bool { return router.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { router.Stop() })
	return router, fmt.Sprintf("127.0.0.1:%d", router.Addr().(*net.TCPAddr).Port)
}

func TestClient_Integration(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil, nil)
	_, addr := serve(t, store, "0")

	client, err := sdk.Connect(addr, sdk.ClientOptions{DisableTLS: true})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(ctx))

	scope := client.Scope("device")
	require.NoError(t, scope.Set(ctx, "@biofugitive_token", "tok 123"))
	require.NoError(t, kv.SetJSON(ctx, scope, "@biofugitive_user", schema.User{"id": "u1", "role": "officer"}))

	val, err := scope.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "tok 123", val)

	user, err := kv.GetJSON[schema.User](ctx, scope, "@biofugitive_user")
	require.NoError(t, err)
	assert.Equal(t, "officer", user.Role())

	// values set over the wire land in the daemon's engine verbatim
	direct, err := store.Scope("device").Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "tok 123", direct)

	keys, err := client.Keys(ctx, "device")
	require.NoError(t, err)
	assert.Equal(t, []string{"@biofugitive_token", "@biofugitive_user"}, keys)

	namespaces, err := client.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"device"}, namespaces)

	dump, err := client.Dump(ctx, "device")
	require.NoError(t, err)
	assert.Len(t, dump, 2)

	require.NoError(t, scope.Remove(ctx, "@biofugitive_token"))
	_, err = scope.Get(ctx, "@biofugitive_token")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestClient_ReconnectsAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil, nil)
	first, addr := serve(t, store, "0")
	port := fmt.Sprint(first.Addr().(*net.TCPAddr).Port)

	client, err := sdk.Connect(addr, sdk.ClientOptions{DisableTLS: true})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Scope("device").Set(ctx, "k", "v1"))

	require.NoError(t, first.Stop())
	serve(t, store, port)

	got, err := client.Scope("device").Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestClient_CanceledContext(t *testing.T) {
	_, addr := serve(t, engine.NewMemStore(nil, nil, nil), "0")
	client, err := sdk.Connect(addr, sdk.ClientOptions{DisableTLS: true})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Scope("device").Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_EmbeddedSealed(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		DataDir:   t.TempDir(),
		Namespace: "device",
		VaultKey:  "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
	}

	b, err := sdk.Open(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, sdk.ModeEmbedded, b.Mode)
	require.NotNil(t, b.Embedded)

	require.NoError(t, b.Store.Set(ctx, "@biofugitive_token", "secret-token"))
	got, err := b.Store.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got)

	raw, err := b.Namespaced.Scope("device").Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.NotEqual(t, "secret-token", raw, "value should be sealed at rest")
	require.NoError(t, b.Close())

	// reopening reads what the first backend flushed
	reopened, err := sdk.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()
	got, err = reopened.Store.Get(ctx, "@biofugitive_token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got)
}

func TestOpen_RemoteFallsBackToEmbedded(t *testing.T) {
	cfg := config.Config{
		DataDir:    t.TempDir(),
		Namespace:  "device",
		StoreAddr:  "127.0.0.1:1",
		DisableTLS: true,
	}
	b, err := sdk.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, sdk.ModeEmbedded, b.Mode)
}

func TestOpen_Remote(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil, nil)
	_, addr := serve(t, store, "0")

	b, err := sdk.Open(ctx, config.Config{Namespace: "device", StoreAddr: addr, DisableTLS: true}, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, sdk.ModeRemote, b.Mode)
	assert.Nil(t, b.Embedded)

	require.NoError(t, b.Store.Set(ctx, "@recent_activities", "[]"))
	got, err := store.Scope("device").Get(ctx, "@recent_activities")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}
