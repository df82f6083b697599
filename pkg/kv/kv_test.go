package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", kv.ErrKeyNotFound
	}
	return v, nil
}

func (m mapStore) Set(_ context.Context, key, val string) error {
	m[key] = val
	return nil
}

func (m mapStore) Remove(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type failingGetter struct{}

func (failingGetter) Get(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}

func TestGenericGetSet(t *testing.T) {
	ctx := context.Background()
	s := mapStore{}

	type person struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	require.NoError(t, kv.SetJSON(ctx, s, "p", person{ID: "42", Name: "Doe"}))
	assert.JSONEq(t, `{"id":"42","name":"Doe"}`, s["p"])

	got, err := kv.GetJSON[person](ctx, s, "p")
	require.NoError(t, err)
	assert.Equal(t, person{ID: "42", Name: "Doe"}, got)

	_, err = kv.GetJSON[person](ctx, s, "missing")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)

	s["bad"] = "{not json"
	_, err = kv.GetJSON[person](ctx, s, "bad")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	s := mapStore{"k": "v"}

	val, ok, err := kv.Lookup(ctx, s, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	_, ok, err = kv.Lookup(ctx, s, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = kv.Lookup(ctx, failingGetter{}, "k")
	assert.Error(t, err)
}
