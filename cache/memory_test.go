package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	data := []byte("RIFF")
	require.NoError(t, s.Set(ctx, "k", &Entry{Data: data, ContentType: "audio/wav"}))
	data[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), got.Data)
	assert.Equal(t, "audio/wav", got.ContentType)

	got.Data[0] = 'Y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), again.Data)
}

func TestMemoryStore_Validation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "", &Entry{Data: []byte{1}}), ErrInvalidKey)
	assert.ErrorIs(t, s.Set(ctx, "k", nil), ErrInvalidEntry)
	assert.ErrorIs(t, s.Set(ctx, "k", &Entry{}), ErrInvalidEntry)
	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(WithMaxEntries(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), &Entry{Data: []byte{byte(i)}}))
	}
	_, err := s.Get(ctx, "k0")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k2", &Entry{Data: []byte{2}}))
	assert.Equal(t, 2, s.Len())

	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "k0")
	assert.NoError(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore(WithMemoryTTL(time.Minute))
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", &Entry{Data: []byte{1}}))
	now = now.Add(30 * time.Second)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestSynthesisKey(t *testing.T) {
	a := SynthesisKey("af_heart", "hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, SynthesisKey("af_heart", "hello"))
	assert.NotEqual(t, a, SynthesisKey("af_bella", "hello"))
	assert.NotEqual(t, SynthesisKey("a", "bc"), SynthesisKey("ab", "c"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, closeFn())

	store, _, err = Open(ctx, Config{Backend: "memory", MaxEntries: 3})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, _, err = Open(ctx, Config{Backend: "memcached"})
	assert.Error(t, err)
}
