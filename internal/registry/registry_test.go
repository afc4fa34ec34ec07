package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/cvpipe/internal/registry"
)

type item struct{ name string }

func TestRegistry(t *testing.T) {
	var r registry.Registry[*item]
	a, b := &item{"a"}, &item{"b"}

	ha, err := r.Add(a)
	require.NoError(t, err)
	hb, err := r.Add(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	_, err = r.Add(a)
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
	assert.Equal(t, 2, r.Len())

	// same content, different identity
	_, err = r.Add(&item{"a"})
	assert.NoError(t, err)

	e, err := r.At(1)
	require.NoError(t, err)
	assert.Equal(t, hb, e.Handle)
	assert.Same(t, b, e.Item)

	_, err = r.At(3)
	assert.ErrorIs(t, err, registry.ErrOutOfRange)
	_, err = r.At(-1)
	assert.ErrorIs(t, err, registry.ErrOutOfRange)

	got, ok := r.Lookup(ha)
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = r.Lookup(registry.NewHandle())
	assert.False(t, ok)

	assert.Equal(t, []*item{a, b}, r.Items()[:2])

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Entries())
}

type uncomparable func()

func TestRegistryUncomparable(t *testing.T) {
	var r registry.Registry[any]
	fn := uncomparable(func() {})
	_, err := r.Add(fn)
	require.NoError(t, err)
	_, err = r.Add(fn)
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

type value struct{ name string }

func TestRegistryValues(t *testing.T) {
	var r registry.Registry[any]
	ha, err := r.Add(value{"x"})
	require.NoError(t, err)
	hb, err := r.Add(value{"x"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
	assert.Equal(t, 2, r.Len())

	p := &item{"p"}
	_, err = r.Add(p)
	require.NoError(t, err)
	_, err = r.Add(p)
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
}
