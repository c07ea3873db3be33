package hostfunc

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFunc(ctx context.Context, args []any) (any, error) {
	return args, nil
}

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", echoFunc)

	got, err := r.Call(context.Background(), []string{"echo"}, []any{"a", 1})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", 1}, got)
}

func TestRegistryNestedPath(t *testing.T) {
	r := NewRegistry()
	r.Register("util.strings.upper", func(ctx context.Context, args []any) (any, error) {
		return "UP", nil
	})

	got, err := r.Call(context.Background(), []string{"util", "strings", "upper"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UP", got)
}

func TestRegistryNotFound(t *testing.T) {
	r := NewRegistry()
	r.Register("kv.get", echoFunc)

	cases := [][]string{
		{"missing"},
		{"kv", "missing"},
		{"kv", "get", "deeper"}, // walking through a function
		{},
	}
	for _, path := range cases {
		_, err := r.Call(context.Background(), path, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestRegistryNotCallable(t *testing.T) {
	r := NewRegistry()
	r.Register("kv.get", echoFunc)

	// "kv" resolves to a namespace, not a function.
	_, err := r.Call(context.Background(), []string{"kv"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "not callable")
}

func TestWalkReportsFailingSegment(t *testing.T) {
	r := NewRegistry()
	r.Register("a.b.c", echoFunc)

	_, err := Walk(r, []string{"a", "b", "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.b.x")
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	r.Register("kv.get", echoFunc)
	r.Register("kv.set", echoFunc)
	r.Register("time.now", TimeNow)

	names := r.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"kv", "time"}, names)
}

func TestKVStore(t *testing.T) {
	r := NewRegistry()
	NewKVStore().RegisterInto(r)
	ctx := context.Background()

	got, err := r.Call(ctx, []string{"kv", "get"}, []any{"color"})
	require.NoError(t, err)
	assert.Nil(t, got, "missing key reads as nil")

	_, err = r.Call(ctx, []string{"kv", "set"}, []any{"color", "blue"})
	require.NoError(t, err)

	got, err = r.Call(ctx, []string{"kv", "get"}, []any{"color"})
	require.NoError(t, err)
	assert.Equal(t, "blue", got)

	keys, err := r.Call(ctx, []string{"kv", "keys"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"color"}, keys)

	_, err = r.Call(ctx, []string{"kv", "delete"}, []any{"color"})
	require.NoError(t, err)

	got, err = r.Call(ctx, []string{"kv", "get"}, []any{"color"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKVStoreArgValidation(t *testing.T) {
	s := NewKVStore()
	ctx := context.Background()

	_, err := s.Get(ctx, nil)
	assert.EqualError(t, err, "key required")

	_, err = s.Set(ctx, []any{"k"})
	assert.EqualError(t, err, "value required")

	_, err = s.Set(ctx, []any{"k", 42})
	assert.EqualError(t, err, "value must be a string")
}

func TestTimeNow(t *testing.T) {
	got, err := TimeNow(context.Background(), nil)
	require.NoError(t, err)

	secs, ok := got.(float64)
	require.True(t, ok)
	assert.Greater(t, secs, float64(1e9))
}

func TestWalkThroughPlainValue(t *testing.T) {
	r := NewRegistry()
	r.Register("a.b", echoFunc)

	_, err := Walk(r, []string{"a", "b"})
	require.NoError(t, err)

	_, err = Walk(r, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "not a namespace")
}
