package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "kungfu", "Meiren/Yunxi")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Put(ctx, "kungfu", "Meiren/Yunxi", []byte(`{"a":1}`)))
	got, err := s.Get(ctx, "kungfu", "Meiren/Yunxi")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, s.Put(ctx, "kungfu", "Meiren/Yunxi", []byte(`{"a":2}`)))
	got, err = s.Get(ctx, "kungfu", "Meiren/Yunxi")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	require.NoError(t, s.Delete(ctx, "kungfu", "Meiren/Yunxi"))
	require.NoError(t, s.Delete(ctx, "kungfu", "Meiren/Yunxi"))
	_, err = s.Get(ctx, "kungfu", "Meiren/Yunxi")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_KeysStayInsideNamespace(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	path := s.Path("kungfu", "../../etc/passwd")
	assert.Equal(t, filepath.Join(root, "kungfu"), filepath.Dir(path))

	path = s.Path("kungfu", "梦江南/云夕·长安")
	assert.Equal(t, filepath.Join(root, "kungfu"), filepath.Dir(path))
}

func TestStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Put(ctx, "", "k", nil), kv.ErrInvalidKey)
	assert.ErrorIs(t, s.Put(ctx, "ns", "", nil), kv.ErrInvalidKey)
	assert.ErrorIs(t, s.Put(ctx, "ns", "..", nil), kv.ErrInvalidKey)
	assert.ErrorIs(t, s.Put(ctx, "a/b", "k", nil), kv.ErrInvalidKey)
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "ranking", "snapshot", []byte(`{}`)))

	entries, err := os.ReadDir(filepath.Join(root, "ranking"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestStore_PingAndJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, kv.PutJSON(ctx, s, "ns", "key", payload{Name: "Yunxi"}))
	got, err := kv.GetJSON[payload](ctx, s, "ns", "key")
	require.NoError(t, err)
	assert.Equal(t, "Yunxi", got.Name)

	require.NoError(t, s.Put(ctx, "ns", "broken", []byte("{not json")))
	_, err = kv.GetJSON[payload](ctx, s, "ns", "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, kv.ErrNotFound)
}
