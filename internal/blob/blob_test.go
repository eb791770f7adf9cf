package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := NewDir(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"dir":    dir,
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("lesson material")
			cid, err := st.Put(ctx, data)
			require.NoError(t, err)
			require.Len(t, cid, 64)

			got, err := st.Get(ctx, cid)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})
	}
}

func TestStore_PutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := st.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			second, err := st.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			require.Equal(t, first, second)

			other, err := st.Put(ctx, []byte("different bytes"))
			require.NoError(t, err)
			require.NotEqual(t, first, other)
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	ctx := context.Background()
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	cid, err := st.Put(ctx, []byte("immutable"))
	require.NoError(t, err)

	got, err := st.Get(ctx, cid)
	require.NoError(t, err)
	got[0] = 'X'

	again, err := st.Get(ctx, cid)
	require.NoError(t, err)
	require.Equal(t, []byte("immutable"), again)
}

func TestDir_RejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	st, err := NewDir(root)
	require.NoError(t, err)

	secret := filepath.Join(filepath.Dir(root), "secret")
	require.NoError(t, os.WriteFile(secret, []byte("keys"), 0o600))

	for _, key := range []string{
		"../secret",
		"..%2Fsecret",
		"ABCDEF0000000000000000000000000000000000000000000000000000000000",
		"short",
		"",
	} {
		_, err := st.Get(ctx, key)
		require.ErrorIs(t, err, ErrNotFound, "key %q", key)
	}
}

func TestDir_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")

	st, err := NewDir(root)
	require.NoError(t, err)
	cid, err := st.Put(ctx, []byte("persistent"))
	require.NoError(t, err)

	reopened, err := NewDir(root)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, cid)
	require.NoError(t, err)
	require.Equal(t, []byte("persistent"), got)
}
