package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	st, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, st.WriteFile(ctx, "proj/src/a.ts", []byte("let x=1")))
	require.NoError(t, st.WriteFile(ctx, "proj/README.md", []byte("# hi")))
	require.NoError(t, st.WriteFile(ctx, "project2/b.go", []byte("package b")))

	data, err := st.ReadFile(ctx, "proj/src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "let x=1", string(data))

	_, err = os.Stat(filepath.Join(root, "proj", "src", "a.ts"))
	assert.NoError(t, err)

	files, err := st.ListFiles(ctx, "proj/")
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"proj/README.md", "proj/src/a.ts"}, files)

	require.NoError(t, st.DeleteFile(ctx, "proj/README.md"))
	_, err = st.ReadFile(ctx, "proj/README.md")
	assert.ErrorIs(t, err, ErrFileNotFound)

	// deleting twice is fine
	assert.NoError(t, st.DeleteFile(ctx, "proj/README.md"))
}

func TestLocalStorageListMissingPrefix(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	files, err := st.ListFiles(context.Background(), "nothing/")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalStorageRejectsEscape(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, st.WriteFile(context.Background(), "../outside.txt", []byte("x")))
	_, err = st.ReadFile(context.Background(), "proj/../../etc/passwd")
	assert.Error(t, err)
}
