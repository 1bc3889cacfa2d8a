package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExample(t *testing.T, dir, id string) {
	t.Helper()
	content := `{"id":"` + id + `","original_sql":"SELECT 1","rewritten_sql":"SELECT 1","dialect":"duckdb"}`
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(content), 0o644))
}

func TestLoadDirReadsAllJSONFiles(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "ex-1")
	writeExample(t, root, "ex-2")

	examples, err := LoadDir(root)
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestLoadDirSkipsNonJSONFiles(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "ex-1")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("notes"), 0o644))

	examples, err := LoadDir(root)
	require.NoError(t, err)
	assert.Len(t, examples, 1)
}

func TestFindByIDSearchesAcrossDialects(t *testing.T) {
	root := t.TempDir()
	writeExample(t, filepath.Join(root, "duckdb"), "q1")
	writeExample(t, filepath.Join(root, "postgres"), "q2")

	ex, err := FindByID(root, "q2")
	require.NoError(t, err)
	assert.Equal(t, "q2", ex.ID)
}

func TestFindByIDSearchesRegressionsSubdir(t *testing.T) {
	root := t.TempDir()
	writeExample(t, filepath.Join(root, "duckdb", "regressions"), "bad-1")

	ex, err := FindByID(root, "bad-1")
	require.NoError(t, err)
	assert.Equal(t, "bad-1", ex.ID)
}

func TestFindByIDMissingReturnsError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "duckdb"), 0o755))

	_, err := FindByID(root, "nope")
	assert.Error(t, err)
}
