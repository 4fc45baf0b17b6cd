package catalog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "keywords.json"))

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileStore_RoundTripPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.json")
	s := NewFileStore(path)

	in := Categories{
		{Name: "zeta", Keywords: []string{"上分", "b<&>"}},
		{Name: "alpha", Keywords: []string{"a"}},
		{Name: CategoryCustom, Keywords: nil},
	}
	require.NoError(t, s.Save(in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "上分", "non-ASCII must not be escaped")
	assert.Contains(t, text, "b<&>", "HTML characters must not be escaped")
	assert.Contains(t, text, "\n  \"zeta\": [", "two-space indentation")
	assert.Less(t, strings.Index(text, "zeta"), strings.Index(text, "alpha"))
	assert.Contains(t, text, "\"custom\": []")

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "zeta", out[0].Name)
	assert.Equal(t, []string{"上分", "b<&>"}, out[0].Keywords)
	assert.Equal(t, "alpha", out[1].Name)
	assert.Equal(t, []string{}, out[2].Keywords)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
}

func TestFileStore_SaveToMissingDirectoryFails(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing", "keywords.json"))
	assert.Error(t, s.Save(Default()))
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file uses defaults and does not write", func(t *testing.T) {
		path := filepath.Join(dir, "absent.json")
		cs := LoadOrDefault(NewFileStore(path), quietLogger())
		assert.Equal(t, Default(), cs)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("corrupt file uses defaults", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		assert.Equal(t, Default(), LoadOrDefault(NewFileStore(path), quietLogger()))
	})

	t.Run("existing file wins and keeps unknown categories", func(t *testing.T) {
		path := filepath.Join(dir, "present.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"pharma": ["pills"], "custom": ["x"]}`), 0o644))
		cs := LoadOrDefault(NewFileStore(path), quietLogger())
		require.Len(t, cs, 2)
		assert.Equal(t, "pharma", cs[0].Name)
	})
}

func TestCatalogPersistsThroughFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.json")
	store := NewFileStore(path)
	c := New(store, Default())

	ok, err := c.Add("测试词", "")
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := store.Load()
	require.NoError(t, err)
	i := reloaded.index(CategoryCustom)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, []string{"测试词"}, reloaded[i].Keywords)
}
