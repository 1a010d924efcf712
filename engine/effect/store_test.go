package effect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRegisterAndChanged(t *testing.T) {
	s := NewShaderStore()
	s.Register("a", "one")
	s.Register("b", "two")
	assert.Empty(t, s.Changed(), "first registration is not a change")

	s.Register("a", "one")
	assert.Empty(t, s.Changed(), "identical source is not a change")

	s.Register("b", "three")
	assert.Equal(t, []string{"b"}, s.Changed())
	assert.Empty(t, s.Changed(), "Changed drains")

	src, err := s.Source("b")
	require.NoError(t, err)
	assert.Equal(t, "three", src)
	assert.Equal(t, []string{"a", "b"}, s.Names())

	_, err = s.Source("c")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestStoreLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pass.fragment.wgsl"), []byte("frag"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.wgsl"), 0o755))

	s := NewShaderStore()
	require.NoError(t, s.LoadDir(dir))
	assert.Equal(t, []string{"pass.fragment"}, s.Names())

	assert.Error(t, s.LoadDir(filepath.Join(dir, "missing")))
}
