package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pngfier.yaml")
	content := "min_size: 2048\nexclude:\n  - vendor\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.MinSize)
	assert.Equal(t, []string{"vendor"}, cfg.Exclude)
	// Untouched fields keep their defaults.
	assert.True(t, cfg.Backup)
	assert.Contains(t, cfg.WatchExtensions, ".html")
}

func TestLoadRejectsNegativeSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pngfier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_size: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pngfier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exclude: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pngfier.yaml")

	cfg := Default()
	cfg.MinSize = 4096
	cfg.Backup = false
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatchesExt(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.WatchesExt(".html"))
	assert.True(t, cfg.WatchesExt(".css"))
	assert.False(t, cfg.WatchesExt(".png"))
}
