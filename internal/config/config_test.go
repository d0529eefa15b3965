package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 128, cfg.Prefetcher.MetaBatchSize)
	require.Equal(t, 4096, cfg.Prefetcher.QueueCapacity)
	require.Equal(t, 4*1024*1024, cfg.Cache.MaxSegmentSizeBytes)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pepperstats.yaml")
	content := "cache:\n  root_dir: /tmp/custom-cache\nprefetcher:\n  meta_workers: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-cache", cfg.Cache.RootDir)
	require.Equal(t, 3, cfg.Prefetcher.MetaWorkers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PEPPERSTATS_GIT_EXECUTABLE_PATH", "/usr/local/bin/git")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin/git", cfg.Git.ExecutablePath)
}
