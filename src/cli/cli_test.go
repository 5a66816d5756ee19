package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"lsp-proxy/src/config"
	"lsp-proxy/src/server/storage"
)

func TestInitConfig(t *testing.T) {
	t.Setenv("S3_BUCKET", "")
	path := filepath.Join(t.TempDir(), "lsp-proxy.yaml")

	require.NoError(t, InitConfig(path, false))
	_, err := config.LoadConfig(path)
	require.NoError(t, err)

	err = InitConfig(path, false)
	assert.ErrorContains(t, err, "already exists")
	assert.NoError(t, InitConfig(path, true))
}

func TestShowConfigMasksSecrets(t *testing.T) {
	t.Setenv("S3_BUCKET", "projects")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "hunter2")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.GenerateDefaultConfig(path))

	var out bytes.Buffer
	require.NoError(t, ShowConfig(&out, path))
	assert.NotContains(t, out.String(), "hunter2")

	var shown config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, "********", shown.Storage.SecretKey)
	assert.Equal(t, "projects", shown.Storage.Bucket)
}

func TestLoadConfigWithFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REDIS_URL", "redis://elsewhere:6379")

	cfg, err := LoadConfigWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "redis://elsewhere:6379", cfg.Redis.URL)

	_, err = LoadConfigWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}

func TestBuildStorage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proj", "main.go"), []byte("package main"), 0644))

	store, err := buildStorage(&config.StorageConfig{Backend: config.StorageBackendLocal, Root: root})
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStorage{}, store)
	require.NoError(t, checkStorage(context.Background(), store))

	store, err = buildStorage(&config.StorageConfig{Backend: config.StorageBackendS3, Bucket: "projects", Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Storage{}, store)

	_, err = buildStorage(&config.StorageConfig{Backend: config.StorageBackendS3})
	assert.Error(t, err)

	_, err = buildStorage(&config.StorageConfig{Backend: "ftp"})
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{CmdServe, CmdStatus, CmdConfig, CmdVersion} {
		assert.True(t, names[want], "missing command %s", want)
	}

	serve, _, err := rootCmd.Find([]string{CmdServe})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup(FlagListen))
	assert.NotNil(t, serve.Flags().Lookup(FlagConfig))
}
