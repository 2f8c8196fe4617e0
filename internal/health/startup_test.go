package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlab/formd/internal/config"
)

// putFakeToolchain drops executable ffmpeg/ffprobe stubs onto PATH.
func putFakeToolchain(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func validStartupConfig(t *testing.T) config.AppConfig {
	t.Helper()
	base := t.TempDir()
	return config.AppConfig{
		DataDir: filepath.Join(base, "data"),
		Ingest:  config.IngestSettings{RawDir: filepath.Join(base, "raw")},
		API:     config.APISettings{ListenAddr: ":8080"},
		Pose:    config.PoseSettings{Mode: "stub"},
	}
}

func TestPerformStartupChecks_OK(t *testing.T) {
	putFakeToolchain(t)
	cfg := validStartupConfig(t)

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	// The checks create missing directories.
	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, cfg.Ingest.RawDir)
}

func TestPerformStartupChecks_BadListenAddr(t *testing.T) {
	putFakeToolchain(t)
	cfg := validStartupConfig(t)
	cfg.API.ListenAddr = "no-port"

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid listen address")
}

func TestPerformStartupChecks_RemotePoseNeedsURL(t *testing.T) {
	putFakeToolchain(t)
	cfg := validStartupConfig(t)
	cfg.Pose.Mode = "remote"

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FORMD_POSE_URL")

	cfg.Pose.URL = "ftp://pose.local"
	err = PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")

	cfg.Pose.URL = "http://pose.local:8500"
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}

func TestPerformStartupChecks_MissingToolchain(t *testing.T) {
	// PATH contains only an empty directory, so lookups must fail.
	t.Setenv("PATH", t.TempDir())
	cfg := validStartupConfig(t)

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg binary not found")
}

func TestPerformStartupChecks_MirrorNeedsEndpoint(t *testing.T) {
	putFakeToolchain(t)
	cfg := validStartupConfig(t)
	cfg.Mirror.Enabled = true
	cfg.Mirror.Bucket = "formd"

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror enabled")
}
