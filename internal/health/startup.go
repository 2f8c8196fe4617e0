package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts:
// writable data dir, reachable library root, parseable addresses and the
// ffmpeg toolchain on PATH. Failing fast here beats a half-started daemon.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, "data", cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	if err := os.MkdirAll(cfg.Ingest.RawDir, 0o750); err != nil {
		return fmt.Errorf("library root check failed: %s: %w", cfg.Ingest.RawDir, err)
	}
	logger.Info().Str("path", cfg.Ingest.RawDir).Msg("library root available")

	if err := checkListenAddr(cfg.API.ListenAddr); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := checkListenAddr(cfg.Metrics.ListenAddr); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	if err := checkPoseService(logger, cfg.Pose); err != nil {
		return fmt.Errorf("pose service check failed: %w", err)
	}

	if err := checkToolchain(logger, cfg.FFmpeg); err != nil {
		return fmt.Errorf("toolchain check failed: %w", err)
	}

	if cfg.Mirror.Enabled {
		if cfg.Mirror.Endpoint == "" || cfg.Mirror.Bucket == "" {
			return fmt.Errorf("mirror enabled but endpoint or bucket unset")
		}
	}

	if strings.EqualFold(cfg.Store.Backend, "memory") {
		logger.Warn().
			Str("store_backend", cfg.Store.Backend).
			Msg("runs use the in-memory store; results are lost on restart")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; catalog and runs may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, label, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s directory %s: %w", label, path, err)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("%s directory is not writable: %s: %w", label, path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

func checkPoseService(logger zerolog.Logger, cfg config.PoseSettings) error {
	if cfg.Mode != "remote" {
		return nil
	}
	if cfg.URL == "" {
		return fmt.Errorf("pose mode is remote but FORMD_POSE_URL is unset")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid pose service URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("pose service URL scheme must be http or https, got: %s", u.Scheme)
	}
	logger.Info().Str("url", cfg.URL).Msg("pose service URL is valid")
	return nil
}

func checkToolchain(logger zerolog.Logger, cfg config.FFmpegSettings) error {
	ffmpegBin := strings.TrimSpace(cfg.Bin)
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpegBin); err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", ffmpegBin, err)
	}

	ffprobeBin := strings.TrimSpace(cfg.FFprobeBin)
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if _, err := exec.LookPath(ffprobeBin); err != nil {
		return fmt.Errorf("ffprobe binary not found (%s): %w", ffprobeBin, err)
	}

	logger.Info().Str("ffmpeg", ffmpegBin).Str("ffprobe", ffprobeBin).Msg("media toolchain available")
	return nil
}
