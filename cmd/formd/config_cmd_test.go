package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/formlab/formd/internal/config"
)

func TestRunConfigValidate(t *testing.T) {
	base := t.TempDir()

	validPath := filepath.Join(base, "valid.yaml")
	valid := []byte("logLevel: info\npose:\n  mode: stub\n")
	if err := os.WriteFile(validPath, valid, 0o600); err != nil {
		t.Fatal(err)
	}

	invalidPath := filepath.Join(base, "invalid.yaml")
	invalid := []byte("pose:\n  mode: banana\n")
	if err := os.WriteFile(invalidPath, invalid, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "valid file", args: []string{"--file", validPath}, want: 0},
		{name: "shorthand flag", args: []string{"-f", validPath}, want: 0},
		{name: "invalid pose mode", args: []string{"--file", invalidPath}, want: 1},
		{name: "missing file", args: []string{"--file", filepath.Join(base, "nope.yaml")}, want: 1},
		{name: "no file and no default", args: []string{}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Point auto-detection at a dir without a config.yaml.
			t.Setenv("FORMD_DATA_DIR", base)
			if got := runConfigValidate(tt.args); got != tt.want {
				t.Fatalf("runConfigValidate(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunConfigDumpFlags(t *testing.T) {
	t.Setenv("FORMD_DATA_DIR", t.TempDir())

	if got := runConfigDump([]string{}); got != 2 {
		t.Fatalf("dump without --effective = %d, want 2", got)
	}
	if got := runConfigDump([]string{"--effective", "--format", "toml"}); got != 2 {
		t.Fatalf("dump with unsupported format = %d, want 2", got)
	}
	// No config file present: effective view is defaults + env.
	if got := runConfigDump([]string{"--effective"}); got != 0 {
		t.Fatalf("dump --effective = %d, want 0", got)
	}
	if got := runConfigDump([]string{"--effective", "--format", "json"}); got != 0 {
		t.Fatalf("dump --effective --format json = %d, want 0", got)
	}
}

func TestRunConfigCLIDispatch(t *testing.T) {
	if got := runConfigCLI([]string{}); got != 0 {
		t.Fatalf("bare config = %d, want 0 (usage)", got)
	}
	if got := runConfigCLI([]string{"--help"}); got != 0 {
		t.Fatalf("config --help = %d, want 0", got)
	}
	if got := runConfigCLI([]string{"bogus"}); got != 2 {
		t.Fatalf("config bogus = %d, want 2", got)
	}
}

func TestFileConfigFromAppConfig(t *testing.T) {
	cfg := config.AppConfig{
		Version:  "test",
		DataDir:  "/var/lib/formd",
		LogLevel: "debug",
	}
	cfg.Ingest.RawDir = "/var/lib/formd/raw"
	cfg.Ingest.Watch = true
	cfg.Ingest.SettleDelay = 2 * time.Second
	cfg.Extract.Timeout = 5 * time.Minute
	cfg.Pose.Mode = "remote"
	cfg.Pose.URL = "http://pose:9000"
	cfg.Pose.Timeout = 10 * time.Second
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = "redis:6379"
	cfg.Cache.TTL = time.Hour
	cfg.Analysis.Workers = 4
	cfg.API.ListenAddr = ":8080"
	cfg.API.RateWindow = time.Minute
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ":9090"

	fileCfg := fileConfigFromAppConfig(cfg)

	if fileCfg.DataDir != "/var/lib/formd" {
		t.Fatalf("dataDir = %q", fileCfg.DataDir)
	}
	if fileCfg.Ingest.SettleDelay != "2s" {
		t.Fatalf("settleDelay = %q, want 2s", fileCfg.Ingest.SettleDelay)
	}
	if fileCfg.Extract.Timeout != "5m0s" {
		t.Fatalf("extract timeout = %q, want 5m0s", fileCfg.Extract.Timeout)
	}
	if fileCfg.Ingest.Watch == nil || !*fileCfg.Ingest.Watch {
		t.Fatal("ingest.watch should be true")
	}
	if fileCfg.Pose.Mode != "remote" || fileCfg.Pose.URL != "http://pose:9000" {
		t.Fatalf("pose = %+v", fileCfg.Pose)
	}
	if fileCfg.Cache.TTL != "1h0m0s" {
		t.Fatalf("cache ttl = %q, want 1h0m0s", fileCfg.Cache.TTL)
	}
	if fileCfg.Analysis.Workers == nil || *fileCfg.Analysis.Workers != 4 {
		t.Fatal("analysis.workers should be 4")
	}
	if fileCfg.Metrics.Enabled == nil || !*fileCfg.Metrics.Enabled {
		t.Fatal("metrics.enabled should be true")
	}
}

func TestRedactFileConfigSecrets(t *testing.T) {
	var fileCfg config.FileConfig
	fileCfg.API.Token = "super-secret"
	fileCfg.Mirror.AccessKey = "AKIA123"
	fileCfg.Mirror.SecretKey = "shhh"
	fileCfg.Mirror.Bucket = "artifacts"

	redactFileConfigSecrets(&fileCfg)

	if fileCfg.API.Token != "***" {
		t.Fatalf("token = %q, want ***", fileCfg.API.Token)
	}
	if fileCfg.Mirror.AccessKey != "***" || fileCfg.Mirror.SecretKey != "***" {
		t.Fatalf("mirror creds not redacted: %+v", fileCfg.Mirror)
	}
	if fileCfg.Mirror.Bucket != "artifacts" {
		t.Fatalf("bucket should not be redacted, got %q", fileCfg.Mirror.Bucket)
	}

	// Empty secrets stay empty instead of becoming ***.
	var empty config.FileConfig
	redactFileConfigSecrets(&empty)
	if empty.API.Token != "" {
		t.Fatalf("empty token = %q, want empty", empty.API.Token)
	}

	redactFileConfigSecrets(nil)
}
