package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/daemon"
	"github.com/formlab/formd/internal/log"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "analyze":
			os.Exit(runAnalyzeCLI(os.Args[2:]))
		case "catalog":
			os.Exit(runCatalogCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// The level from FORMD_LOG_LEVEL applies immediately; a level set only
	// in the config file is applied via SetLevel after loading.
	log.Configure(log.Config{
		Level:   os.Getenv("FORMD_LOG_LEVEL"),
		Service: "formd",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := resolveConfigPath(explicitConfigPath)

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}
	log.SetLevel(cfg.LogLevel)

	switch {
	case explicitConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", explicitConfigPath).
			Msg("loaded configuration from file")
	case effectiveConfigPath != "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	container, err := daemon.WireServices(ctx, cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "bootstrap.failed").
			Msg("failed to wire services")
	}

	if err := container.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}

	logger.Info().Msg("server exiting")
}

// resolveConfigPath prefers the explicit flag and falls back to
// ${FORMD_DATA_DIR}/config.yaml when that file exists, so a config saved
// next to the data survives restarts without extra flags.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dataDir := strings.TrimSpace(os.Getenv("FORMD_DATA_DIR"))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
