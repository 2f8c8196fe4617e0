package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/formlab/formd/internal/config"
	"gopkg.in/yaml.v3"
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:])
	case "dump":
		return runConfigDump(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage()
		return 2
	}
}

func printConfigUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  formd config validate [--file|-f config.yaml]")
	fmt.Fprintln(os.Stderr, "  formd config dump --effective [--file|-f config.yaml] [--format=yaml|json]")
}

func runConfigValidate(args []string) int {
	fs := flag.NewFlagSet("formd config validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveConfigPath("")
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required (no default config.yaml found in $FORMD_DATA_DIR)")
		return 2
	}

	loader := config.NewLoader(configPath, version)
	if _, err := loader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fmt.Printf("✓ %s is valid\n", configPath)
	return 0
}

func runConfigDump(args []string) int {
	fs := flag.NewFlagSet("formd config dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	var format string
	var effective bool

	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.BoolVar(&effective, "effective", false, "dump effective configuration (defaults + file + env)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !effective {
		fmt.Fprintln(os.Stderr, "Error: --effective is required")
		return 2
	}

	// Unlike validate, dump works without a file: the effective view of
	// defaults plus environment is still meaningful.
	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveConfigPath("")
	}

	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n  %v\n", err)
		return 1
	}

	fileCfg := fileConfigFromAppConfig(cfg)
	redactFileConfigSecrets(&fileCfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	watch := cfg.Ingest.Watch
	initialRun := cfg.Ingest.InitialRun

	frameSkip := cfg.Extract.FrameSkip
	width := cfg.Extract.Width
	height := cfg.Extract.Height

	rateLimit := cfg.Pose.RateLimit
	rateBurst := cfg.Pose.RateBurst

	workers := cfg.Analysis.Workers
	overlayEvery := cfg.Analysis.OverlayEvery
	squatDepth := cfg.Analysis.SquatDepthDeg
	backStraight := cfg.Analysis.BackStraightDeg
	repDown := cfg.Analysis.RepDownDeg
	repUp := cfg.Analysis.RepUpDeg

	apiRateLimit := cfg.API.RateLimit
	metricsEnabled := cfg.Metrics.Enabled
	mirrorEnabled := cfg.Mirror.Enabled
	mirrorUseSSL := cfg.Mirror.UseSSL
	telemetryEnabled := cfg.Telemetry.Enabled
	telemetryInsecure := cfg.Telemetry.Insecure
	sampleRatio := cfg.Telemetry.SampleRatio

	return config.FileConfig{
		DataDir:  cfg.DataDir,
		LogLevel: cfg.LogLevel,
		Ingest: config.IngestFile{
			RawDir:      cfg.Ingest.RawDir,
			Watch:       &watch,
			SettleDelay: cfg.Ingest.SettleDelay.String(),
			InitialRun:  &initialRun,
		},
		Extract: config.ExtractFile{
			FrameSkip:    &frameSkip,
			Width:        &width,
			Height:       &height,
			Timeout:      cfg.Extract.Timeout.String(),
			StallTimeout: cfg.Extract.StallTimeout.String(),
		},
		FFmpeg: config.FFmpegFile{
			Bin:        cfg.FFmpeg.Bin,
			FFprobeBin: cfg.FFmpeg.FFprobeBin,
		},
		Pose: config.PoseFile{
			Mode:      cfg.Pose.Mode,
			URL:       cfg.Pose.URL,
			Timeout:   cfg.Pose.Timeout.String(),
			RateLimit: &rateLimit,
			RateBurst: &rateBurst,
		},
		Cache: config.CacheFile{
			Backend:   cfg.Cache.Backend,
			RedisAddr: cfg.Cache.RedisAddr,
			TTL:       cfg.Cache.TTL.String(),
		},
		Analysis: config.AnalysisFile{
			Workers:         &workers,
			OverlayEvery:    &overlayEvery,
			SquatDepthDeg:   &squatDepth,
			BackStraightDeg: &backStraight,
			RepDownDeg:      &repDown,
			RepUpDeg:        &repUp,
		},
		Catalog: config.CatalogFile{
			LabelsFile: cfg.Catalog.LabelsFile,
		},
		Store: config.StoreFile{
			Backend: cfg.Store.Backend,
		},
		API: config.APIFile{
			ListenAddr:     cfg.API.ListenAddr,
			Token:          cfg.API.Token,
			AllowedOrigins: cfg.API.AllowedOrigins,
			RateLimit:      &apiRateLimit,
			RateWindow:     cfg.API.RateWindow.String(),
		},
		Metrics: config.MetricsFile{
			Enabled:    &metricsEnabled,
			ListenAddr: cfg.Metrics.ListenAddr,
		},
		Mirror: config.MirrorFile{
			Enabled:   &mirrorEnabled,
			Endpoint:  cfg.Mirror.Endpoint,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Bucket:    cfg.Mirror.Bucket,
			UseSSL:    &mirrorUseSSL,
			Prefix:    cfg.Mirror.Prefix,
		},
		Telemetry: config.TelemetryFile{
			Enabled:     &telemetryEnabled,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    &telemetryInsecure,
			SampleRatio: &sampleRatio,
		},
	}
}

func redactFileConfigSecrets(cfg *config.FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.API.Token != "" {
		cfg.API.Token = "***"
	}
	if cfg.Mirror.AccessKey != "" {
		cfg.Mirror.AccessKey = "***"
	}
	if cfg.Mirror.SecretKey != "" {
		cfg.Mirror.SecretKey = "***"
	}
}
