package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/daemon"
	"github.com/formlab/formd/internal/health"
	"github.com/formlab/formd/internal/log"
)

// runAnalyzeCLI performs a single analysis pass and exits. Exit code 0
// means the run completed, even when individual videos failed; those are
// reported in the summary.
func runAnalyzeCLI(args []string) int {
	fs := flag.NewFlagSet("formd analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	fs.StringVar(&file, "config", "", "path to YAML configuration file")
	fs.StringVar(&file, "c", "", "path to YAML configuration file (shorthand)")
	strict := fs.Bool("strict", false, "exit non-zero when any video fails")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Configure(log.Config{
		Level:   os.Getenv("FORMD_LOG_LEVEL"),
		Service: "formd",
		Version: version,
	})

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveConfigPath("")
	}

	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Startup checks failed: %v\n", err)
		return 1
	}

	pipeline, err := daemon.WirePipeline(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to wire pipeline: %v\n", err)
		return 1
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		}
	}()

	status, err := pipeline.Runner.Analyze(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis run failed: %v\n", err)
		return 1
	}

	fmt.Printf("Run %s completed: %d videos, %d frames, %d reps, %d faults",
		status.RunID, status.Videos, status.Frames, status.Reps, status.Faults)
	if status.Failed > 0 {
		fmt.Printf(", %d failed", status.Failed)
	}
	fmt.Println()

	if *strict && status.Failed > 0 {
		return 1
	}
	return 0
}
