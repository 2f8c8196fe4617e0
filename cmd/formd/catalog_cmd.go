package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/formlab/formd/internal/catalog"
	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/ingest"
	"github.com/formlab/formd/internal/log"
)

func runCatalogCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printCatalogUsage()
		return 0
	}

	switch args[0] {
	case "export":
		return runCatalogExport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printCatalogUsage()
		return 2
	}
}

func printCatalogUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  formd catalog export [--config|-c config.yaml] [--out metadata.csv]")
}

// runCatalogExport rebuilds catalog rows from the raw library and the
// labels table, then writes the metadata CSV. It does not probe or
// analyze; analysis runs fill in the richer fields.
func runCatalogExport(args []string) int {
	fs := flag.NewFlagSet("formd catalog export", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	var out string
	fs.StringVar(&file, "config", "", "path to YAML configuration file")
	fs.StringVar(&file, "c", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&out, "out", "", "CSV output path (default <dataDir>/metadata.csv)")

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

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create data dir %s: %v\n", cfg.DataDir, err)
		return 1
	}
	if err := os.MkdirAll(cfg.Ingest.RawDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create library root %s: %v\n", cfg.Ingest.RawDir, err)
		return 1
	}

	ctx := context.Background()

	store, err := catalog.Open(cfg.CatalogDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open catalog: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	videos, err := ingest.Scan(cfg.Ingest.RawDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Library scan failed: %v\n", err)
		return 1
	}

	labels, err := catalog.LoadLabels(cfg.Catalog.LabelsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load labels: %v\n", err)
		return 1
	}

	for _, v := range videos {
		label := catalog.Lookup(labels, v.Name)
		entry := catalog.Entry{
			ID:            v.ID,
			Exercise:      label.Exercise,
			Form:          label.Form,
			RawPath:       v.Path,
			ProcessedPath: filepath.Join(cfg.ProcessedDir(), v.ID),
		}
		if err := store.Upsert(ctx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Catalog upsert failed for %s: %v\n", v.ID, err)
			return 1
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Catalog list failed: %v\n", err)
		return 1
	}

	outPath := strings.TrimSpace(out)
	if outPath == "" {
		outPath = cfg.CSVPath()
	}
	if err := catalog.ExportCSV(ctx, outPath, entries); err != nil {
		fmt.Fprintf(os.Stderr, "CSV export failed: %v\n", err)
		return 1
	}

	fmt.Printf("Exported %d entries to %s\n", len(entries), outPath)
	return 0
}
