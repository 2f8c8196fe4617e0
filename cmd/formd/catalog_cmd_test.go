package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCatalogCLIDispatch(t *testing.T) {
	if got := runCatalogCLI([]string{}); got != 0 {
		t.Fatalf("bare catalog = %d, want 0 (usage)", got)
	}
	if got := runCatalogCLI([]string{"help"}); got != 0 {
		t.Fatalf("catalog help = %d, want 0", got)
	}
	if got := runCatalogCLI([]string{"import"}); got != 2 {
		t.Fatalf("catalog import = %d, want 2", got)
	}
}

func TestRunCatalogExport(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	rawDir := filepath.Join(base, "raw")
	if err := os.MkdirAll(rawDir, 0o750); err != nil {
		t.Fatal(err)
	}

	// One curated video, one unlabeled video, one non-video file.
	for name, content := range map[string]string{
		"squat1.mp4":   "fake video bytes",
		"mystery.mov":  "fake video bytes",
		"notes.txt":    "not a video",
		".hidden.mp4":  "skipped dotfile",
		"squat1.label": "also not a video",
	} {
		if err := os.WriteFile(filepath.Join(rawDir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	t.Setenv("FORMD_DATA_DIR", dataDir)
	t.Setenv("FORMD_RAW_DIR", rawDir)

	if got := runCatalogCLI([]string{"export"}); got != 0 {
		t.Fatalf("catalog export = %d, want 0", got)
	}

	csvPath := filepath.Join(dataDir, "metadata.csv")
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("metadata.csv not written: %v", err)
	}
	out := string(data)

	if !strings.HasPrefix(out, "id,exercise,form,raw_path,processed_path") {
		t.Fatalf("unexpected CSV header: %q", strings.SplitN(out, "\n", 2)[0])
	}
	if !strings.Contains(out, "squat1,squat,good") {
		t.Errorf("curated label missing from CSV:\n%s", out)
	}
	if !strings.Contains(out, "mystery,unknown,unknown") {
		t.Errorf("unlabeled video should fall back to unknown:\n%s", out)
	}
	if strings.Contains(out, "notes") || strings.Contains(out, ".hidden") {
		t.Errorf("non-video files leaked into CSV:\n%s", out)
	}

	// A second export over the same library is idempotent.
	if got := runCatalogCLI([]string{"export"}); got != 0 {
		t.Fatalf("repeat catalog export = %d, want 0", got)
	}
	again, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != out {
		t.Errorf("repeat export changed the CSV:\nfirst:\n%s\nsecond:\n%s", out, string(again))
	}
}

func TestRunCatalogExportCustomOut(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	rawDir := filepath.Join(base, "raw")
	if err := os.MkdirAll(rawDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rawDir, "deadlift1.mp4"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FORMD_DATA_DIR", dataDir)
	t.Setenv("FORMD_RAW_DIR", rawDir)

	outPath := filepath.Join(base, "export.csv")
	if got := runCatalogCLI([]string{"export", "--out", outPath}); got != 0 {
		t.Fatalf("catalog export --out = %d, want 0", got)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("custom CSV path not written: %v", err)
	}
	if !strings.Contains(string(data), "deadlift1,deadlift,good") {
		t.Errorf("expected deadlift1 row, got:\n%s", data)
	}
}
