package catalog

import (
	"context"
	"encoding/csv"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/metrics"
)

// csvHeader is the stable column order of the exported metadata file.
var csvHeader = []string{"id", "exercise", "form", "raw_path", "processed_path"}

// ExportCSV writes the metadata CSV for all entries atomically: the file is
// fsynced under a temp name and renamed into place, so readers never see a
// partial export.
func ExportCSV(ctx context.Context, path string, entries []Entry) error {
	logger := log.WithContext(ctx, log.WithComponent("catalog"))

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		metrics.IncCSVExport("error")
		return fmt.Errorf("create pending csv: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending csv")
		}
	}()

	w := csv.NewWriter(pending)
	if err := w.Write(csvHeader); err != nil {
		metrics.IncCSVExport("error")
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{e.ID, e.Exercise, e.Form, e.RawPath, e.ProcessedPath}
		if err := w.Write(row); err != nil {
			metrics.IncCSVExport("error")
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		metrics.IncCSVExport("error")
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		metrics.IncCSVExport("error")
		return fmt.Errorf("replace csv: %w", err)
	}

	metrics.IncCSVExport("ok")
	logger.Info().
		Str("event", "catalog.csv_exported").
		Str(log.FieldPath, path).
		Int("entries", len(entries)).
		Msg("metadata csv written")
	return nil
}
