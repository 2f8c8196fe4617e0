package config

import "path/filepath"

// Derived locations under DataDir. DataDir is absolute after Load, so these
// are safe to hand to subprocesses and file servers.

// ProcessedDir returns the root directory for extracted frame sets.
func (c AppConfig) ProcessedDir() string {
	return filepath.Join(c.DataDir, "processed")
}

// CSVPath returns the metadata CSV export path.
func (c AppConfig) CSVPath() string {
	return filepath.Join(c.DataDir, "metadata.csv")
}

// CatalogDBPath returns the SQLite catalog database path.
func (c AppConfig) CatalogDBPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// StateDir returns the directory backing the run store.
func (c AppConfig) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}
