// Package catalog persists per-video metadata with curated labels and exports
// the metadata CSV.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Form and exercise values for files without a curated label.
const (
	FormGood = "good"
	FormBad  = "bad"
	Unknown  = "unknown"
)

// Label classifies one raw video file.
type Label struct {
	Exercise string `yaml:"exercise" json:"exercise"`
	Form     string `yaml:"form" json:"form"`
}

// DefaultLabels returns the curated label table keyed by raw file name.
func DefaultLabels() map[string]Label {
	return map[string]Label{
		"squat1.mp4":      {Exercise: "squat", Form: FormGood},
		"squat2.mp4":      {Exercise: "squat", Form: FormBad},
		"deadlift1.mp4":   {Exercise: "deadlift", Form: FormGood},
		"deadlift2.mp4":   {Exercise: "deadlift", Form: FormBad},
		"benchpress1.mp4": {Exercise: "bench press", Form: FormGood},
		"benchpress2.mp4": {Exercise: "bench press", Form: FormBad},
	}
}

// LoadLabels returns the default table overlaid with entries from the given
// YAML file. An empty path returns the defaults unchanged.
func LoadLabels(path string) (map[string]Label, error) {
	labels := DefaultLabels()
	if path == "" {
		return labels, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}

	var override map[string]Label
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil {
		if errors.Is(err, io.EOF) {
			return labels, nil
		}
		return nil, fmt.Errorf("parse labels file %s: %w", path, err)
	}

	for name, l := range override {
		labels[name] = l
	}
	return labels, nil
}

// Lookup returns the label for a raw file name. Unlisted files come back as
// unknown/unknown rather than an error.
func Lookup(labels map[string]Label, name string) Label {
	if l, ok := labels[name]; ok {
		return l
	}
	return Label{Exercise: Unknown, Form: Unknown}
}
