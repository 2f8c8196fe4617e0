// Package ingest discovers workout videos on disk and watches the raw
// directory for new arrivals.
package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/metrics"
)

// SupportedExtensions lists the video container extensions picked up by Scan.
var SupportedExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
	".wmv": true,
	".flv": true,
}

// Video is one discovered raw video file.
type Video struct {
	ID      string // file name without extension
	Path    string
	Name    string // base file name, the catalog label key
	Class   string // first directory under the raw root, "" for top-level files
	Size    int64
	ModTime time.Time
}

// Scan walks root recursively and returns supported videos in stable path
// order. Dotfiles and hidden directories are skipped.
func Scan(root string) ([]Video, error) {
	var videos []Video

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !SupportedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		class := ""
		if parts := strings.Split(rel, string(filepath.Separator)); len(parts) > 1 {
			class = parts[0]
		}

		videos = append(videos, Video{
			ID:      strings.TrimSuffix(name, filepath.Ext(name)),
			Path:    path,
			Name:    name,
			Class:   class,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Path < videos[j].Path })

	metrics.RecordVideosDiscovered(len(videos))
	logger := log.WithComponent("ingest")
	logger.Info().
		Str("event", "ingest.scan").
		Str(log.FieldPath, root).
		Int("videos", len(videos)).
		Msg("scanned raw directory")

	return videos, nil
}
