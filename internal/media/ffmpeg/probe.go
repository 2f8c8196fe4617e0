// Package ffmpeg shells out to the ffmpeg and ffprobe binaries for video
// inspection and frame extraction. Nothing here re-encodes: probing reads
// stream metadata and extraction writes JPEG stills.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/log"
)

// VideoInfo describes the playable video stream of a file.
type VideoInfo struct {
	Container string
	Codec     string
	PixFmt    string
	Width     int
	Height    int
	FPS       float64
	Duration  float64 // seconds
	Frames    int64   // 0 when the container carries no frame count
}

// Prober inspects videos with ffprobe.
type Prober struct {
	Bin     string
	Timeout time.Duration

	logger zerolog.Logger
}

// NewProber returns a Prober using the given ffprobe binary, defaulting to
// "ffprobe" from PATH.
func NewProber(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{
		Bin:     bin,
		Timeout: 10 * time.Second,
		logger:  log.WithComponent("ffmpeg.probe"),
	}
}

// Probe executes ffprobe and returns info about the first video stream.
func (p *Prober) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	// #nosec G204 -- binary comes from config, args are fixed
	cmd := exec.CommandContext(ctx, p.Bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()

	info, parseErr := parseProbeOutput(out)
	if parseErr == nil {
		// ffprobe can exit non-zero on partial files and still emit usable
		// JSON. Accept it but keep the exit in the log.
		if err != nil {
			p.logger.Warn().Err(err).
				Str("path", path).
				Str("stderr", truncate(stderr.String(), 1024)).
				Msg("ffprobe non-zero exit but JSON accepted")
		}
		return info, nil
	}

	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w (stderr: %s)", filepath.Base(path), err, truncate(strings.TrimSpace(stderr.String()), 1024))
	}
	return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), parseErr)
}

type probeData struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		PixFmt       string `json:"pix_fmt,omitempty"`
		Duration     string `json:"duration,omitempty"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		NbFrames     string `json:"nb_frames,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

func parseProbeOutput(out []byte) (*VideoInfo, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	for _, s := range data.Streams {
		if s.CodecType != "video" || s.CodecName == "" {
			continue
		}
		info.Codec = s.CodecName
		info.PixFmt = s.PixFmt
		info.Width = s.Width
		info.Height = s.Height
		if s.Duration != "" {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.Duration = d
			}
		}
		if s.NbFrames != "" {
			if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil {
				info.Frames = n
			}
		}
		if s.AvgFrameRate != "" && s.AvgFrameRate != "0/0" {
			parts := strings.Split(s.AvgFrameRate, "/")
			if len(parts) == 2 {
				num, _ := strconv.ParseFloat(parts[0], 64)
				den, _ := strconv.ParseFloat(parts[1], 64)
				if den > 0 {
					info.FPS = num / den
				}
			}
		}
		break
	}

	if info.Codec == "" {
		return nil, fmt.Errorf("no video stream found")
	}

	if info.Duration == 0 && data.Format.Duration != "" {
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	// format_name is a comma list of demuxer aliases. Prefer the token that
	// matches the common extension, otherwise take the first.
	canonical := ""
	for _, part := range strings.Split(data.Format.FormatName, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		if t == "mp4" || t == "avi" || t == "matroska" {
			canonical = t
			break
		}
		if canonical == "" {
			canonical = t
		}
	}
	if canonical == "matroska" {
		canonical = "mkv"
	}
	if canonical == "" {
		return nil, fmt.Errorf("ffprobe returned empty format_name")
	}
	info.Container = canonical

	return info, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
