package ffmpeg

import (
	"fmt"
	"path/filepath"
)

// ExtractSpec describes one frame extraction job.
type ExtractSpec struct {
	Input     string
	OutputDir string
	FrameSkip int // keep every nth source frame, starting at frame 0
	Width     int
	Height    int
}

// BuildExtractArgs constructs the ffmpeg argument list for sampling frames
// from a video into numbered JPEG files. Kept frames are stretched to exactly
// Width x Height and written as frame_0.jpg, frame_1.jpg, ... in OutputDir.
func BuildExtractArgs(spec ExtractSpec) ([]string, error) {
	if spec.Input == "" {
		return nil, fmt.Errorf("missing input path")
	}
	if spec.OutputDir == "" {
		return nil, fmt.Errorf("missing output directory")
	}
	if spec.FrameSkip < 1 {
		return nil, fmt.Errorf("frame skip must be >= 1, got %d", spec.FrameSkip)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", spec.Width, spec.Height)
	}

	// The comma inside mod() must be escaped for the filtergraph parser.
	filter := fmt.Sprintf("select=not(mod(n\\,%d)),scale=%d:%d", spec.FrameSkip, spec.Width, spec.Height)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error", // stderr is captured for diagnostics
		"-nostats",
		"-progress", "pipe:1", // machine-readable progress on stdout for the stall watchdog
		"-i", spec.Input,
		"-vf", filter,
		"-fps_mode", "vfr",
		"-start_number", "0",
		"-q:v", "2",
		FramePattern(spec.OutputDir),
	}
	return args, nil
}

// FramePattern returns the printf-style output pattern ffmpeg writes to.
func FramePattern(dir string) string {
	return filepath.Join(dir, "frame_%d.jpg")
}

// FramePath returns the path of the i-th extracted frame.
func FramePath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%d.jpg", i))
}
