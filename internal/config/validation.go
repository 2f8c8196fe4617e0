package config

import (
	"strings"

	"github.com/formlab/formd/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, false)

	v.Positive("Extract.FrameSkip", cfg.Extract.FrameSkip)
	v.Range("Extract.Width", cfg.Extract.Width, 16, 4096)
	v.Range("Extract.Height", cfg.Extract.Height, 16, 4096)
	v.NotEmpty("FFmpeg.Bin", cfg.FFmpeg.Bin)

	v.OneOf("Pose.Mode", cfg.Pose.Mode, []string{"stub", "remote"})
	if cfg.Pose.Mode == "remote" {
		v.URL("Pose.URL", cfg.Pose.URL, []string{"http", "https"})
		v.NonNegative("Pose.RateBurst", cfg.Pose.RateBurst)
		if cfg.Pose.RateLimit <= 0 {
			v.AddError("Pose.RateLimit", "rate limit must be positive for remote mode", cfg.Pose.RateLimit)
		}
	}

	v.OneOf("Cache.Backend", cfg.Cache.Backend, []string{"memory", "redis"})
	if cfg.Cache.Backend == "redis" {
		v.NotEmpty("Cache.RedisAddr", cfg.Cache.RedisAddr)
	}

	v.Range("Analysis.Workers", cfg.Analysis.Workers, 1, 64)
	v.NonNegative("Analysis.OverlayEvery", cfg.Analysis.OverlayEvery)
	v.FloatRange("Analysis.SquatDepthDeg", cfg.Analysis.SquatDepthDeg, 1, 179)
	v.FloatRange("Analysis.BackStraightDeg", cfg.Analysis.BackStraightDeg, 1, 179)
	v.FloatRange("Analysis.RepDownDeg", cfg.Analysis.RepDownDeg, 1, 179)
	v.FloatRange("Analysis.RepUpDeg", cfg.Analysis.RepUpDeg, 1, 179)
	// Hysteresis requires a gap between the two rep thresholds.
	if cfg.Analysis.RepDownDeg >= cfg.Analysis.RepUpDeg {
		v.AddError("Analysis.RepDownDeg", "rep down threshold must be below rep up threshold", cfg.Analysis.RepDownDeg)
	}

	v.OneOf("Store.Backend", cfg.Store.Backend, []string{"badger", "memory"})

	v.NotEmpty("API.ListenAddr", cfg.API.ListenAddr)
	v.NonNegative("API.RateLimit", cfg.API.RateLimit)

	if cfg.Metrics.Enabled {
		v.NotEmpty("Metrics.ListenAddr", cfg.Metrics.ListenAddr)
	}

	if cfg.Mirror.Enabled {
		v.NotEmpty("Mirror.Endpoint", cfg.Mirror.Endpoint)
		v.NotEmpty("Mirror.Bucket", cfg.Mirror.Bucket)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Protocol", strings.ToLower(cfg.Telemetry.Protocol), []string{"grpc", "http"})
		v.FloatRange("Telemetry.SampleRatio", cfg.Telemetry.SampleRatio, 0, 1)
	}

	return v.Err()
}
