package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/formlab/formd/internal/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envSlice(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseStringSlice(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// Developer convenience: pick up a local .env file. Existing process
	// environment always wins over .env entries.
	if err := godotenv.Load(); err == nil {
		logger := log.WithComponent("config")
		logger.Debug().Msg("loaded .env file")
	}

	cfg := AppConfig{}

	// 1. Set defaults
	l.setDefaults(&cfg)

	// 2. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	// 3. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)

	// Resolve ffprobe path (ENV/file -> derive from ffmpeg bin -> PATH fallback).
	cfg.FFmpeg.FFprobeBin = ResolveFFprobeBin(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.Bin)
	if cfg.FFmpeg.FFprobeBin == "" {
		cfg.FFmpeg.FFprobeBin = "ffprobe"
	}

	// SAFETY: Ensure DataDir is absolute to prevent path traversal/platform errors
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	// RawDir defaults to <dataDir>/raw once DataDir is final.
	if strings.TrimSpace(cfg.Ingest.RawDir) == "" {
		cfg.Ingest.RawDir = filepath.Join(cfg.DataDir, "raw")
	} else if abs, err := filepath.Abs(cfg.Ingest.RawDir); err == nil {
		cfg.Ingest.RawDir = abs
	}

	// 4. Version from binary
	cfg.Version = l.version

	// 5. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	// Parse YAML with strict mode (unknown fields cause errors)
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.DataDir = "./data"
	cfg.LogLevel = "info"

	cfg.Ingest = IngestSettings{
		RawDir:      "",
		Watch:       false,
		SettleDelay: 2 * time.Second,
		InitialRun:  false,
	}
	cfg.Extract = ExtractSettings{
		FrameSkip:    10,
		Width:        224,
		Height:       224,
		Timeout:      5 * time.Minute,
		StallTimeout: 30 * time.Second,
	}
	cfg.FFmpeg = FFmpegSettings{
		Bin: "ffmpeg",
	}
	cfg.Pose = PoseSettings{
		Mode:      "stub",
		Timeout:   10 * time.Second,
		RateLimit: 10,
		RateBurst: 5,
	}
	cfg.Cache = CacheSettings{
		Backend: "memory",
		TTL:     time.Hour,
	}
	cfg.Analysis = AnalysisSettings{
		Workers:         2,
		OverlayEvery:    1,
		SquatDepthDeg:   100,
		BackStraightDeg: 150,
		RepDownDeg:      120,
		RepUpDeg:        160,
	}
	cfg.Store = StoreSettings{
		Backend: "badger",
	}
	cfg.API = APISettings{
		ListenAddr: ":8080",
		RateLimit:  100,
		RateWindow: time.Minute,
	}
	cfg.Metrics = MetricsSettings{
		Enabled:    true,
		ListenAddr: ":9090",
	}
	cfg.Telemetry = TelemetrySettings{
		Protocol:    "grpc",
		SampleRatio: 1.0,
	}
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}

	if file.Ingest.RawDir != "" {
		cfg.Ingest.RawDir = file.Ingest.RawDir
	}
	if file.Ingest.Watch != nil {
		cfg.Ingest.Watch = *file.Ingest.Watch
	}
	if d, ok := parseFileDuration(file.Ingest.SettleDelay); ok {
		cfg.Ingest.SettleDelay = d
	}
	if file.Ingest.InitialRun != nil {
		cfg.Ingest.InitialRun = *file.Ingest.InitialRun
	}

	if file.Extract.FrameSkip != nil {
		cfg.Extract.FrameSkip = *file.Extract.FrameSkip
	}
	if file.Extract.Width != nil {
		cfg.Extract.Width = *file.Extract.Width
	}
	if file.Extract.Height != nil {
		cfg.Extract.Height = *file.Extract.Height
	}
	if d, ok := parseFileDuration(file.Extract.Timeout); ok {
		cfg.Extract.Timeout = d
	}
	if d, ok := parseFileDuration(file.Extract.StallTimeout); ok {
		cfg.Extract.StallTimeout = d
	}

	if file.FFmpeg.Bin != "" {
		cfg.FFmpeg.Bin = file.FFmpeg.Bin
	}
	if file.FFmpeg.FFprobeBin != "" {
		cfg.FFmpeg.FFprobeBin = file.FFmpeg.FFprobeBin
	}

	if file.Pose.Mode != "" {
		cfg.Pose.Mode = file.Pose.Mode
	}
	if file.Pose.URL != "" {
		cfg.Pose.URL = file.Pose.URL
	}
	if d, ok := parseFileDuration(file.Pose.Timeout); ok {
		cfg.Pose.Timeout = d
	}
	if file.Pose.RateLimit != nil {
		cfg.Pose.RateLimit = *file.Pose.RateLimit
	}
	if file.Pose.RateBurst != nil {
		cfg.Pose.RateBurst = *file.Pose.RateBurst
	}

	if file.Cache.Backend != "" {
		cfg.Cache.Backend = file.Cache.Backend
	}
	if file.Cache.RedisAddr != "" {
		cfg.Cache.RedisAddr = file.Cache.RedisAddr
	}
	if d, ok := parseFileDuration(file.Cache.TTL); ok {
		cfg.Cache.TTL = d
	}

	if file.Analysis.Workers != nil {
		cfg.Analysis.Workers = *file.Analysis.Workers
	}
	if file.Analysis.OverlayEvery != nil {
		cfg.Analysis.OverlayEvery = *file.Analysis.OverlayEvery
	}
	if file.Analysis.SquatDepthDeg != nil {
		cfg.Analysis.SquatDepthDeg = *file.Analysis.SquatDepthDeg
	}
	if file.Analysis.BackStraightDeg != nil {
		cfg.Analysis.BackStraightDeg = *file.Analysis.BackStraightDeg
	}
	if file.Analysis.RepDownDeg != nil {
		cfg.Analysis.RepDownDeg = *file.Analysis.RepDownDeg
	}
	if file.Analysis.RepUpDeg != nil {
		cfg.Analysis.RepUpDeg = *file.Analysis.RepUpDeg
	}

	if file.Catalog.LabelsFile != "" {
		cfg.Catalog.LabelsFile = file.Catalog.LabelsFile
	}

	if file.Store.Backend != "" {
		cfg.Store.Backend = file.Store.Backend
	}

	if file.API.ListenAddr != "" {
		cfg.API.ListenAddr = file.API.ListenAddr
	}
	if file.API.Token != "" {
		cfg.API.Token = file.API.Token
	}
	if len(file.API.AllowedOrigins) > 0 {
		cfg.API.AllowedOrigins = file.API.AllowedOrigins
	}
	if file.API.RateLimit != nil {
		cfg.API.RateLimit = *file.API.RateLimit
	}
	if d, ok := parseFileDuration(file.API.RateWindow); ok {
		cfg.API.RateWindow = d
	}

	if file.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *file.Metrics.Enabled
	}
	if file.Metrics.ListenAddr != "" {
		cfg.Metrics.ListenAddr = file.Metrics.ListenAddr
	}

	if file.Mirror.Enabled != nil {
		cfg.Mirror.Enabled = *file.Mirror.Enabled
	}
	if file.Mirror.Endpoint != "" {
		cfg.Mirror.Endpoint = file.Mirror.Endpoint
	}
	if file.Mirror.AccessKey != "" {
		cfg.Mirror.AccessKey = file.Mirror.AccessKey
	}
	if file.Mirror.SecretKey != "" {
		cfg.Mirror.SecretKey = file.Mirror.SecretKey
	}
	if file.Mirror.Bucket != "" {
		cfg.Mirror.Bucket = file.Mirror.Bucket
	}
	if file.Mirror.UseSSL != nil {
		cfg.Mirror.UseSSL = *file.Mirror.UseSSL
	}
	if file.Mirror.Prefix != "" {
		cfg.Mirror.Prefix = file.Mirror.Prefix
	}

	if file.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *file.Telemetry.Enabled
	}
	if file.Telemetry.Endpoint != "" {
		cfg.Telemetry.Endpoint = file.Telemetry.Endpoint
	}
	if file.Telemetry.Protocol != "" {
		cfg.Telemetry.Protocol = file.Telemetry.Protocol
	}
	if file.Telemetry.Insecure != nil {
		cfg.Telemetry.Insecure = *file.Telemetry.Insecure
	}
	if file.Telemetry.SampleRatio != nil {
		cfg.Telemetry.SampleRatio = *file.Telemetry.SampleRatio
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("FORMD_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("FORMD_LOG_LEVEL", cfg.LogLevel)

	cfg.Ingest.RawDir = l.envString("FORMD_RAW_DIR", cfg.Ingest.RawDir)
	cfg.Ingest.Watch = l.envBool("FORMD_WATCH", cfg.Ingest.Watch)
	cfg.Ingest.SettleDelay = l.envDuration("FORMD_WATCH_SETTLE", cfg.Ingest.SettleDelay)
	cfg.Ingest.InitialRun = l.envBool("FORMD_INITIAL_RUN", cfg.Ingest.InitialRun)

	cfg.Extract.FrameSkip = l.envInt("FORMD_FRAME_SKIP", cfg.Extract.FrameSkip)
	cfg.Extract.Width = l.envInt("FORMD_FRAME_WIDTH", cfg.Extract.Width)
	cfg.Extract.Height = l.envInt("FORMD_FRAME_HEIGHT", cfg.Extract.Height)
	cfg.Extract.Timeout = l.envDuration("FORMD_EXTRACT_TIMEOUT", cfg.Extract.Timeout)
	cfg.Extract.StallTimeout = l.envDuration("FORMD_EXTRACT_STALL", cfg.Extract.StallTimeout)

	cfg.FFmpeg.Bin = l.envString("FORMD_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = l.envString("FORMD_FFPROBE_BIN", cfg.FFmpeg.FFprobeBin)

	cfg.Pose.Mode = l.envString("FORMD_POSE_MODE", cfg.Pose.Mode)
	cfg.Pose.URL = l.envString("FORMD_POSE_URL", cfg.Pose.URL)
	cfg.Pose.Timeout = l.envDuration("FORMD_POSE_TIMEOUT", cfg.Pose.Timeout)
	cfg.Pose.RateLimit = l.envFloat("FORMD_POSE_RATE_LIMIT", cfg.Pose.RateLimit)
	cfg.Pose.RateBurst = l.envInt("FORMD_POSE_RATE_BURST", cfg.Pose.RateBurst)

	cfg.Cache.Backend = l.envString("FORMD_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = l.envString("FORMD_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.TTL = l.envDuration("FORMD_CACHE_TTL", cfg.Cache.TTL)

	cfg.Analysis.Workers = l.envInt("FORMD_WORKERS", cfg.Analysis.Workers)
	cfg.Analysis.OverlayEvery = l.envInt("FORMD_OVERLAY_EVERY", cfg.Analysis.OverlayEvery)
	cfg.Analysis.SquatDepthDeg = l.envFloat("FORMD_SQUAT_DEPTH_DEG", cfg.Analysis.SquatDepthDeg)
	cfg.Analysis.BackStraightDeg = l.envFloat("FORMD_BACK_STRAIGHT_DEG", cfg.Analysis.BackStraightDeg)
	cfg.Analysis.RepDownDeg = l.envFloat("FORMD_REP_DOWN_DEG", cfg.Analysis.RepDownDeg)
	cfg.Analysis.RepUpDeg = l.envFloat("FORMD_REP_UP_DEG", cfg.Analysis.RepUpDeg)

	cfg.Catalog.LabelsFile = l.envString("FORMD_LABELS_FILE", cfg.Catalog.LabelsFile)

	cfg.Store.Backend = l.envString("FORMD_STORE_BACKEND", cfg.Store.Backend)

	cfg.API.ListenAddr = l.envString("FORMD_LISTEN", cfg.API.ListenAddr)
	cfg.API.Token = l.envString("FORMD_API_TOKEN", cfg.API.Token)
	cfg.API.AllowedOrigins = l.envSlice("FORMD_ALLOWED_ORIGINS", cfg.API.AllowedOrigins)
	cfg.API.RateLimit = l.envInt("FORMD_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateWindow = l.envDuration("FORMD_RATE_WINDOW", cfg.API.RateWindow)

	cfg.Metrics.Enabled = l.envBool("FORMD_METRICS", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("FORMD_METRICS_LISTEN", cfg.Metrics.ListenAddr)

	cfg.Mirror.Enabled = l.envBool("FORMD_MIRROR", cfg.Mirror.Enabled)
	cfg.Mirror.Endpoint = l.envString("FORMD_MIRROR_ENDPOINT", cfg.Mirror.Endpoint)
	cfg.Mirror.AccessKey = l.envString("FORMD_MIRROR_ACCESS_KEY", cfg.Mirror.AccessKey)
	cfg.Mirror.SecretKey = l.envString("FORMD_MIRROR_SECRET_KEY", cfg.Mirror.SecretKey)
	cfg.Mirror.Bucket = l.envString("FORMD_MIRROR_BUCKET", cfg.Mirror.Bucket)
	cfg.Mirror.UseSSL = l.envBool("FORMD_MIRROR_USE_SSL", cfg.Mirror.UseSSL)
	cfg.Mirror.Prefix = l.envString("FORMD_MIRROR_PREFIX", cfg.Mirror.Prefix)

	cfg.Telemetry.Enabled = l.envBool("FORMD_OTEL", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString("FORMD_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = l.envString("FORMD_OTEL_PROTOCOL", cfg.Telemetry.Protocol)
	cfg.Telemetry.Insecure = l.envBool("FORMD_OTEL_INSECURE", cfg.Telemetry.Insecure)
	cfg.Telemetry.SampleRatio = l.envFloat("FORMD_OTEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)
}

func parseFileDuration(raw string) (time.Duration, bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("value", raw).
			Msg("invalid duration in config file, ignoring")
		return 0, false
	}
	return d, true
}
