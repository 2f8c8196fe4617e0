// Package config provides configuration management for formd.
package config

import "time"

// FileConfig represents the YAML configuration structure.
// Pointers are used for optional scalars to distinguish "not set" from
// "explicitly set to zero/false".
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Ingest    IngestFile    `yaml:"ingest,omitempty"`
	Extract   ExtractFile   `yaml:"extract,omitempty"`
	FFmpeg    FFmpegFile    `yaml:"ffmpeg,omitempty"`
	Pose      PoseFile      `yaml:"pose,omitempty"`
	Cache     CacheFile     `yaml:"cache,omitempty"`
	Analysis  AnalysisFile  `yaml:"analysis,omitempty"`
	Catalog   CatalogFile   `yaml:"catalog,omitempty"`
	Store     StoreFile     `yaml:"store,omitempty"`
	API       APIFile       `yaml:"api,omitempty"`
	Metrics   MetricsFile   `yaml:"metrics,omitempty"`
	Mirror    MirrorFile    `yaml:"mirror,omitempty"`
	Telemetry TelemetryFile `yaml:"telemetry,omitempty"`
}

// IngestFile holds raw video discovery settings.
type IngestFile struct {
	RawDir      string `yaml:"rawDir,omitempty"`
	Watch       *bool  `yaml:"watch,omitempty"`
	SettleDelay string `yaml:"settleDelay,omitempty"` // e.g. "2s"
	InitialRun  *bool  `yaml:"initialRun,omitempty"`
}

// ExtractFile holds frame extraction settings.
type ExtractFile struct {
	FrameSkip    *int   `yaml:"frameSkip,omitempty"`
	Width        *int   `yaml:"width,omitempty"`
	Height       *int   `yaml:"height,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`      // e.g. "5m"
	StallTimeout string `yaml:"stallTimeout,omitempty"` // e.g. "30s", "0" disables
}

// FFmpegFile holds binary resolution settings.
type FFmpegFile struct {
	Bin        string `yaml:"bin,omitempty"`
	FFprobeBin string `yaml:"ffprobeBin,omitempty"`
}

// PoseFile holds pose estimator settings.
type PoseFile struct {
	Mode      string   `yaml:"mode,omitempty"` // "stub" or "remote"
	URL       string   `yaml:"url,omitempty"`
	Timeout   string   `yaml:"timeout,omitempty"`
	RateLimit *float64 `yaml:"rateLimit,omitempty"` // requests/sec
	RateBurst *int     `yaml:"rateBurst,omitempty"`
}

// CacheFile holds pose cache settings.
type CacheFile struct {
	Backend   string `yaml:"backend,omitempty"` // "memory" or "redis"
	RedisAddr string `yaml:"redisAddr,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
}

// AnalysisFile holds form analysis settings.
type AnalysisFile struct {
	Workers         *int     `yaml:"workers,omitempty"`
	OverlayEvery    *int     `yaml:"overlayEvery,omitempty"`
	SquatDepthDeg   *float64 `yaml:"squatDepthDeg,omitempty"`
	BackStraightDeg *float64 `yaml:"backStraightDeg,omitempty"`
	RepDownDeg      *float64 `yaml:"repDownDeg,omitempty"`
	RepUpDeg        *float64 `yaml:"repUpDeg,omitempty"`
}

// CatalogFile holds catalog settings.
type CatalogFile struct {
	LabelsFile string `yaml:"labelsFile,omitempty"`
}

// StoreFile holds run store settings.
type StoreFile struct {
	Backend string `yaml:"backend,omitempty"` // "badger" or "memory"
}

// APIFile holds API server settings.
type APIFile struct {
	ListenAddr     string   `yaml:"listenAddr,omitempty"`
	Token          string   `yaml:"token,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	RateLimit      *int     `yaml:"rateLimit,omitempty"` // requests per window
	RateWindow     string   `yaml:"rateWindow,omitempty"`
}

// MetricsFile holds metrics server settings.
type MetricsFile struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

// MirrorFile holds artifact mirror (S3-compatible object storage) settings.
type MirrorFile struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	UseSSL    *bool  `yaml:"useSSL,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// TelemetryFile holds OTLP trace export settings.
type TelemetryFile struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	Protocol    string   `yaml:"protocol,omitempty"` // "grpc" or "http"
	Insecure    *bool    `yaml:"insecure,omitempty"`
	SampleRatio *float64 `yaml:"sampleRatio,omitempty"`
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version  string
	DataDir  string
	LogLevel string

	Ingest    IngestSettings
	Extract   ExtractSettings
	FFmpeg    FFmpegSettings
	Pose      PoseSettings
	Cache     CacheSettings
	Analysis  AnalysisSettings
	Catalog   CatalogSettings
	Store     StoreSettings
	API       APISettings
	Metrics   MetricsSettings
	Mirror    MirrorSettings
	Telemetry TelemetrySettings
}

// IngestSettings controls raw video discovery.
type IngestSettings struct {
	RawDir      string
	Watch       bool
	SettleDelay time.Duration
	InitialRun  bool
}

// ExtractSettings controls ffmpeg frame extraction.
type ExtractSettings struct {
	FrameSkip    int
	Width        int
	Height       int
	Timeout      time.Duration
	StallTimeout time.Duration // no-progress window before a stalled ffmpeg is killed, 0 disables
}

// FFmpegSettings holds resolved binary paths.
type FFmpegSettings struct {
	Bin        string
	FFprobeBin string
}

// PoseSettings controls the pose estimator.
type PoseSettings struct {
	Mode      string
	URL       string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// CacheSettings controls the pose cache.
type CacheSettings struct {
	Backend   string
	RedisAddr string
	TTL       time.Duration
}

// AnalysisSettings controls form assessment.
type AnalysisSettings struct {
	Workers         int
	OverlayEvery    int // render every Nth extracted frame, 0 disables overlays
	SquatDepthDeg   float64
	BackStraightDeg float64
	RepDownDeg      float64
	RepUpDeg        float64
}

// CatalogSettings controls the video catalog.
type CatalogSettings struct {
	LabelsFile string
}

// StoreSettings controls the run store.
type StoreSettings struct {
	Backend string
}

// APISettings controls the HTTP API server.
type APISettings struct {
	ListenAddr     string
	Token          string
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
}

// MetricsSettings controls the metrics listener.
type MetricsSettings struct {
	Enabled    bool
	ListenAddr string
}

// MirrorSettings controls the S3-compatible artifact mirror.
type MirrorSettings struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// TelemetrySettings controls OTLP trace export.
type TelemetrySettings struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	Insecure    bool
	SampleRatio float64
}
