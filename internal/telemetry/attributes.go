package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across the pipeline.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	VideoIDKey       = "video.id"
	VideoExerciseKey = "video.exercise"
	VideoVerdictKey  = "video.verdict"

	ExtractFramesKey = "extract.frames"
	ExtractSkipKey   = "extract.frame_skip"

	PoseModeKey     = "pose.mode"
	PoseCacheHitKey = "pose.cache_hit"

	RunIDKey         = "run.id"
	RunStatusKey     = "run.status"
	RunVideosKey     = "run.videos"
	RunDurationMSKey = "run.duration_ms"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// VideoAttributes creates per-video span attributes.
func VideoAttributes(id, exercise string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if id != "" {
		attrs = append(attrs, attribute.String(VideoIDKey, id))
	}
	if exercise != "" {
		attrs = append(attrs, attribute.String(VideoExerciseKey, exercise))
	}
	return attrs
}

// ExtractAttributes creates frame extraction span attributes.
func ExtractAttributes(frames, frameSkip int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ExtractFramesKey, frames),
		attribute.Int(ExtractSkipKey, frameSkip),
	}
}

// RunAttributes creates pipeline run span attributes.
func RunAttributes(runID, status string, videos int, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.String(RunStatusKey, status),
		attribute.Int(RunVideosKey, videos),
		attribute.Int64(RunDurationMSKey, durationMS),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
