package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldVideoID   = "video_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldFrames     = "frames"

	// Analysis fields
	FieldExercise = "exercise"
	FieldVerdict  = "verdict"
	FieldReps     = "reps"

	// Path fields
	FieldPath      = "path"
	FieldFinalPath = "final_path"
)
