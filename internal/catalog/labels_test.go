package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLabels(t *testing.T) {
	labels := DefaultLabels()

	assert.Equal(t, Label{Exercise: "squat", Form: FormGood}, labels["squat1.mp4"])
	assert.Equal(t, Label{Exercise: "squat", Form: FormBad}, labels["squat2.mp4"])
	assert.Equal(t, Label{Exercise: "deadlift", Form: FormGood}, labels["deadlift1.mp4"])
	assert.Equal(t, Label{Exercise: "deadlift", Form: FormBad}, labels["deadlift2.mp4"])
	assert.Equal(t, Label{Exercise: "bench press", Form: FormGood}, labels["benchpress1.mp4"])
	assert.Equal(t, Label{Exercise: "bench press", Form: FormBad}, labels["benchpress2.mp4"])
}

func TestLookupUnknownFallback(t *testing.T) {
	labels := DefaultLabels()

	got := Lookup(labels, "mystery.mp4")
	assert.Equal(t, Label{Exercise: Unknown, Form: Unknown}, got)

	got = Lookup(labels, "squat1.mp4")
	assert.Equal(t, "squat", got.Exercise)
}

func TestLoadLabelsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	content := `
squat1.mp4:
  exercise: squat
  form: bad
lunge1.mp4:
  exercise: lunge
  form: good
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)

	// Overridden entry wins, defaults stay for the rest.
	assert.Equal(t, Label{Exercise: "squat", Form: FormBad}, labels["squat1.mp4"])
	assert.Equal(t, Label{Exercise: "lunge", Form: FormGood}, labels["lunge1.mp4"])
	assert.Equal(t, Label{Exercise: "deadlift", Form: FormGood}, labels["deadlift1.mp4"])
}

func TestLoadLabelsEmptyPath(t *testing.T) {
	labels, err := LoadLabels("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels(), labels)
}

func TestLoadLabelsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels(), labels)
}

func TestLoadLabelsErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.yaml")
		require.NoError(t, os.WriteFile(path, []byte("::not yaml::"), 0o600))
		_, err := LoadLabels(path)
		assert.Error(t, err)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.yaml")
		content := "squat1.mp4:\n  exercise: squat\n  form: good\n  difficulty: hard\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := LoadLabels(path)
		assert.Error(t, err)
	})
}
