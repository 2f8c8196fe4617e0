package pose

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/formlab/formd/internal/metrics"
)

// ErrModelNotLoaded is returned when estimation is attempted before LoadModel.
var ErrModelNotLoaded = errors.New("pose estimator model not loaded")

// ErrEmptyFrame is returned for frames without data.
var ErrEmptyFrame = errors.New("empty frame data")

// Estimator produces body landmarks from encoded video frames.
type Estimator interface {
	// LoadModel prepares the estimator. It must be called before estimation.
	LoadModel(ctx context.Context) error
	// EstimateFrame returns the pose for a single JPEG-encoded frame.
	EstimateFrame(ctx context.Context, frame []byte) (Pose, error)
	// EstimateBatch returns poses for the given frames, preserving order.
	// It fails on the first frame that cannot be estimated.
	EstimateBatch(ctx context.Context, frames [][]byte) ([]Pose, error)
}

// estimateBatch runs EstimateFrame over frames in order.
func estimateBatch(ctx context.Context, e Estimator, frames [][]byte) ([]Pose, error) {
	poses := make([]Pose, 0, len(frames))
	for i, frame := range frames {
		p, err := e.EstimateFrame(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		poses = append(poses, p)
	}
	return poses, nil
}

// StubEstimator returns a fixed upright pose for every frame. It stands in
// for a real model during development and in tests.
type StubEstimator struct {
	loaded atomic.Bool
}

// NewStubEstimator creates an unloaded stub estimator.
func NewStubEstimator() *StubEstimator {
	return &StubEstimator{}
}

// LoadModel marks the stub as ready.
func (s *StubEstimator) LoadModel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.loaded.Store(true)
	return nil
}

// EstimateFrame returns the fixed stub pose.
func (s *StubEstimator) EstimateFrame(ctx context.Context, frame []byte) (Pose, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.loaded.Load() {
		return nil, ErrModelNotLoaded
	}
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	metrics.IncPoseEstimated("stub")
	return Pose{
		JointShoulder: {X: 0.5, Y: 0.5, Z: 0.5},
		JointHip:      {X: 0.5, Y: 0.6, Z: 0.5},
		JointKnee:     {X: 0.5, Y: 0.7, Z: 0.5},
		JointAnkle:    {X: 0.5, Y: 0.8, Z: 0.5},
	}, nil
}

// EstimateBatch estimates each frame in order.
func (s *StubEstimator) EstimateBatch(ctx context.Context, frames [][]byte) ([]Pose, error) {
	return estimateBatch(ctx, s, frames)
}
