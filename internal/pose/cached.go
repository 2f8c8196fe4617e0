package pose

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/formlab/formd/internal/cache"
	"github.com/formlab/formd/internal/metrics"
)

// CachedEstimator wraps another estimator with a content-addressed cache so
// unchanged frames are estimated once across runs.
type CachedEstimator struct {
	inner Estimator
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEstimator wraps inner with the given cache.
func NewCachedEstimator(inner Estimator, c cache.Cache, ttl time.Duration) *CachedEstimator {
	return &CachedEstimator{
		inner: inner,
		cache: c,
		ttl:   ttl,
	}
}

// LoadModel delegates to the wrapped estimator.
func (c *CachedEstimator) LoadModel(ctx context.Context) error {
	return c.inner.LoadModel(ctx)
}

func cacheKey(frame []byte) string {
	sum := sha256.Sum256(frame)
	return "pose:" + hex.EncodeToString(sum[:])
}

// EstimateFrame returns a cached pose when the frame content is known,
// otherwise estimates and caches the result.
func (c *CachedEstimator) EstimateFrame(ctx context.Context, frame []byte) (Pose, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	key := cacheKey(frame)
	if raw, ok := c.cache.Get(key); ok {
		var p Pose
		if err := json.Unmarshal(raw, &p); err == nil {
			metrics.IncPoseEstimated("cache")
			return p, nil
		}
		// Corrupt entry, drop and re-estimate.
		c.cache.Delete(key)
	}

	p, err := c.inner.EstimateFrame(ctx, frame)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(p); err == nil {
		c.cache.Set(key, raw, c.ttl)
	}
	return p, nil
}

// EstimateBatch estimates each frame in order.
func (c *CachedEstimator) EstimateBatch(ctx context.Context, frames [][]byte) ([]Pose, error) {
	return estimateBatch(ctx, c, frames)
}
