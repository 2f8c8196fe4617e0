package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/metrics"
	"github.com/formlab/formd/internal/resilience"
)

// Breaker settings for the pose service. Five straight failures usually
// mean the service is down rather than one frame being bad.
const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// RemoteConfig holds connection settings for an external pose-inference service.
type RemoteConfig struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64 // requests per second, <= 0 disables limiting
	RateBurst int
}

// RemoteEstimator delegates inference to an external HTTP service.
//
// Wire contract:
//
//	GET  {url}/v1/model           -> 200 when the model is loaded
//	POST {url}/v1/pose            <- {"image": "<base64 jpeg>"}
//	                              -> {"landmarks": {"LEFT_SHOULDER": {"x":..,"y":..,"z":..}, ...}}
type RemoteEstimator struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  zerolog.Logger
	loaded  atomic.Bool
}

// NewRemoteEstimator creates a client for the given service.
func NewRemoteEstimator(cfg RemoteConfig) *RemoteEstimator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &RemoteEstimator{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewBreaker("pose", breakerThreshold, breakerCooldown),
		logger:  log.WithComponent("pose.remote"),
	}
}

// LoadModel verifies the service is reachable and its model is ready.
func (r *RemoteEstimator) LoadModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/model", nil)
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("pose service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service model not ready: status %d", resp.StatusCode)
	}

	r.loaded.Store(true)
	r.logger.Info().
		Str("event", "pose.model_ready").
		Str("url", r.baseURL).
		Msg("remote pose model ready")
	return nil
}

type inferRequest struct {
	Image []byte `json:"image"`
}

type inferResponse struct {
	Landmarks map[string]Point `json:"landmarks"`
}

// EstimateFrame sends one frame to the service.
func (r *RemoteEstimator) EstimateFrame(ctx context.Context, frame []byte) (Pose, error) {
	if !r.loaded.Load() {
		return nil, ErrModelNotLoaded
	}
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pose rate limit: %w", err)
	}

	// Transport and protocol errors count against the breaker. A frame
	// with no detectable person does not; that is checked after the
	// call itself succeeds.
	var p Pose
	err := r.breaker.Execute(func() error {
		var inner error
		p, inner = r.doEstimate(ctx, frame)
		return inner
	})
	if err != nil {
		metrics.IncPoseFailure()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("pose service unavailable: %w", err)
		}
		return nil, err
	}
	if len(p) == 0 {
		metrics.IncPoseFailure()
		return nil, fmt.Errorf("pose service returned no landmarks")
	}

	metrics.IncPoseEstimated("remote")
	return p, nil
}

func (r *RemoteEstimator) doEstimate(ctx context.Context, frame []byte) (Pose, error) {
	body, err := json.Marshal(inferRequest{Image: frame})
	if err != nil {
		return nil, fmt.Errorf("encode pose request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/pose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build pose request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pose service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pose response: %w", err)
	}
	return Pose(out.Landmarks), nil
}

// EstimateBatch estimates each frame in order.
func (r *RemoteEstimator) EstimateBatch(ctx context.Context, frames [][]byte) ([]Pose, error) {
	return estimateBatch(ctx, r, frames)
}
