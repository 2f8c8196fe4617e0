package pose

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/formlab/formd/internal/resilience"
)

func newPoseServer(t *testing.T, modelStatus int, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(modelStatus)
	})
	if handler != nil {
		mux.HandleFunc("POST /v1/pose", handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteEstimatorLoadModel(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newPoseServer(t, http.StatusOK, nil)
		r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
		if err := r.LoadModel(context.Background()); err != nil {
			t.Fatalf("LoadModel failed: %v", err)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newPoseServer(t, http.StatusServiceUnavailable, nil)
		r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
		err := r.LoadModel(context.Background())
		if err == nil {
			t.Fatal("expected error for unavailable model")
		}
		if !strings.Contains(err.Error(), "status 503") {
			t.Errorf("error = %v, want status 503", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		r := NewRemoteEstimator(RemoteConfig{URL: "http://127.0.0.1:1"})
		if err := r.LoadModel(context.Background()); err == nil {
			t.Fatal("expected error for unreachable service")
		}
	})
}

func TestRemoteEstimatorEstimateFrame(t *testing.T) {
	landmarks := map[string]Point{
		LandmarkLeftShoulder: {X: 0.4, Y: 0.3, Z: 0.1},
		LandmarkLeftHip:      {X: 0.4, Y: 0.5, Z: 0.1},
	}

	srv := newPoseServer(t, http.StatusOK, func(w http.ResponseWriter, req *http.Request) {
		var in inferRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if string(in.Image) != "frame-bytes" {
			t.Errorf("image payload = %q", in.Image)
		}
		json.NewEncoder(w).Encode(inferResponse{Landmarks: landmarks})
	})

	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	p, err := r.EstimateFrame(context.Background(), []byte("frame-bytes"))
	if err != nil {
		t.Fatalf("EstimateFrame failed: %v", err)
	}
	if got := p[LandmarkLeftShoulder]; got != landmarks[LandmarkLeftShoulder] {
		t.Errorf("left_shoulder = %+v, want %+v", got, landmarks[LandmarkLeftShoulder])
	}
}

func TestRemoteEstimatorNotLoaded(t *testing.T) {
	srv := newPoseServer(t, http.StatusOK, nil)
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})

	_, err := r.EstimateFrame(context.Background(), []byte("frame"))
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestRemoteEstimatorServerError(t *testing.T) {
	srv := newPoseServer(t, http.StatusOK, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gpu exploded", http.StatusInternalServerError)
	})
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := r.EstimateFrame(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "returned 500") || !strings.Contains(err.Error(), "gpu exploded") {
		t.Errorf("error should carry status and body snippet, got %v", err)
	}
}

func TestRemoteEstimatorEmptyLandmarks(t *testing.T) {
	srv := newPoseServer(t, http.StatusOK, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(inferResponse{Landmarks: map[string]Point{}})
	})
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := r.EstimateFrame(context.Background(), []byte("frame"))
	if err == nil || !strings.Contains(err.Error(), "no landmarks") {
		t.Fatalf("expected no-landmarks error, got %v", err)
	}
}

func TestRemoteEstimatorTrimsTrailingSlash(t *testing.T) {
	srv := newPoseServer(t, http.StatusOK, nil)
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL + "/"})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatalf("LoadModel with trailing slash failed: %v", err)
	}
}

func TestRemoteEstimatorBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := newPoseServer(t, http.StatusOK, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	})
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < breakerThreshold; i++ {
		if _, err := r.EstimateFrame(context.Background(), []byte("frame")); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := hits.Load(); got != breakerThreshold {
		t.Fatalf("server hits = %d, want %d", got, breakerThreshold)
	}

	_, err := r.EstimateFrame(context.Background(), []byte("frame"))
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after %d failures, got %v", breakerThreshold, err)
	}
	if got := hits.Load(); got != breakerThreshold {
		t.Fatalf("open breaker still reached the server: hits = %d", got)
	}
}

func TestRemoteEstimatorMissingPersonDoesNotTrip(t *testing.T) {
	srv := newPoseServer(t, http.StatusOK, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(inferResponse{Landmarks: nil})
	})
	r := NewRemoteEstimator(RemoteConfig{URL: srv.URL})
	if err := r.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Frames with nobody in them are not a service failure and must
	// never open the breaker.
	for i := 0; i < breakerThreshold+2; i++ {
		_, err := r.EstimateFrame(context.Background(), []byte("frame"))
		if err == nil || !strings.Contains(err.Error(), "no landmarks") {
			t.Fatalf("call %d: expected no-landmarks error, got %v", i, err)
		}
	}
}
