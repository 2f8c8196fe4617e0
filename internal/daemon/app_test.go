package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/jobs"
	"github.com/formlab/formd/internal/log"
)

type fakeManager struct {
	startErr error

	mu        sync.Mutex
	shutdowns int
}

func (f *fakeManager) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeManager) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func (f *fakeManager) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

type fakeAnalyzer struct {
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakeAnalyzer) Analyze(context.Context) (*jobs.Status, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &jobs.Status{Videos: 1, Reps: 3}, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestNewApp_MissingManager(t *testing.T) {
	_, err := NewApp(log.WithComponent("test"), config.AppConfig{}, nil, &fakeAnalyzer{})
	if !errors.Is(err, ErrMissingManager) {
		t.Errorf("NewApp() error = %v, want %v", err, ErrMissingManager)
	}
}

func TestApp_InitialRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	analyzer := &fakeAnalyzer{}

	cfg := config.AppConfig{}
	cfg.Ingest.InitialRun = true

	app, err := NewApp(log.WithComponent("test"), cfg, mgr, analyzer)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	if !waitFor(func() bool { return analyzer.callCount() == 1 }, 2*time.Second) {
		t.Fatal("initial analysis run did not happen")
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestApp_InitialRunDisabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	analyzer := &fakeAnalyzer{}

	app, err := NewApp(log.WithComponent("test"), config.AppConfig{}, mgr, analyzer)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-errChan:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if got := analyzer.callCount(); got != 0 {
		t.Errorf("Analyze() called %d times, want 0", got)
	}
}

func TestApp_InitialRunFailureIsNotFatal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	analyzer := &fakeAnalyzer{err: errors.New("probe: exit status 1")}

	cfg := config.AppConfig{}
	cfg.Ingest.InitialRun = true

	app, err := NewApp(log.WithComponent("test"), cfg, mgr, analyzer)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	if !waitFor(func() bool { return analyzer.callCount() == 1 }, 2*time.Second) {
		t.Fatal("initial analysis run did not happen")
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Run() error = %v, want nil despite failed initial run", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestApp_WatchTriggersRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	analyzer := &fakeAnalyzer{}

	cfg := config.AppConfig{}
	cfg.Ingest.Watch = true
	cfg.Ingest.RawDir = t.TempDir()
	cfg.Ingest.SettleDelay = 50 * time.Millisecond

	app, err := NewApp(log.WithComponent("test"), cfg, mgr, analyzer)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	// Give the watcher a moment to register before dropping the file in.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(cfg.Ingest.RawDir, "squat1.mp4")
	if err := os.WriteFile(path, []byte("fake video payload"), 0o600); err != nil {
		t.Fatalf("write video: %v", err)
	}

	if !waitFor(func() bool { return analyzer.callCount() >= 1 }, 5*time.Second) {
		t.Fatal("watch event did not trigger an analysis run")
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestApp_ManagerFailureShutsDown(t *testing.T) {
	mgr := &fakeManager{startErr: errors.New("bind: address already in use")}

	app, err := NewApp(log.WithComponent("test"), config.AppConfig{}, mgr, &fakeAnalyzer{})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	err = app.Run(context.Background())
	if err == nil || !contains(err.Error(), "address already in use") {
		t.Errorf("Run() error = %v, want bind failure", err)
	}
	if got := mgr.shutdownCount(); got != 1 {
		t.Errorf("Shutdown() called %d times, want 1 after start failure", got)
	}
}
