package lifecycle_test

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/JaimeStill/dispatch/pkg/lifecycle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReadiness(t *testing.T) {
	lc := lifecycle.New()
	if lc.Ready() {
		t.Fatal("should not be ready before WaitForStartup")
	}

	var started atomic.Int32
	for range 3 {
		lc.OnStartup(func() { started.Add(1) })
	}
	lc.WaitForStartup()

	if got := started.Load(); got != 3 {
		t.Errorf("startup hooks: got %d, want 3", got)
	}
	if !lc.Ready() {
		t.Fatal("should be ready after WaitForStartup")
	}

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if lc.Ready() {
		t.Error("should not be ready once shutdown begins")
	}
}

func TestShutdownReleasesHooks(t *testing.T) {
	lc := lifecycle.New()

	var closed atomic.Bool
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		closed.Store(true)
	})
	lc.WaitForStartup()

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !closed.Load() {
		t.Error("shutdown hook did not run")
	}

	select {
	case <-lc.Context().Done():
	default:
		t.Error("context should be cancelled after shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New()

	release := make(chan struct{})
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-release
	})
	lc.WaitForStartup()

	if err := lc.Shutdown(20 * time.Millisecond); err == nil {
		t.Error("expected timeout error, got nil")
	}

	close(release)
	if err := lc.Shutdown(time.Second); err != nil {
		t.Errorf("second shutdown should drain hooks: %v", err)
	}
}

func TestNotReadyWhenShutdownPrecedesStartup(t *testing.T) {
	lc := lifecycle.New()
	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	lc.WaitForStartup()
	if lc.Ready() {
		t.Error("cancelled coordinator should never report ready")
	}
}
