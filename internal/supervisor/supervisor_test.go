package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Test doubles
// =============================================================================

type flakyService struct {
	fails  int32
	starts atomic.Int32
	ready  chan struct{}
}

func (s *flakyService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.fails {
		return errors.New("simulated failure")
	}
	close(s.ready)
	<-ctx.Done()
	return ctx.Err()
}

func (s *flakyService) String() string { return "flaky" }

type mockHTTPServer struct {
	listenErr error
	shutdowns atomic.Int32
	started   chan struct{}
	stop      chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stop)
	return nil
}

// =============================================================================
// Tree
// =============================================================================

func TestTreeRestartsFailingService(t *testing.T) {
	tree := NewTree(TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	svc := &flakyService{fails: 2, ready: make(chan struct{})}
	tree.AddWorkService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-svc.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected service to come up after restarts")
	}
	if got := svc.starts.Load(); got != 3 {
		t.Errorf("Expected 3 starts, got %d", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected tree to stop")
	}
}

func TestNewTreeDefaults(t *testing.T) {
	tree := NewTree(TreeConfig{})
	if tree.root == nil || tree.work == nil || tree.api == nil {
		t.Fatal("Expected all supervisors to be created")
	}
	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(report) != 0 {
		t.Errorf("Expected empty report, got %v", report)
	}
}

// =============================================================================
// HTTPServerService
// =============================================================================

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	t.Parallel()

	server := newMockHTTPServer()
	svc := NewHTTPServerService("api", server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Serve to return")
	}
	if got := server.shutdowns.Load(); got != 1 {
		t.Errorf("Expected 1 shutdown, got %d", got)
	}
}

func TestHTTPServerServiceListenError(t *testing.T) {
	t.Parallel()

	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService("", server, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Expected wrapped listen error, got %v", err)
	}
	if svc.String() != "http-server" {
		t.Errorf("Expected default name, got %q", svc.String())
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("Expected default timeout, got %v", svc.shutdownTimeout)
	}
}
