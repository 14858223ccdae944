package cli

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/servicemocker/internal/config"
	"github.com/aretw0/servicemocker/internal/logging"
	httpAdapter "github.com/aretw0/servicemocker/pkg/adapters/http"
	"github.com/aretw0/servicemocker/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWorker_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunWorker(ctx, cfg, logging.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("worker did not shut down")
	}
}

func TestRunWorker_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := config.Default()
	cfg.Worker.Listen = busy.Addr().String()

	err = RunWorker(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestRunClient_ConnectsAndUnloads(t *testing.T) {
	w := worker.New()
	srv := httptest.NewServer(httpAdapter.NewHandler(w))
	defer srv.Close()

	cfg := config.Default()
	cfg.Worker.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.Timeout = time.Second

	unload := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- RunClient(context.Background(), cfg, unload, logging.NewNop()) }()

	require.Eventually(t, func() bool {
		clients := w.Clients()
		return len(clients) == 1 && clients[0].Connected
	}, 2*time.Second, 10*time.Millisecond)

	_, err := w.Activate(context.Background())
	require.NoError(t, err)

	close(unload)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not unload")
	}

	require.Eventually(t, func() bool {
		clients := w.Clients()
		return len(clients) == 0 || !clients[0].Connected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunClient_BadStore(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "etcd"

	err := RunClient(context.Background(), cfg, make(chan struct{}), logging.NewNop())
	assert.Error(t, err)
}
