package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/servicemocker/pkg/adapters/memory"
	"github.com/aretw0/servicemocker/pkg/adapters/ws"
	"github.com/aretw0/servicemocker/pkg/container"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/observability"
	"github.com/aretw0/servicemocker/pkg/storage"
	"github.com/aretw0/servicemocker/pkg/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv       *httptest.Server
	worker    *worker.Worker
	container *container.Container
	clientID  string
}

// newFixture starts a worker server and connects one client with a storage service.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	w := worker.New(worker.WithObserver(metrics))
	srv := httptest.NewServer(NewHandler(w, WithMetrics(reg)))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c := container.New(ws.Dialer{URL: url}, container.WithTimeout(time.Second))
	t.Cleanup(func() { _ = c.Close() })

	svc := storage.NewService(memory.NewStore(), storage.Sources{Worker: c}, storage.WithObserver(metrics))
	require.NoError(t, svc.Start(false))
	t.Cleanup(svc.Stop)

	_, err := c.Register(context.Background(), "/mocker.js", domain.RegisterOptions{})
	require.NoError(t, err)

	clients := w.Clients()
	require.Len(t, clients, 1)
	return &fixture{srv: srv, worker: w, container: c, clientID: clients[0].ID}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServer_Health(t *testing.T) {
	h := NewHandler(worker.New())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Info(t *testing.T) {
	h := NewHandler(worker.New())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/info", nil))

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "servicemocker-worker", info["app"])
	assert.Equal(t, float64(1), info["worker_version"])
}

func TestServer_StorageProxy(t *testing.T) {
	f := newFixture(t)
	base := "/clients/" + f.clientID + "/storage/"

	resp, body := f.do(t, "PUT", base+"mock:/api/users", `{"status":200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"value":{"status":200}}`, body)

	resp, body = f.do(t, "GET", base+"mock:/api/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":{"status":200}}`, body)

	resp, _ = f.do(t, "DELETE", base+"mock:/api/users", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, "GET", base+"mock:/api/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":null}`, body)

	f.do(t, "PUT", base+"a", `1`)
	resp, _ = f.do(t, "DELETE", "/clients/"+f.clientID+"/storage", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = f.do(t, "GET", base+"a", "")
	assert.JSONEq(t, `{"value":null}`, body)
}

func TestServer_StorageErrors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "GET", "/clients/nobody/storage/k", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, "PUT", "/clients/"+f.clientID+"/storage/k", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ClientsAndActivate(t *testing.T) {
	f := newFixture(t)

	changed := make(chan struct{}, 1)
	f.container.AddControllerChangeListener(func() { changed <- struct{}{} })

	resp, body := f.do(t, "GET", "/clients", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var clients []worker.ClientInfo
	require.NoError(t, json.Unmarshal([]byte(body), &clients))
	require.Len(t, clients, 1)
	assert.True(t, clients[0].Connected)

	resp, body = f.do(t, "POST", "/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"version":2}`, body)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("client was not told about the new controller")
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, "GET", "/clients/"+f.clientID+"/storage/k", "")

	resp, body := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "servicemocker_exchanges_total")
	assert.Contains(t, body, `servicemocker_storage_requests_total{action="GET_STORAGE",status="SUCCESS"} 1`)
}
