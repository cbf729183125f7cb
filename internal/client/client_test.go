package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/server"
)

type syncServer struct {
	srv *httptest.Server
	log *server.SyncLog
	hub *server.Hub
}

func newSyncServer(t *testing.T) *syncServer {
	t.Helper()
	cfg := &server.Config{}
	require.NoError(t, cfg.Validate())

	syncLog := server.NewSyncLog()
	hub := server.NewHub()
	srv := httptest.NewServer(server.SetupRoutes(cfg, syncLog, hub))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)

	return &syncServer{srv: srv, log: syncLog, hub: hub}
}

// startClient runs the daemon in the background and stops it with the
// test.
func startClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	host, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("client did not stop in time")
		}
	})

	return host
}

func TestClientUploadsLocalEdits(t *testing.T) {
	env := newSyncServer(t)
	ctx := context.Background()

	host := startClient(t, &Config{
		DataDir:      t.TempDir(),
		ServerURL:    env.srv.URL,
		SyncInterval: 50 * time.Millisecond,
	})

	doc := NewDocument("grocery list", "milk, eggs")
	require.NoError(t, host.Documents().Save(ctx, doc))

	require.Eventually(t, func() bool { return env.log.Head() >= 1 }, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := host.Documents().Get(ctx, doc.ID)
		return err == nil && !got.Pending()
	}, 5*time.Second, 20*time.Millisecond)

	// The pass that shipped the edit also advanced the checkpoint.
	require.Eventually(t, func() bool {
		cp, err := host.Documents().Checkpoint(ctx)
		return err == nil && cp == driftsync.Version(env.log.Head())
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClientAppliesRemotePushOnEvent(t *testing.T) {
	env := newSyncServer(t)

	// An hour-long interval, so only a change event can trigger the pass.
	host := startClient(t, &Config{
		DataDir:      t.TempDir(),
		ServerURL:    env.srv.URL,
		SyncInterval: time.Hour,
	})

	require.Eventually(t, func() bool { return env.hub.Active() == 1 }, 5*time.Second, 20*time.Millisecond)

	remote := NewDocument("pushed", "from another host")
	payload, err := json.Marshal(remote)
	require.NoError(t, err)

	body, err := json.Marshal(&api.Record{
		ID:         uuid.NewString(),
		EntityID:   remote.ID,
		EntityType: DocumentType,
		Op:         string(driftsync.OpInsert),
		Payload:    payload,
		ClientTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	resp, err := http.Post(env.srv.URL+api.PathPush, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		got, err := host.Documents().Get(context.Background(), remote.ID)
		return err == nil && got.Title == "pushed" && !got.Pending()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClientStartsOffline(t *testing.T) {
	ctx := context.Background()

	host := startClient(t, &Config{
		DataDir:      t.TempDir(),
		ServerURL:    "http://127.0.0.1:1",
		SyncInterval: 50 * time.Millisecond,
	})

	doc := NewDocument("offline notes", "written on a plane")
	require.NoError(t, host.Documents().Save(ctx, doc))

	// A few failed passes later the edit is still queued, not errored.
	time.Sleep(150 * time.Millisecond)

	got, err := host.Documents().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Pending())

	failures, err := host.Documents().Failures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestClientRefusesSecondInstance(t *testing.T) {
	env := newSyncServer(t)
	dataDir := t.TempDir()

	startClient(t, &Config{
		DataDir:      dataDir,
		ServerURL:    env.srv.URL,
		SyncInterval: time.Hour,
	})

	lockPath := filepath.Join(dataDir, metadataDir, lockFile)
	require.Eventually(t, func() bool {
		_, err := os.Stat(lockPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	second, err := New(&Config{
		DataDir:      dataDir,
		ServerURL:    env.srv.URL,
		SyncInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Stop() })

	assert.ErrorIs(t, second.Start(context.Background()), ErrDataDirLocked)
}
