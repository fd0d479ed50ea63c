package preview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumely/cvsync/internal/render"
	cvsync "github.com/resumely/cvsync/internal/sync"
)

type fakeArtifacts struct {
	mu           sync.Mutex
	artifact, fp string
	ok           bool
}

func (f *fakeArtifacts) set(artifact, fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifact, f.fp, f.ok = artifact, fp, true
}

func (f *fakeArtifacts) Current() (string, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifact, f.fp, f.ok
}

type fakeSession struct{ dirty bool }

func (f fakeSession) IsDirty() bool            { return f.dirty }
func (f fakeSession) LastSyncedAt() *time.Time { return nil }

func startServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	cfg.Port = 0
	s := NewServer(cfg)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_PreviewEndpoint(t *testing.T) {
	artifacts := &fakeArtifacts{}
	s := startServer(t, &Config{Artifacts: artifacts})
	base := "http://" + s.GetAddr()

	resp, _ := get(t, base+"/preview", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	artifacts.set("<h1>Ada</h1>", "abc")
	resp, body := get(t, base+"/preview", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>Ada</h1>", body)
	assert.Equal(t, `"abc"`, resp.Header.Get("ETag"))

	resp, _ = get(t, base+"/preview", http.Header{"If-None-Match": {`"abc"`}})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp, body = get(t, base+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	resp, body = get(t, base+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/ws")
}

func TestServer_PreviewDisabled(t *testing.T) {
	s := startServer(t, &Config{})
	resp, _ := get(t, "http://"+s.GetAddr()+"/preview", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.GetAddr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServer_WelcomeStatusAndFocus(t *testing.T) {
	var focused atomic.Int32
	s := startServer(t, &Config{
		Status: func() StatusData { return StatusData{Identity: "alice", SyncState: "idle"} },
		OnFocus: func(ctx context.Context) error {
			focused.Add(1)
			return errors.New("remote unavailable")
		},
	})
	conn := dial(t, s)

	msg := readUntil(t, conn, MessageTypeStatus)
	var st StatusData
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, "alice", st.Identity)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"focus"}`)))
	assert.Eventually(t, func() bool { return focused.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.ClientCount(), "refocus errors keep the connection open")
}

func TestHandler_BroadcastsEvents(t *testing.T) {
	s := startServer(t, &Config{})
	h := NewHandler(s, fakeSession{dirty: true}, nil)
	conn := dial(t, s)

	h.OnRenderUpdate(render.Update{Status: render.StatusReady, Fingerprint: "fp1"})
	msg := readUntil(t, conn, MessageTypeRender)
	var rd RenderData
	require.NoError(t, json.Unmarshal(msg.Data, &rd))
	assert.Equal(t, "ready", rd.Status)
	assert.Equal(t, "fp1", rd.Fingerprint)

	h.OnSyncEvent(cvsync.Event{Kind: cvsync.EventPushFailed, Identity: "alice", State: cvsync.PendingPush, Err: errors.New("boom")})
	msg = readUntil(t, conn, MessageTypeSync)
	var sd SyncEventData
	require.NoError(t, json.Unmarshal(msg.Data, &sd))
	assert.Equal(t, "push_failed", sd.Event)
	assert.Equal(t, "pending", sd.State)
	assert.Equal(t, "boom", sd.Error)

	synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.OnSyncEvent(cvsync.Event{Kind: cvsync.EventConflict, Identity: "alice", Conflict: &cvsync.Conflict{
		Identity: "alice", RemoteUpdatedAt: synced.Add(time.Hour), LastSyncedAt: &synced,
	}})
	msg = readUntil(t, conn, MessageTypeConflict)
	var cd ConflictData
	require.NoError(t, json.Unmarshal(msg.Data, &cd))
	assert.Equal(t, "alice", cd.Identity)

	st := h.Status()
	assert.Equal(t, "alice", st.Identity)
	assert.True(t, st.Dirty)
	assert.Equal(t, "ready", st.RenderStatus)
	assert.Equal(t, "fp1", st.Fingerprint)
}

func TestHandler_IdentityChangeResetsRenderStatus(t *testing.T) {
	s := startServer(t, &Config{})
	h := NewHandler(s, nil, nil)

	h.OnRenderUpdate(render.Update{Status: render.StatusReady, Fingerprint: "fp1"})
	h.OnSyncEvent(cvsync.Event{Kind: cvsync.EventIdentityChanged, Identity: "bob", State: cvsync.Idle})

	st := h.Status()
	assert.Equal(t, "bob", st.Identity)
	assert.Equal(t, "idle", st.RenderStatus)
	assert.Empty(t, st.Fingerprint)
}
