package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovaedu/wabot/core/config"
	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/whatsapp"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []whatsapp.Event
	seen   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev whatsapp.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

func (h *recordingHandler) waitFor(t *testing.T, n int) []whatsapp.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]whatsapp.Event(nil), h.events...)
}

func newTestServer(appSecret string) (*Server, *recordingHandler, session.Store, *recorder.Memory) {
	handler := newRecordingHandler()
	store := session.NewMemoryStore()
	records := recorder.NewMemory()
	srv := NewServer(config.WebhookConfig{
		VerifyToken: "verify-me",
		AppSecret:   appSecret,
	}, handler, store, records)
	return srv, handler, store, records
}

func TestVerifyHandshake(t *testing.T) {
	srv, _, _, _ := newTestServer("")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "12345", string(body))
}

func TestVerifyHandshakeWrongToken(t *testing.T) {
	srv, _, _, _ := newTestServer("")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

const inboundText = `{"entry":[{"changes":[{"field":"messages","value":{"messages":[
  {"from":"923001234567","id":"wamid.1","timestamp":"1748779200","type":"text","text":{"body":"hi"}}
]}}]}]}`

func TestNotificationAcksAndDispatches(t *testing.T) {
	srv, handler, _, _ := newTestServer("")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(inboundText))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))

	events := handler.waitFor(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, "923001234567", events[0].WaID)
	assert.Equal(t, "hi", events[0].Input())
}

func TestNotificationSignatureEnforced(t *testing.T) {
	secret := "app-secret"
	srv, handler, _, _ := newTestServer(secret)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// Missing signature is rejected.
	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(inboundText))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A valid signature is accepted.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(inboundText))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook", strings.NewReader(inboundText))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", sig)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := handler.waitFor(t, 1)
	assert.Len(t, events, 1)
}

func TestNotificationMalformedBodyStillAcked(t *testing.T) {
	srv, _, _, _ := newTestServer("")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	// The provider retries on errors, so a broken body is acked and dropped.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _, store, records := newTestServer("")
	store.Get("u1")
	store.Get("u2")
	_ = records.Record(context.Background(), recorder.Record{ID: "SA1", Kind: recorder.KindStudyAbroad})

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, float64(2), got["activeSessions"])
	assert.Equal(t, float64(1), got["totalApplications"])
}

func TestAdminApplications(t *testing.T) {
	srv, _, _, records := newTestServer("")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = records.Record(context.Background(), recorder.Record{
		ID: "SA1", Kind: recorder.KindStudyAbroad,
		Fields:      map[string]string{"name": "Ali"},
		SubmittedAt: base,
	})
	_ = records.Record(context.Background(), recorder.Record{
		ID: "APP1", Kind: recorder.KindConsultation,
		Fields:      map[string]string{"firstName": "Sara"},
		SubmittedAt: base.Add(time.Minute),
	})

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/admin/applications")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Total        int `json:"total"`
		Applications []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"applications"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got.Total)
	require.Len(t, got.Applications, 2)
	assert.Equal(t, "APP1", got.Applications[0].ID)

	resp, err = http.Get(ts.URL + "/admin/applications?kind=study_abroad")
	require.NoError(t, err)
	defer resp.Body.Close()
	var filtered struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&filtered))
	assert.Equal(t, 1, filtered.Total)

	resp, err = http.Get(ts.URL + "/admin/applications?kind=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBanner(t *testing.T) {
	srv, _, _, _ := newTestServer("")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "INNOVA")
}
