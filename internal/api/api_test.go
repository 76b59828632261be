package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erilali/bombnet/internal/logger"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	accepting bool
	peers     []string
}

func (f *fakeHub) IsAccepting() bool   { return f.accepting }
func (f *fakeHub) ConnectedCount() int { return len(f.peers) }
func (f *fakeHub) Peers() []string     { return f.peers }

type fakeNATS nats.Status

func (f fakeNATS) Status() nats.Status { return nats.Status(f) }

type fakeStreams struct {
	info *nats.StreamInfo
	err  error
}

func (f *fakeStreams) StreamInfo(string, ...nats.JSOpt) (*nats.StreamInfo, error) {
	return f.info, f.err
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Code == http.StatusOK {
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHealth_WithoutNATS(t *testing.T) {
	s := NewServer(&fakeHub{accepting: true, peers: []string{"a", "b"}}, WithNATS(nil, nil), WithLogger(logger.Nop()))

	code, body := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["accepting"])
	assert.Equal(t, float64(2), body["connected"])
	assert.Equal(t, "disconnected", body["nats"])
	assert.NotContains(t, body, "jetstream")
}

func TestHealth_ReportsStream(t *testing.T) {
	s := NewServer(&fakeHub{}, WithLogger(logger.Nop()))
	s.nc = fakeNATS(nats.CONNECTED)
	s.js = &fakeStreams{info: &nats.StreamInfo{
		Config: nats.StreamConfig{Subjects: []string{"game.out.*", "game.in.*"}, MaxAge: 30 * time.Minute},
		State:  nats.StreamState{Msgs: 12, Bytes: 2048},
	}}

	code, body := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "connected", body["nats"])
	assert.Equal(t, false, body["accepting"])

	js := body["jetstream"].(map[string]interface{})
	stream := js["streams"].(map[string]interface{})["GAME"].(map[string]interface{})
	assert.Equal(t, float64(12), stream["messages"])
	assert.Equal(t, float64(2048), stream["bytes"])
	assert.Equal(t, "30m0s", stream["retention"])
}

func TestHealth_StreamError(t *testing.T) {
	s := NewServer(&fakeHub{}, WithLogger(logger.Nop()))
	s.js = &fakeStreams{err: nats.ErrStreamNotFound}

	_, body := get(t, s.Handler(), "/health")
	stream := body["jetstream"].(map[string]interface{})["streams"].(map[string]interface{})["GAME"].(map[string]interface{})
	assert.Equal(t, nats.ErrStreamNotFound.Error(), stream["error"])
}

func TestPeers(t *testing.T) {
	s := NewServer(&fakeHub{peers: []string{"10.0.0.1:5000", "10.0.0.2:5000"}}, WithLogger(logger.Nop()))

	code, body := get(t, s.Handler(), "/api/peers")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"10.0.0.1:5000", "10.0.0.2:5000"}, body["peers"])
	assert.Equal(t, float64(2), body["count"])
}

func TestRoutes(t *testing.T) {
	mounted := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mounted = true
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewServer(&fakeHub{}, WithWebSocket(ws), WithLogger(logger.Nop())).Handler()

	code, _ := get(t, h, "/ws")
	assert.Equal(t, http.StatusTeapot, code)
	assert.True(t, mounted)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	code, _ = get(t, h, "/api/rounds")
	assert.Equal(t, http.StatusNotFound, code)
}
