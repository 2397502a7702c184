package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireSnapshot keeps points raw so tests can tell a masked bool from a vote.
type wireSnapshot struct {
	Participants map[string]struct {
		UserName string          `json:"userName"`
		Points   json.RawMessage `json:"points"`
	} `json:"participants"`
	Opened bool `json:"opened"`
}

func (s wireSnapshot) points(id string) string {
	p, ok := s.Participants[id]
	if !ok {
		return "<absent>"
	}
	return string(p.Points)
}

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	config := DefaultConfig()
	config.Clock = clockwork.NewFakeClock()

	service, err := NewService(config)
	require.NoError(t, err)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func dial(t *testing.T, server *httptest.Server, participantID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/participant/" + participantID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads snapshots until match accepts one. Broadcasts are
// delivered independently, so intermediate frames are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireSnapshot) bool) wireSnapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "no matching snapshot received")

		var snap wireSnapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		if match(snap) {
			return snap
		}
	}
}

func post(t *testing.T, server *httptest.Server, path, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(data))
}

func sendPoints(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestService_EstimationRound(t *testing.T) {
	server, _ := newTestServer(t)

	a := dial(t, server, "a")
	readUntil(t, a, func(s wireSnapshot) bool { return s.points("a") == "false" })

	b := dial(t, server, "b")
	for _, conn := range []*websocket.Conn{a, b} {
		snap := readUntil(t, conn, func(s wireSnapshot) bool { return len(s.Participants) == 2 })
		assert.False(t, snap.Opened)
		assert.Equal(t, "false", snap.points("a"))
		assert.Equal(t, "false", snap.points("b"))
	}

	sendPoints(t, a, `{"points": 5}`)
	for _, conn := range []*websocket.Conn{a, b} {
		snap := readUntil(t, conn, func(s wireSnapshot) bool { return s.points("a") == "true" })
		assert.False(t, snap.Opened)
		assert.Equal(t, "false", snap.points("b"))
	}

	sendPoints(t, b, `{"points": 8}`)
	for _, conn := range []*websocket.Conn{a, b} {
		snap := readUntil(t, conn, func(s wireSnapshot) bool { return s.points("b") == "true" })
		assert.False(t, snap.Opened, "voting must not reveal")
	}

	status, body := post(t, server, "/api/open", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"opened"`, body)
	for _, conn := range []*websocket.Conn{a, b} {
		snap := readUntil(t, conn, func(s wireSnapshot) bool { return s.Opened })
		assert.Equal(t, "5", snap.points("a"))
		assert.Equal(t, "8", snap.points("b"))
	}

	status, body = post(t, server, "/api/clear", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"cleared"`, body)
	for _, conn := range []*websocket.Conn{a, b} {
		snap := readUntil(t, conn, func(s wireSnapshot) bool { return !s.Opened })
		assert.Equal(t, "false", snap.points("a"))
		assert.Equal(t, "false", snap.points("b"))
	}
}

func TestService_JoinBroadcastsOncePerConnection(t *testing.T) {
	server, _ := newTestServer(t)

	observer := dial(t, server, "observer")
	first := readUntil(t, observer, func(s wireSnapshot) bool { return true })
	assert.Len(t, first.Participants, 1, "the join snapshot is the first frame")

	newcomer := dial(t, server, "newcomer")
	snap := readUntil(t, newcomer, func(s wireSnapshot) bool { return true })
	assert.Len(t, snap.Participants, 2)

	snap = readUntil(t, observer, func(s wireSnapshot) bool { return true })
	assert.Len(t, snap.Participants, 2)

	// No second frame for the same join
	require.NoError(t, observer.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, data, err := observer.ReadMessage()
	assert.Error(t, err, "unexpected extra frame: %s", data)
}

func TestService_OpenBeforeEveryoneVoted(t *testing.T) {
	server, service := newTestServer(t)

	a := dial(t, server, "a")
	readUntil(t, a, func(s wireSnapshot) bool { return len(s.Participants) == 1 })

	status, body := post(t, server, "/api/open", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"not opened"`, body)
	assert.False(t, service.Session().Revealed())
}

func TestService_DuplicateJoin(t *testing.T) {
	server, service := newTestServer(t)

	first := dial(t, server, "p1")
	readUntil(t, first, func(s wireSnapshot) bool { return len(s.Participants) == 1 })

	second := dial(t, server, "p1")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "You can't join twice"}`, string(data))

	_, _, err = second.ReadMessage()
	assert.Error(t, err, "duplicate connection must be closed")

	assert.Equal(t, 1, service.Session().Len())
	assert.Equal(t, 1, service.Registry().Len())
}

func TestService_InvalidVotesAreDropped(t *testing.T) {
	server, _ := newTestServer(t)

	a := dial(t, server, "a")
	readUntil(t, a, func(s wireSnapshot) bool { return len(s.Participants) == 1 })

	sendPoints(t, a, `not json`)
	sendPoints(t, a, `{"points": 4}`)
	sendPoints(t, a, `{"points": "8"}`)
	sendPoints(t, a, `{"points": 3}`)
	readUntil(t, a, func(s wireSnapshot) bool { return s.points("a") == "true" })

	_, body := post(t, server, "/api/open", "")
	require.Equal(t, `"opened"`, body)
	snap := readUntil(t, a, func(s wireSnapshot) bool { return s.Opened })
	assert.Equal(t, "3", snap.points("a"))
}

func TestService_RetractVote(t *testing.T) {
	server, _ := newTestServer(t)

	a := dial(t, server, "a")
	sendPoints(t, a, `{"points": 13}`)
	readUntil(t, a, func(s wireSnapshot) bool { return s.points("a") == "true" })

	sendPoints(t, a, `{"points": null}`)
	readUntil(t, a, func(s wireSnapshot) bool { return s.points("a") == "false" })

	_, body := post(t, server, "/api/open", "")
	assert.Equal(t, `"not opened"`, body)
}

func TestService_Disconnect(t *testing.T) {
	server, service := newTestServer(t)

	a := dial(t, server, "a")
	b := dial(t, server, "b")
	readUntil(t, b, func(s wireSnapshot) bool { return len(s.Participants) == 2 })

	require.NoError(t, a.Close())

	snap := readUntil(t, b, func(s wireSnapshot) bool { return len(s.Participants) == 1 })
	assert.Equal(t, "<absent>", snap.points("a"))
	assert.Eventually(t, func() bool {
		return service.Registry().Len() == 1 && service.Session().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The id is free again once the old connection is gone
	again := dial(t, server, "a")
	readUntil(t, again, func(s wireSnapshot) bool { return len(s.Participants) == 2 })
}

func TestService_UserName(t *testing.T) {
	server, _ := newTestServer(t)

	a := dial(t, server, "a")
	readUntil(t, a, func(s wireSnapshot) bool { return len(s.Participants) == 1 })

	status, body := post(t, server, "/api/participant/a/userName", `{"userName": "Ada"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"Thanks"`, body)
	snap := readUntil(t, a, func(s wireSnapshot) bool { return s.Participants["a"].UserName == "Ada" })
	assert.Equal(t, "false", snap.points("a"))

	status, _ = post(t, server, "/api/participant/a/userName", `{"name": "Ada"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = post(t, server, "/api/participant/a/userName", `{`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = post(t, server, "/api/participant/ghost/userName", `{"userName": "Nobody"}`)
	assert.Equal(t, http.StatusOK, status, "unknown participants are ignored")
	assert.Equal(t, `"Thanks"`, body)
}

func TestService_State(t *testing.T) {
	server, _ := newTestServer(t)

	a := dial(t, server, "a")
	sendPoints(t, a, `{"points": 21}`)
	readUntil(t, a, func(s wireSnapshot) bool { return s.points("a") == "true" })

	resp, err := http.Get(server.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap wireSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Opened)
	assert.Equal(t, "true", snap.points("a"), "state endpoint must stay masked before reveal")
}

func TestService_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/clear")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestService_ConnectionStats(t *testing.T) {
	server, service := newTestServer(t)

	a := dial(t, server, "a")
	readUntil(t, a, func(s wireSnapshot) bool { return len(s.Participants) == 1 })

	resp, err := http.Get(server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	require.Len(t, stats.Connections, 1)
	assert.Equal(t, "a", stats.Connections[0].ParticipantID)

	info := service.GetStats()
	assert.Equal(t, 1, info["participants"])
	assert.Equal(t, false, info["nats_mirror"])
}
