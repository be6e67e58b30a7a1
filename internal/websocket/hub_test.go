package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		WriteTimeout:   time.Second,
		PongTimeout:    5 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	return startHubWith(t, testConfig())
}

func startHubWith(t *testing.T, cfg *config.WebSocketConfig) *Hub {
	t.Helper()
	hub := NewHub(cfg, testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func fakeClient(hub *Hub, id string) *Client {
	return &Client{id: id, hub: hub, send: make(chan []byte, 8), logger: testLogger()}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func earnedFirstTimer() (domain.EarnedBadge, domain.Badge) {
	return domain.EarnedBadge{
			ID:        "eb1",
			UserID:    "user1",
			BadgeID:   domain.BadgeFirstTimer,
			AwardedAt: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		}, domain.Badge{
			ID:   domain.BadgeFirstTimer,
			Name: "First Timer",
		}
}

func TestHub_BroadcastBadgeAwarded_OnlySubscribers(t *testing.T) {
	hub := startHub(t)
	alice := fakeClient(hub, "a")
	bob := fakeClient(hub, "b")
	hub.Register(alice)
	hub.Register(bob)
	hub.Subscribe(alice, "user1")
	hub.Subscribe(bob, "user2")
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("user1") == 1 && hub.GetSubscriberCount("user2") == 1
	}, time.Second, 10*time.Millisecond)

	earned, def := earnedFirstTimer()
	hub.BroadcastBadgeAwarded("user1", earned, def)

	msg := receive(t, alice)
	assert.Equal(t, MessageTypeBadgeAwarded, msg.Type)
	assert.Equal(t, "user1", msg.UserID)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, domain.BadgeFirstTimer, data["badge_id"])
	assert.Equal(t, "First Timer", data["name"])

	select {
	case <-bob.send:
		t.Fatal("unsubscribed client received a badge event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterRemovesSubscriptions(t *testing.T) {
	hub := startHub(t)
	c := fakeClient(hub, "a")
	hub.Register(c)
	hub.Subscribe(c, "user1")
	require.Eventually(t, func() bool { return hub.GetSubscriberCount("user1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Unregister(c)

	require.Eventually(t, func() bool { return hub.GetStats().TotalConnections == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.GetSubscriberCount("user1"))
	assert.Equal(t, 0, hub.GetStats().SubscribedUsers)
	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := startHub(t)
	c := fakeClient(hub, "a")
	hub.Register(c)
	hub.Subscribe(c, "user1")
	require.Eventually(t, func() bool { return hub.GetSubscriberCount("user1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Unsubscribe(c, "user1")

	require.Eventually(t, func() bool { return hub.GetSubscriberCount("user1") == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.GetStats().TotalConnections)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	// no loop is draining the channels once the hub is stopped
	hub := NewHub(testConfig(), testLogger())
	c := fakeClient(hub, "a")
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.Unregister(c)
		hub.Subscribe(c, "user1")
		hub.Unsubscribe(c, "user1")
		assert.False(t, hub.Register(fakeClient(hub, "b")))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after Stop")
	}
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestServeWs_OneFramePerEvent(t *testing.T) {
	hub := startHub(t)
	logger := testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	defer srv.Close()

	conn, _, err := gws.DefaultDialer.Dial(wsURL(srv, "?user_id=user1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.GetSubscriberCount("user1") == 1 }, time.Second, 10*time.Millisecond)

	earned, def := earnedFirstTimer()
	hub.BroadcastBadgeAwarded("user1", earned, def)
	earned.BadgeID = domain.BadgeNightOwl
	hub.BroadcastBadgeAwarded("user1", earned, def)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got []string
	for i := 0; i < 2; i++ {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		got = append(got, data["badge_id"].(string))
	}
	assert.Equal(t, []string{domain.BadgeFirstTimer, domain.BadgeNightOwl}, got)
}

func TestServeWs_RejectsUnknownOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://pubs.example.com"}
	hub := startHubWith(t, cfg)
	logger := testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	defer srv.Close()

	_, resp, err := gws.DefaultDialer.Dial(wsURL(srv, ""), http.Header{"Origin": {"https://evil.example.com"}})
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := gws.DefaultDialer.Dial(wsURL(srv, ""), http.Header{"Origin": {"https://pubs.example.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestServeWs_SubscribesFromQuery(t *testing.T) {
	hub := startHub(t)
	logger := testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=user1"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetSubscriberCount("user1") == 1 }, time.Second, 10*time.Millisecond)

	earned, def := earnedFirstTimer()
	hub.BroadcastBadgeAwarded("user1", earned, def)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeBadgeAwarded, msg.Type)
}

func TestServeWs_PingAndInvalidSubscribe(t *testing.T) {
	hub := startHub(t)
	logger := testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	defer srv.Close()

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, MessageTypePong, pong.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe}))
	var errMsg Message
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, MessageTypeError, errMsg.Type)
}
