package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/notifications"
)

func startServer(t *testing.T) (*Manager, string) {
	t.Helper()
	m := NewManager(zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = m.HandleConnection(w, r)
	}))
	t.Cleanup(func() {
		m.Close()
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, m *Manager, url string, expected int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return m.GetConnectionCount() == expected }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) notifications.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg notifications.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestPublishReachesAllClients(t *testing.T) {
	m, url := startServer(t)
	a := dial(t, m, url, 1)
	b := dial(t, m, url, 2)

	require.NoError(t, m.Publish(notifications.Message{
		Type:      notifications.MessageTypeProgress,
		ProjectID: "p1",
		Data:      map[string]any{"progress": 42.5},
	}))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, notifications.MessageTypeProgress, msg.Type)
		assert.Equal(t, "p1", msg.ProjectID)
		assert.Equal(t, 42.5, msg.Data["progress"])
	}
}

func TestSubscriptionFiltersProjects(t *testing.T) {
	m, url := startServer(t)
	conn := dial(t, m, url, 1)

	require.NoError(t, conn.WriteJSON(notifications.SubscribeRequest{
		Type:       notifications.MessageTypeSubscribe,
		ProjectIDs: []string{"wanted"},
	}))
	status := readMessage(t, conn)
	assert.Equal(t, notifications.MessageTypeStatus, status.Type)
	assert.Equal(t, "subscribed", status.Data["status"])

	require.NoError(t, m.Publish(notifications.Message{Type: notifications.MessageTypeCompleted, ProjectID: "other"}))
	require.NoError(t, m.Publish(notifications.Message{Type: notifications.MessageTypeCompleted, ProjectID: "wanted"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "wanted", msg.ProjectID)
}

func TestDisconnectUnregisters(t *testing.T) {
	m, url := startServer(t)
	conn := dial(t, m, url, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return m.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAfterCloseFails(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Close()
	m.Close()
	assert.Error(t, m.Publish(notifications.Message{Type: notifications.MessageTypeStatus}))
}
