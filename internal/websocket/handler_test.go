package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// echoDispatcher answers every frame with a pong and records disconnects.
type echoDispatcher struct {
	mu           sync.Mutex
	frames       []string
	disconnected []string
}

func (d *echoDispatcher) HandleFrame(ctx context.Context, conn interfaces.Connection, data []byte) {
	d.mu.Lock()
	d.frames = append(d.frames, string(data))
	d.mu.Unlock()
	_ = conn.WriteJSON(types.Pong{Type: types.FramePong, Time: time.Now()})
}

func (d *echoDispatcher) Disconnect(conn interfaces.Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, conn.ID())
}

func (d *echoDispatcher) disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.disconnected)
}

func startHandler(t *testing.T, config HandlerConfig) (*Handler, *echoDispatcher, string) {
	t.Helper()
	d := &echoDispatcher{}
	h := NewHandler(d, config)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return h, d, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHandler_FrameRoundTrip(t *testing.T) {
	_, d, url := startHandler(t, DefaultHandlerConfig())

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]interface{}
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, "pong", reply["type"])

	d.mu.Lock()
	assert.Equal(t, []string{`{"type":"ping"}`}, d.frames)
	d.mu.Unlock()
}

func TestHandler_DisconnectNotifiesDispatcher(t *testing.T) {
	h, d, url := startHandler(t, DefaultHandlerConfig())

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return d.disconnects() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_OversizedFrameClosesConnection(t *testing.T) {
	config := DefaultHandlerConfig()
	config.MaxMessageSize = 64
	_, d, url := startHandler(t, config)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 1024))))
	assert.Eventually(t, func() bool { return d.disconnects() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_OriginAllowList(t *testing.T) {
	config := DefaultHandlerConfig()
	config.AllowedOrigins = []string{"https://app.example"}
	_, _, url := startHandler(t, config)

	header := http.Header{}
	header.Set("Origin", "https://app.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()

	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_UpgradeThrottle(t *testing.T) {
	config := DefaultHandlerConfig()
	config.UpgradesPerSecond = 0.001
	config.UpgradeBurst = 2
	h, _, url := startHandler(t, config)

	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, 0, h.SweepLimiters(time.Hour))
	assert.Equal(t, 1, h.SweepLimiters(-time.Second))
}

func TestHandler_HeartbeatPing(t *testing.T) {
	config := DefaultHandlerConfig()
	config.PingInterval = 50 * time.Millisecond
	config.ReadTimeout = time.Second
	_, _, url := startHandler(t, config)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ping from the server")
	}
}

func TestHandler_Shutdown(t *testing.T) {
	h, d, url := startHandler(t, DefaultHandlerConfig())

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Eventually(t, func() bool { return h.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	assert.Equal(t, 0, h.ActiveConnections())
	assert.Equal(t, 1, d.disconnects())
}
