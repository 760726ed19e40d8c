package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*WebsocketHub, string) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/events", hub.WebsocketHandler)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
}

func TestNudgeReachesDevice(t *testing.T) {
	hub, url := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"?device=7", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// registration races the dial returning
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Nudge("7")

	var notice Notice
	require.NoError(t, wsjson.Read(ctx, conn, &notice))
	assert.Equal(t, NoticeSync, notice.Type)
}

func TestNudgeOtherDeviceIsSilent(t *testing.T) {
	hub, url := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"?device=7", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Nudge("8")

	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	var notice Notice
	assert.Error(t, wsjson.Read(readCtx, conn, &notice))
}

func TestHandlerRequiresDevice(t *testing.T) {
	_, url := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, url, nil)
	assert.Error(t, err)
}
