// Package ws pushes "changes pending" nudges to connected devices so
// they poll immediately instead of on a timer.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/vipinj/lockbox/internal/server/handlers/api"
)

type WebsocketHub struct {
	clients  map[string]*WebsocketClient // ConnID -> client
	register chan *WebsocketClient

	wg sync.WaitGroup
	mu sync.RWMutex
}

func NewHub() *WebsocketHub {
	return &WebsocketHub{
		clients:  make(map[string]*WebsocketClient),
		register: make(chan *WebsocketClient),
	}
}

func (h *WebsocketHub) Run(ctx context.Context) {
	slog.Info("wshub started")
	defer slog.Info("wshub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConnID] = client
			slog.Debug("wshub registered", "connId", client.ConnID, "device", client.Info.DeviceID, "active", len(h.clients))
			h.mu.Unlock()

			h.wg.Add(1)
			go client.Start(context.Background())
			go func() {
				<-client.Closed

				h.mu.Lock()
				defer h.mu.Unlock()
				delete(h.clients, client.ConnID)
				slog.Debug("wshub removed", "connId", client.ConnID, "active", len(h.clients))
				h.wg.Done()
			}()

		case <-ctx.Done():
			return
		}
	}
}

// Nudge tells every connection of device that changes are pending. A
// device with a full or stalled send buffer is skipped; it will catch
// up on its next poll.
func (h *WebsocketHub) Nudge(deviceID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.Info.DeviceID != deviceID {
			continue
		}
		select {
		case client.Tx <- &Notice{Type: NoticeSync}:
		default:
			slog.Warn("wshub nudge dropped", "connId", client.ConnID, "device", deviceID)
		}
	}
}

func (h *WebsocketHub) Shutdown(ctx context.Context) {
	close(h.register)

	h.mu.RLock()
	for _, client := range h.clients {
		go client.Close()
	}
	h.mu.RUnlock()

	h.wg.Wait()
	h.clients = nil
	slog.Info("wshub shutdown")
}

// WebsocketHandler upgrades the connection and registers the device
// with the hub.
func (h *WebsocketHub) WebsocketHandler(ctx *gin.Context) {
	deviceID := ctx.Query("device")
	if deviceID == "" {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("device missing"))
		return
	}

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("websocket accept failed: %w", err))
		return
	}

	h.register <- NewWebsocketClient(conn, &ClientInfo{
		User:     ctx.Query("user"),
		DeviceID: deviceID,
		IPAddr:   ctx.ClientIP(),
	})
}
