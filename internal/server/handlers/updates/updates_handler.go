// Package updates exposes the device poll endpoint that drains a
// device's pending sync queue.
package updates

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/server/handlers/api"
	"github.com/vipinj/lockbox/internal/server/updater"
)

type PollRequest struct {
	User     string `form:"user"`
	DeviceID int64  `form:"deviceId" binding:"required"`
	Peek     bool   `form:"peek"`
}

type PendingUpdate struct {
	Timestamp string `json:"timestamp"`
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
	Hash      string `json:"hash"`
}

type PollResponse struct {
	DeviceID int64            `json:"deviceId"`
	Updates  []*PendingUpdate `json:"updates"`
}

type Handler struct {
	queue *updater.DeviceQueue
}

func New(q *updater.DeviceQueue) *Handler {
	return &Handler{queue: q}
}

func (h *Handler) Poll(ctx *gin.Context) {
	var req PollRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	device := strconv.FormatInt(req.DeviceID, 10)

	var tuples []*change.Tuple
	var err error
	if req.Peek {
		tuples, err = h.queue.Peek(ctx.Request.Context(), device)
	} else {
		tuples, err = h.queue.Drain(ctx.Request.Context(), device)
	}
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeUpdatePollFailed, err)
		return
	}

	updates := make([]*PendingUpdate, 0, len(tuples))
	for _, t := range tuples {
		updates = append(updates, &PendingUpdate{
			Timestamp: t.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
			TopDirID:  t.TopDir,
			RelPathID: t.RelPath,
			Hash:      t.Hash,
		})
	}

	ctx.PureJSON(http.StatusOK, &PollResponse{
		DeviceID: req.DeviceID,
		Updates:  updates,
	})
}
