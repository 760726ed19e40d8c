// Package paths exposes relative-path allocation and the advisory
// per-path lock.
package paths

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vipinj/lockbox/internal/server/handlers/api"
	"github.com/vipinj/lockbox/internal/server/relpath"
)

type Handler struct {
	relpath *relpath.Service
}

func New(svc *relpath.Service) *Handler {
	return &Handler{relpath: svc}
}

func (h *Handler) Allocate(ctx *gin.Context) {
	var req AllocateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	id, err := h.relpath.Allocate(ctx.Request.Context(), req.TopDirID)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodePathAllocFailed, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, &AllocateResponse{
		TopDirID:  req.TopDirID,
		RelPathID: id,
	})
}

func (h *Handler) Lock(ctx *gin.Context) {
	var req LockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	granted, notify, err := h.relpath.AcquireLock(ctx.Request.Context(), req.TopDirID, req.RelPathID, req.Holder)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	if !granted {
		// not an error: the caller is told the lock is busy and may retry
		ctx.PureJSON(http.StatusConflict, &LockResponse{Granted: false})
		return
	}

	ctx.PureJSON(http.StatusOK, &LockResponse{
		Granted:     true,
		NotifyUsers: notify,
	})
}

func (h *Handler) Unlock(ctx *gin.Context) {
	var req UnlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.relpath.ReleaseLock(ctx.Request.Context(), req.TopDirID, req.RelPathID); err != nil {
		if errors.Is(err, relpath.ErrLockNotHeld) {
			api.AbortWithError(ctx, http.StatusConflict, api.CodePathLockNotHeld, err)
			return
		}
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
