// Package identity exposes the registration endpoints: users, devices,
// top directories, and sharing.
package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vipinj/lockbox/internal/server/handlers/api"
	"github.com/vipinj/lockbox/internal/server/identity"
)

type Handler struct {
	identity *identity.Service
}

func New(svc *identity.Service) *Handler {
	return &Handler{identity: svc}
}

func (h *Handler) RegisterUser(ctx *gin.Context) {
	var req RegisterUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	id, err := h.identity.RegisterUser(ctx.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrAlreadyRegistered) {
			api.AbortWithError(ctx, http.StatusConflict, api.CodeIdentityDuplicate, err)
			return
		}
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, &RegisterUserResponse{UserID: id})
}

func (h *Handler) RegisterDevice(ctx *gin.Context) {
	var req RegisterDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	id, err := h.identity.RegisterDevice(ctx.Request.Context(), req.Email)
	if err != nil {
		abortIdentityError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, &RegisterDeviceResponse{DeviceID: id})
}

func (h *Handler) RegisterTopDir(ctx *gin.Context) {
	var req RegisterTopDirRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	id, err := h.identity.RegisterTopDir(ctx.Request.Context(), req.Email)
	if err != nil {
		abortIdentityError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, &RegisterTopDirResponse{TopDirID: id})
}

func (h *Handler) Share(ctx *gin.Context) {
	var req ShareRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.identity.Share(ctx.Request.Context(), req.TopDirID, req.Email); err != nil {
		abortIdentityError(ctx, err)
		return
	}

	editors, err := h.identity.Editors(ctx.Request.Context(), req.TopDirID)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ShareResponse{TopDirID: req.TopDirID, Editors: editors})
}

func abortIdentityError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrUnknownUser):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeIdentityUnknownUser, err)
	case errors.Is(err, identity.ErrUnknownTopDir):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeIdentityUnknownTopDir, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
	}
}
