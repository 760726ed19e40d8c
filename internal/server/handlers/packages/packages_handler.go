// Package packages exposes upload and download of content-addressed
// package versions.
package packages

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vipinj/lockbox/internal/server/handlers/api"
	"github.com/vipinj/lockbox/internal/server/versions"
)

type Handler struct {
	versions *versions.Service
}

func New(svc *versions.Service) *Handler {
	return &Handler{versions: svc}
}

func (h *Handler) Upload(ctx *gin.Context) {
	var req UploadRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid file: %w", err))
		return
	}
	if file.Size <= 0 {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("invalid file: size is 0"))
		return
	}

	fd, err := file.Open()
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid file: %w", err))
		return
	}
	defer fd.Close()

	payload, err := io.ReadAll(fd)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("read file: %w", err))
		return
	}

	hash, err := h.versions.Upload(ctx.Request.Context(), req.TopDirID, req.RelPathID, payload)
	if err != nil {
		if errors.Is(err, versions.ErrUnknownRelPath) {
			api.AbortWithError(ctx, http.StatusNotFound, api.CodePackageUnknownPath, err)
			return
		}
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodePackagePutFailed, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &UploadResponse{
		TopDirID:  req.TopDirID,
		RelPathID: req.RelPathID,
		Hash:      hash,
		Size:      int64(len(payload)),
	})
}

func (h *Handler) Download(ctx *gin.Context) {
	var req DownloadRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	payload, err := h.versions.Download(ctx.Request.Context(), req.TopDirID, req.RelPathID, req.Hash)
	if err != nil {
		abortVersionError(ctx, err)
		return
	}

	ctx.Data(http.StatusOK, "application/octet-stream", payload)
}

func (h *Handler) History(ctx *gin.Context) {
	var req HistoryRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	chain, err := h.versions.History(ctx.Request.Context(), req.TopDirID, req.RelPathID)
	if err != nil {
		abortVersionError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &HistoryResponse{
		TopDirID:  req.TopDirID,
		RelPathID: req.RelPathID,
		Versions:  chain,
	})
}

func abortVersionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, versions.ErrUnknownRelPath):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodePackageUnknownPath, err)
	case errors.Is(err, versions.ErrNoSuchVersion):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodePackageNotFound, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
	}
}
