package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	identityH "github.com/vipinj/lockbox/internal/server/handlers/identity"
	"github.com/vipinj/lockbox/internal/server/handlers/packages"
	"github.com/vipinj/lockbox/internal/server/handlers/paths"
	"github.com/vipinj/lockbox/internal/server/handlers/updates"
	"github.com/vipinj/lockbox/internal/server/handlers/ws"
	"github.com/vipinj/lockbox/internal/version"
)

func SetupRoutes(svc *Services, hub *ws.WebsocketHub) http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	idH := identityH.New(svc.Identity)
	pathsH := paths.New(svc.RelPath)
	pkgH := packages.New(svc.Versions)
	updatesH := updates.New(svc.DeviceQueue)

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/api/v1")
	{
		// identity
		v1.POST("/users", idH.RegisterUser)
		v1.POST("/devices", idH.RegisterDevice)
		v1.POST("/topdirs", idH.RegisterTopDir)
		v1.POST("/topdirs/share", idH.Share)

		// relative paths and locks
		v1.POST("/relpath/allocate", pathsH.Allocate)
		v1.POST("/relpath/lock", pathsH.Lock)
		v1.DELETE("/relpath/lock", pathsH.Unlock)

		// packages
		v1.PUT("/packages", pkgH.Upload)
		v1.GET("/packages", pkgH.Download)
		v1.GET("/packages/history", pkgH.History)

		// per-device sync queue
		v1.GET("/updates", updatesH.Poll)

		// websocket nudges
		v1.GET("/events", hub.WebsocketHandler)

		// live pool control
		v1.POST("/workers/increment", func(ctx *gin.Context) {
			svc.Engine.Increment()
			ctx.PureJSON(http.StatusOK, gin.H{"workers": svc.Engine.Workers()})
		})
		v1.POST("/workers/decrement", func(ctx *gin.Context) {
			svc.Engine.Decrement()
			ctx.PureJSON(http.StatusOK, gin.H{"workers": svc.Engine.Workers()})
		})
		v1.GET("/workers", func(ctx *gin.Context) {
			pending, err := svc.Queue.Pending(ctx.Request.Context())
			if err != nil {
				ctx.PureJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.PureJSON(http.StatusOK, gin.H{
				"workers": svc.Engine.Workers(),
				"pending": strconv.FormatInt(pending, 10),
			})
		})
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	r.NoMethod(func(c *gin.Context) {
		c.PureJSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.Detailed())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
