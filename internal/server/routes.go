package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/version"
)

func SetupRoutes(cfg *Config, syncLog *SyncLog, hub *Hub) http.Handler {
	r := gin.New()

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
	r.Use(RateLimiter(cfg.Sync.RateLimit))

	syncH := NewSyncHandler(syncLog, hub, cfg.Sync.PageLimit)
	auth := BearerAuth(cfg.Sync.AuthToken)

	r.GET("/", IndexHandler)
	r.GET(api.PathStatus, StatusHandler)

	r.POST(api.PathPush, auth, syncH.Push)
	r.POST(api.PathPushBatch, auth, syncH.PushBatch)
	r.GET(api.PathPull, auth, syncH.Pull)
	r.GET(api.PathVersion, auth, syncH.Version)
	r.GET(api.PathEvents, auth, hub.Handler)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	// return a plaintext
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
