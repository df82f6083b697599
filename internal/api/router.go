package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions wires NewRouter.
type RouterOptions struct {
	Caches   Caches
	Handler  *Handler
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Handler == nil {
		opts.Handler = &Handler{}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := opts.Handler

	r := gin.New()
	r.Use(RequestID(), Logger(opts.Logger), gin.Recovery(), CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	apiGroup := r.Group("/api", Inject(opts.Caches))
	{
		apiGroup.GET("/session", h.GetSession)
		apiGroup.POST("/session/login", h.Login)
		apiGroup.POST("/session/logout", h.Logout)
		apiGroup.POST("/session/extend", h.Extend)

		apiGroup.GET("/activities", h.ListActivities)
		apiGroup.POST("/activities", h.AddActivity)
		apiGroup.DELETE("/activities", h.ClearActivities)
		apiGroup.POST("/activities/refresh", h.RefreshActivities)
		apiGroup.GET("/activities/kinds", h.ListKinds)

		apiGroup.GET("/recent", h.ListRecent)
		apiGroup.POST("/recent", h.TouchRecent)
		apiGroup.DELETE("/recent", h.ClearRecent)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return r
}
