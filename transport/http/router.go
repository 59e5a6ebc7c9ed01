package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig tunes the HTTP surface. A zero RateLimitRPS disables throttling.
type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter sets up the Gin router
func SetupRouter(handlers *Handlers, cfg RouterConfig, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/", handlers.Root)
	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Mutating routes
	api := router.Group("/")
	if cfg.RateLimitRPS > 0 {
		api.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}
	{
		api.POST("/mint-nft", handlers.MintNFT)
		api.POST("/burn-nft", handlers.BurnNFT)
		api.POST("/mint-soulbound", handlers.MintSoulbound)
		api.POST("/log-burn", handlers.LogBurn)
		api.POST("/reconcile", handlers.Reconcile)
	}

	return router
}
