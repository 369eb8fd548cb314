package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the API engine with every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterOrdersRoutes(r, cfg)
	RegisterPaymentsRoutes(r, cfg)

	return r
}
