package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statsHandler serves the hub's counters on /stats and a liveness
// probe on /healthz.
func statsHandler(h *hub) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/stats", func(c *gin.Context) {
		st := h.stats()
		c.JSON(http.StatusOK, gin.H{
			"connections": len(st.Subscribers),
			"subscribers": st.Subscribers,
			"published":   st.Published,
			"dropped":     st.Dropped,
		})
	})

	return r
}
