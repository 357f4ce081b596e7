package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ggeimport/ggeimport/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": util.AppName,
	})
}

// handleGetInfo returns host and process information.
func (s *Server) handleGetInfo(c *gin.Context) {
	resp := gin.H{
		"service": util.AppName,
		"host":    s.host,
		"uptime":  s.now().Sub(s.startedAt).Round(time.Second).String(),
	}
	if usage, err := util.DescribeProcess(); err == nil {
		resp["process"] = usage
	}
	c.JSON(http.StatusOK, resp)
}
