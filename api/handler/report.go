package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farelens/farelens/selector"
)

// Report returns a handler for GET /api/v1/report.
//
// The payload combines the aggregated health report with the retained
// alert history so operators get the full picture in one call.
func Report(hm *selector.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"report": hm.Report(),
			"alerts": hm.AllAlerts(),
		})
	}
}

// ClearAlerts returns a handler for POST /api/v1/alerts/clear.
//
// With ?page=<type> only that page's alert history is dropped; without
// it the whole history goes. Health records stay either way.
func ClearAlerts(hm *selector.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if page := c.Query("page"); page != "" {
			hm.ClearAlerts(page)
			c.JSON(http.StatusOK, gin.H{"cleared": page})
			return
		}
		hm.ClearAllAlerts()
		c.JSON(http.StatusOK, gin.H{"cleared": "all"})
	}
}
