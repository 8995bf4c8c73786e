package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farelens/farelens/models"
)

// Searcher is the scraping engine as the API sees it. *scraper.Scraper
// implements it.
type Searcher interface {
	Search(ctx context.Context, criteria models.SearchCriteria) *models.ScrapeOutcome
	Stats() models.PoolStats
}

// Search returns a handler for POST /api/v1/search.
//
// The scraper folds failures into the outcome, so the handler only binds
// the criteria and picks the HTTP status: 200 on success, otherwise
// whatever the outcome's error code maps to. Cache hits and misses are
// stamped on the outcome by the scraper itself.
func Search(sc Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var criteria models.SearchCriteria
		if err := c.ShouldBindJSON(&criteria); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		outcome := sc.Search(c.Request.Context(), criteria)
		if !outcome.Success {
			c.JSON(statusForOutcome(outcome), outcome)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// statusForOutcome translates a failed outcome's error code to an HTTP
// status code. Codes caused by the target site misbehaving map to 502.
func statusForOutcome(out *models.ScrapeOutcome) int {
	if out.Error == nil {
		return http.StatusInternalServerError
	}
	switch out.Error.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeElementNotFound,
		models.ErrCodeSearchFailed, models.ErrCodeExtraction:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
