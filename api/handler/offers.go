package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/store"
)

// Offers returns a handler for GET /api/v1/offers.
//
// Query parameters, all optional: origin, destination, max_price, limit.
// Airport codes are matched case-insensitively. Responds 503 when the
// deployment runs without a store.
func Offers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeStore,
					Message: "offer persistence is disabled on this deployment",
				},
			})
			return
		}

		filter := store.OfferFilter{
			Origin:      c.Query("origin"),
			Destination: c.Query("destination"),
		}
		if raw := c.Query("max_price"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				badQueryParam(c, "max_price", raw)
				return
			}
			filter.MaxPrice = v
		}
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				badQueryParam(c, "limit", raw)
				return
			}
			filter.Limit = v
		}

		offers, err := st.ListOffers(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeStore,
					Message: err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"offers": offers,
			"count":  len(offers),
		})
	}
}

func badQueryParam(c *gin.Context, name, value string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: "invalid " + name + " value: " + strconv.Quote(value),
		},
	})
}
