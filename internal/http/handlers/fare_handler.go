// README: Fare quote handler.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/pricing"
	"schoolride/internal/types"
)

// FareQuoter is satisfied by *pricing.Service.
type FareQuoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (pricing.Quote, error)
}

type FareHandler struct {
	pricing FareQuoter
}

func NewFareHandler(svc FareQuoter) *FareHandler {
	return &FareHandler{pricing: svc}
}

type quoteReq struct {
	SchoolID string       `json:"school_id"`
	Pickup   *types.Point `json:"pickup" binding:"required"`
	Dropoff  *types.Point `json:"dropoff" binding:"required"`
	BaseFare float64      `json:"base_fare" binding:"gte=0"`
}

func (h *FareHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), pricing.QuoteRequest{
		Pickup:   *req.Pickup,
		Dropoff:  *req.Dropoff,
		BaseFare: req.BaseFare,
		SchoolID: types.ID(req.SchoolID),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}
