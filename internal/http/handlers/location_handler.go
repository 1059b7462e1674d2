// README: Driver location and availability handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/location"
	"schoolride/internal/types"
)

// LocationService is satisfied by *location.Service.
type LocationService interface {
	UpdatePosition(ctx context.Context, cmd location.UpdateCommand) error
	SetAvailability(ctx context.Context, driverID types.ID, available bool) error
	NearbyAvailableDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]location.NearbyDriver, error)
}

type LocationHandler struct {
	location LocationService
}

func NewLocationHandler(svc LocationService) *LocationHandler {
	return &LocationHandler{location: svc}
}

type updateLocationReq struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !requireSelfDriver(c, id) {
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	err := h.location.UpdatePosition(c.Request.Context(), location.UpdateCommand{
		DriverID: types.ID(id),
		Position: types.Point{Lat: *req.Latitude, Lng: *req.Longitude},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type availabilityReq struct {
	Available *bool `json:"available" binding:"required"`
}

func (h *LocationHandler) SetAvailability(c *gin.Context) {
	id := c.Param("id")
	if !requireSelfDriver(c, id) {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := h.location.SetAvailability(c.Request.Context(), types.ID(id), *req.Available); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": id, "available": *req.Available})
}

const defaultNearbyRadiusKm = 5

// Nearby lists available drivers around lat/lng, closest first. Admin only.
func (h *LocationHandler) Nearby(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := float64(defaultNearbyRadiusKm)
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	drivers, err := h.location.NearbyAvailableDrivers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if drivers == nil {
		drivers = []location.NearbyDriver{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}
