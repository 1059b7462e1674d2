// README: Route handlers: proposals, optimisation, driver accept/reject.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/http/middleware"
	"schoolride/internal/modules/route"
	"schoolride/internal/types"
)

// RouteService is satisfied by *route.Service.
type RouteService interface {
	Create(ctx context.Context, cmd route.CreateCommand) (*route.Route, error)
	Optimize(ctx context.Context, cmd route.OptimizeCommand) (*route.Route, error)
	Preview(ctx context.Context, cmd route.OptimizeCommand) (route.Plan, error)
	Get(ctx context.Context, id types.ID) (*route.Route, error)
	List(ctx context.Context, f route.ListFilter) ([]*route.Route, error)
	ListProposed(ctx context.Context, driverID types.ID) ([]*route.Route, error)
	Update(ctx context.Context, id types.ID, patch route.UpdatePatch) (*route.Route, error)
	Delete(ctx context.Context, id types.ID) error
	Accept(ctx context.Context, id, driverID types.ID) (*route.Route, error)
	Reject(ctx context.Context, id, driverID types.ID) (*route.Route, error)
}

type RouteHandler struct {
	routes RouteService
}

func NewRouteHandler(svc RouteService) *RouteHandler {
	return &RouteHandler{routes: svc}
}

type createRouteReq struct {
	SchoolID                 string           `json:"school_id"`
	ProposedDriverID         string           `json:"proposed_driver_id"`
	Name                     string           `json:"name"`
	Description              string           `json:"description"`
	Waypoints                []route.Waypoint `json:"waypoints"`
	EstimatedDistanceKm      *float64         `json:"estimated_distance_km"`
	EstimatedDurationMinutes *int             `json:"estimated_duration_minutes"`
}

func (h *RouteHandler) Create(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req createRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	r, err := h.routes.Create(c.Request.Context(), route.CreateCommand{
		SchoolID:                 types.ID(req.SchoolID),
		ProposedDriverID:         types.ID(req.ProposedDriverID),
		Name:                     req.Name,
		Description:              req.Description,
		Waypoints:                req.Waypoints,
		EstimatedDistanceKm:      req.EstimatedDistanceKm,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// optimizeRouteReq accepts driver_id as a legacy alias of proposed_driver_id.
type optimizeRouteReq struct {
	SchoolID         string           `json:"school_id"`
	ProposedDriverID string           `json:"proposed_driver_id"`
	DriverID         string           `json:"driver_id"`
	Waypoints        []route.Waypoint `json:"waypoints"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
}

func (r optimizeRouteReq) command() route.OptimizeCommand {
	driver := r.ProposedDriverID
	if driver == "" {
		driver = r.DriverID
	}
	return route.OptimizeCommand{
		SchoolID:    types.ID(r.SchoolID),
		DriverID:    types.ID(driver),
		Waypoints:   r.Waypoints,
		Name:        r.Name,
		Description: r.Description,
	}
}

func (h *RouteHandler) Optimize(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req optimizeRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	r, err := h.routes.Optimize(c.Request.Context(), req.command())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RouteHandler) Preview(c *gin.Context) {
	var req optimizeRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	plan, err := h.routes.Preview(c.Request.Context(), req.command())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}

func (h *RouteHandler) List(c *gin.Context) {
	routes, err := h.routes.List(c.Request.Context(), route.ListFilter{
		SchoolID:   types.ID(c.Query("school_id")),
		DriverID:   types.ID(c.Query("driver_id")),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if routes == nil {
		routes = []*route.Route{}
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": routes})
}

func (h *RouteHandler) Get(c *gin.Context) {
	r, err := h.routes.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type updateRouteReq struct {
	SchoolID    *string           `json:"school_id"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Waypoints   *[]route.Waypoint `json:"waypoints"`
	IsActive    *bool             `json:"is_active"`
}

func (h *RouteHandler) Update(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req updateRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	patch := route.UpdatePatch{
		Name:        req.Name,
		Description: req.Description,
		Waypoints:   req.Waypoints,
		IsActive:    req.IsActive,
	}
	if req.SchoolID != nil {
		id := types.ID(*req.SchoolID)
		patch.SchoolID = &id
	}
	r, err := h.routes.Update(c.Request.Context(), types.ID(c.Param("id")), patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RouteHandler) Delete(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	if err := h.routes.Delete(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RouteHandler) ListProposed(c *gin.Context) {
	id := c.Param("id")
	if !requireSelfDriver(c, id) {
		return
	}
	routes, err := h.routes.ListProposed(c.Request.Context(), types.ID(id))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if routes == nil {
		routes = []*route.Route{}
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": routes})
}

func (h *RouteHandler) Accept(c *gin.Context) {
	h.respond(c, h.routes.Accept)
}

func (h *RouteHandler) Reject(c *gin.Context) {
	h.respond(c, h.routes.Reject)
}

func (h *RouteHandler) respond(c *gin.Context, fn func(context.Context, types.ID, types.ID) (*route.Route, error)) {
	if middleware.CallerRole(c) != types.RoleDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return
	}
	r, err := fn(c.Request.Context(), types.ID(c.Param("id")), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
