// README: Subscription handlers: create, read, sparse update, lifecycle actions and manual generation.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolride/internal/http/middleware"
	"schoolride/internal/modules/ride"
	"schoolride/internal/modules/subscription"
	"schoolride/internal/types"
)

// SubscriptionService is satisfied by *subscription.Service.
type SubscriptionService interface {
	Create(ctx context.Context, cmd subscription.CreateCommand) (*subscription.Subscription, int, error)
	Get(ctx context.Context, id types.ID, actor types.Actor) (*subscription.Subscription, error)
	ListForParent(ctx context.Context, parentID types.ID, activeOnly bool) ([]*subscription.Subscription, error)
	Update(ctx context.Context, id types.ID, patch subscription.UpdatePatch, actor types.Actor) (*subscription.Subscription, int, error)
	Pause(ctx context.Context, id types.ID, actor types.Actor) (*subscription.Subscription, error)
	Resume(ctx context.Context, id types.ID, actor types.Actor) (*subscription.Subscription, int, error)
	Cancel(ctx context.Context, id types.ID, actor types.Actor) (*subscription.Subscription, error)
	Generate(ctx context.Context, id types.ID, upTo *time.Time, actor types.Actor) (int, error)
}

// RideReader is satisfied by *ride.Service.
type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListBySubscription(ctx context.Context, subscriptionID types.ID) ([]*ride.Ride, error)
}

type SubscriptionHandler struct {
	subs  SubscriptionService
	rides RideReader
}

func NewSubscriptionHandler(subs SubscriptionService, rides RideReader) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, rides: rides}
}

type createSubscriptionReq struct {
	ParentID          string           `json:"parent_id"`
	KidID             string           `json:"kid_id"`
	SchoolID          string           `json:"school_id"`
	SubscriptionType  string           `json:"subscription_type"`
	Status            string           `json:"status"`
	StartDate         string           `json:"start_date"`
	EndDate           *string          `json:"end_date"`
	DaysOfWeek        []int            `json:"days_of_week"`
	PickupTime        *types.TimeOfDay `json:"pickup_time"`
	DropoffTime       *types.TimeOfDay `json:"dropoff_time"`
	PickupAddress     string           `json:"pickup_address"`
	Pickup            types.Point      `json:"pickup"`
	DropoffAddress    string           `json:"dropoff_address"`
	Dropoff           types.Point      `json:"dropoff"`
	BaseFare          float64          `json:"base_fare"`
	DistanceFare      *float64         `json:"distance_fare"`
	TotalFarePerRide  float64          `json:"total_fare_per_ride"`
	SubscriptionTotal *float64         `json:"subscription_total"`
	ParentNotes       string           `json:"parent_notes"`
	AutoGenerateRides *bool            `json:"auto_generate_rides"`
}

type subscriptionResp struct {
	Subscription    *subscription.Subscription `json:"subscription"`
	RidesGenerated  int                        `json:"rides_generated"`
	GenerationError string                     `json:"generation_error,omitempty"`
}

func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req createSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	actor := middleware.Caller(c)
	parentID := actor.ID
	if req.ParentID != "" && req.ParentID != string(actor.ID) {
		if actor.Role != types.RoleAdmin {
			writeError(c, http.StatusForbidden, "forbidden: parent_id does not match authenticated user")
			return
		}
		parentID = types.ID(req.ParentID)
	}
	if req.PickupTime == nil {
		writeError(c, http.StatusBadRequest, "pickup_time is required")
		return
	}
	start, err := types.ParseDate(req.StartDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "start_date: "+err.Error())
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "end_date: "+err.Error())
		return
	}

	sub, n, err := h.subs.Create(c.Request.Context(), subscription.CreateCommand{
		ParentID:          parentID,
		KidID:             types.ID(req.KidID),
		SchoolID:          types.ID(req.SchoolID),
		Type:              subscription.Type(req.SubscriptionType),
		Status:            subscription.Status(req.Status),
		StartDate:         start,
		EndDate:           end,
		DaysOfWeek:        req.DaysOfWeek,
		PickupTime:        *req.PickupTime,
		DropoffTime:       req.DropoffTime,
		PickupAddress:     req.PickupAddress,
		Pickup:            req.Pickup,
		DropoffAddress:    req.DropoffAddress,
		Dropoff:           req.Dropoff,
		BaseFare:          req.BaseFare,
		DistanceFare:      req.DistanceFare,
		TotalFarePerRide:  req.TotalFarePerRide,
		SubscriptionTotal: req.SubscriptionTotal,
		ParentNotes:       req.ParentNotes,
		AutoGenerateRides: req.AutoGenerateRides,
	})
	if sub != nil && errors.Is(err, subscription.ErrInitialGeneration) {
		_ = c.Error(err)
		writeJSON(c, http.StatusCreated, subscriptionResp{Subscription: sub, RidesGenerated: n, GenerationError: err.Error()})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, subscriptionResp{Subscription: sub, RidesGenerated: n})
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	actor := middleware.Caller(c)
	parentID := actor.ID
	if q := c.Query("parent_id"); q != "" && actor.Role == types.RoleAdmin {
		parentID = types.ID(q)
	}
	subs, err := h.subs.ListForParent(c.Request.Context(), parentID, c.Query("active") == "true")
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if subs == nil {
		subs = []*subscription.Subscription{}
	}
	writeJSON(c, http.StatusOK, gin.H{"subscriptions": subs})
}

func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.subs.Get(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sub)
}

type updateSubscriptionReq struct {
	Status            *string          `json:"status"`
	EndDate           *string          `json:"end_date"`
	DaysOfWeek        *[]int           `json:"days_of_week"`
	PickupTime        *types.TimeOfDay `json:"pickup_time"`
	DropoffTime       *types.TimeOfDay `json:"dropoff_time"`
	PickupAddress     *string          `json:"pickup_address"`
	Pickup            *types.Point     `json:"pickup"`
	DropoffAddress    *string          `json:"dropoff_address"`
	Dropoff           *types.Point     `json:"dropoff"`
	BaseFare          *float64         `json:"base_fare"`
	DistanceFare      *float64         `json:"distance_fare"`
	TotalFarePerRide  *float64         `json:"total_fare_per_ride"`
	SubscriptionTotal *float64         `json:"subscription_total"`
	ParentNotes       *string          `json:"parent_notes"`
	AutoGenerateRides *bool            `json:"auto_generate_rides"`
}

func (h *SubscriptionHandler) Update(c *gin.Context) {
	var req updateSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "end_date: "+err.Error())
		return
	}
	patch := subscription.UpdatePatch{
		EndDate:           end,
		DaysOfWeek:        req.DaysOfWeek,
		PickupTime:        req.PickupTime,
		DropoffTime:       req.DropoffTime,
		PickupAddress:     req.PickupAddress,
		Pickup:            req.Pickup,
		DropoffAddress:    req.DropoffAddress,
		Dropoff:           req.Dropoff,
		BaseFare:          req.BaseFare,
		DistanceFare:      req.DistanceFare,
		TotalFarePerRide:  req.TotalFarePerRide,
		SubscriptionTotal: req.SubscriptionTotal,
		ParentNotes:       req.ParentNotes,
		AutoGenerateRides: req.AutoGenerateRides,
	}
	if req.Status != nil {
		st := subscription.Status(*req.Status)
		patch.Status = &st
	}

	sub, n, err := h.subs.Update(c.Request.Context(), types.ID(c.Param("id")), patch, middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, subscriptionResp{Subscription: sub, RidesGenerated: n})
}

func (h *SubscriptionHandler) Pause(c *gin.Context) {
	sub, err := h.subs.Pause(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, subscriptionResp{Subscription: sub})
}

func (h *SubscriptionHandler) Resume(c *gin.Context) {
	sub, n, err := h.subs.Resume(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, subscriptionResp{Subscription: sub, RidesGenerated: n})
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	sub, err := h.subs.Cancel(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, subscriptionResp{Subscription: sub})
}

// Generate triggers generation up to the optional up_to query date
// (defaults to the service horizon).
func (h *SubscriptionHandler) Generate(c *gin.Context) {
	var upTo *time.Time
	if v := c.Query("up_to"); v != "" {
		d, err := types.ParseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "up_to: "+err.Error())
			return
		}
		upTo = &d
	}
	n, err := h.subs.Generate(c.Request.Context(), types.ID(c.Param("id")), upTo, middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"subscription_id": c.Param("id"), "rides_generated": n})
}

func (h *SubscriptionHandler) ListRides(c *gin.Context) {
	sub, err := h.subs.Get(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	rides, err := h.rides.ListBySubscription(c.Request.Context(), sub.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if rides == nil {
		rides = []*ride.Ride{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *SubscriptionHandler) GetRide(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !middleware.Caller(c).Owns(r.ParentID) {
		writeServiceError(c, ride.ErrNotFound)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func parseOptionalDate(v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	d, err := types.ParseDate(*v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
