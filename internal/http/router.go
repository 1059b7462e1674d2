// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"schoolride/internal/http/handlers"
	"schoolride/internal/http/middleware"
	"schoolride/internal/infra"
)

// Deps carries everything the router needs. DevHeaders replaces token
// verification with the debug caller headers; it is never implied by a nil
// Verifier.
type Deps struct {
	Subscriptions handlers.SubscriptionService
	Rides         handlers.RideReader
	Routes        handlers.RouteService
	Locations     handlers.LocationService
	Fares         handlers.FareQuoter
	Verifier      infra.TokenVerifier
	DevHeaders    bool
	Log           logrus.FieldLogger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	auth := middleware.Auth(deps.Verifier)
	if deps.DevHeaders {
		auth = middleware.DevAuth()
	}
	api := r.Group("/api")
	api.Use(auth, middleware.Logging(deps.Log))

	subs := handlers.NewSubscriptionHandler(deps.Subscriptions, deps.Rides)
	api.POST("/subscriptions", subs.Create)
	api.GET("/subscriptions", subs.List)
	api.GET("/subscriptions/:id", subs.Get)
	api.PATCH("/subscriptions/:id", subs.Update)
	api.POST("/subscriptions/:id/pause", subs.Pause)
	api.POST("/subscriptions/:id/resume", subs.Resume)
	api.POST("/subscriptions/:id/cancel", subs.Cancel)
	api.POST("/subscriptions/:id/generate", subs.Generate)
	api.GET("/subscriptions/:id/rides", subs.ListRides)
	api.GET("/rides/:id", subs.GetRide)

	routes := handlers.NewRouteHandler(deps.Routes)
	api.POST("/routes", routes.Create)
	api.POST("/routes/optimize", routes.Optimize)
	api.POST("/routes/preview", routes.Preview)
	api.GET("/routes", routes.List)
	api.GET("/routes/:id", routes.Get)
	api.PATCH("/routes/:id", routes.Update)
	api.DELETE("/routes/:id", routes.Delete)
	api.POST("/routes/:id/accept", routes.Accept)
	api.POST("/routes/:id/reject", routes.Reject)

	locations := handlers.NewLocationHandler(deps.Locations)
	api.GET("/drivers/nearby", locations.Nearby)
	api.PUT("/drivers/:id/location", locations.Update)
	api.PUT("/drivers/:id/availability", locations.SetAvailability)
	api.GET("/drivers/:id/proposed-routes", routes.ListProposed)

	fares := handlers.NewFareHandler(deps.Fares)
	api.POST("/fares/quote", fares.Quote)

	return r
}
