// README: Entry point; loads config, wires services, starts the HTTP server and the ride generation scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"schoolride/internal/config"
	httptransport "schoolride/internal/http"
	"schoolride/internal/infra"
	"schoolride/internal/maps"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/pricing"
	"schoolride/internal/modules/ride"
	"schoolride/internal/modules/route"
	"schoolride/internal/modules/school"
	"schoolride/internal/modules/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
	}
	if cfg.Auth.DevHeaders {
		log.Warn("auth.dev_headers is on; trusting X-Debug-Uid/X-Debug-Role headers")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()
	if cfg.DB.AutoMigrate {
		if err := infra.Migrate(ctx, dbPool); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}
	defer redisClient.Close()

	// Both sinks are interfaces; leave them nil rather than wrapping a nil *Producer.
	var subEvents subscription.Publisher
	var routeEvents route.Publisher
	producer, err := infra.NewProducer(cfg.NSQ.Addr, log)
	if err != nil {
		log.WithError(err).Fatal("connect nsq")
	}
	if producer != nil {
		defer producer.Stop()
		subEvents, routeEvents = producer, producer
	} else {
		log.Info("no NSQ address configured; lifecycle events disabled")
	}

	var geocoder route.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps init")
		}
		geocoder = g
	}

	schoolStore := school.NewStore(dbPool)

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Pricing.PerKmRate)

	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(rideStore)

	locationSvc := location.NewService(location.NewStore(dbPool, redisClient))

	loc, err := cfg.Generation.Location()
	if err != nil {
		log.WithError(err).Fatal("generation time zone")
	}
	subStore := subscription.NewStore(dbPool)
	generator := subscription.NewGenerator(rideStore, subStore, pricingSvc, loc)
	subSvc := subscription.NewService(
		subStore,
		generator,
		schoolStore,
		subscription.NewRedisLocker(redisClient, cfg.Generation.LeaseTTL),
		subEvents,
		log.WithField("component", "subscription"),
		cfg.Generation,
	)

	routeSvc := route.NewService(route.NewStore(dbPool), schoolStore, locationSvc, geocoder, routeEvents)

	router := httptransport.NewRouter(httptransport.Deps{
		Subscriptions: subSvc,
		Rides:         rideSvc,
		Routes:        routeSvc,
		Locations:     locationSvc,
		Fares:         pricingSvc,
		Verifier:      verifier,
		DevHeaders:    cfg.Auth.DevHeaders,
		Log:           log.WithField("component", "http"),
	})

	go subSvc.RunGenerationTicker(ctx)

	log.WithField("addr", cfg.HTTP.Addr).Info("schoolride api listening")
	if err := httptransport.Serve(ctx, httptransport.NewServer(cfg.HTTP.Addr, router)); err != nil {
		log.WithError(err).Fatal("http server")
	}
	log.Info("shutdown complete")
}
