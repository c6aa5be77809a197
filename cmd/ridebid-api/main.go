// README: Entry point; loads config, wires services, starts hub and HTTP server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ridebid/internal/config"
	httptransport "ridebid/internal/http"
	"ridebid/internal/infra"
	"ridebid/internal/logger"
	"ridebid/internal/maps"
	"ridebid/internal/metrics"
	"ridebid/internal/modules/bidding"
	"ridebid/internal/modules/broadcast"
	"ridebid/internal/modules/reliability"
	"ridebid/internal/modules/ride"
	"ridebid/internal/notify"
)

func main() {
	configPath := flag.String("config", os.Getenv("RIDEBID_CONFIG"), "path to config file (yaml or json)")
	flag.Parse()

	log := logger.New("ridebid-api")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Errorf("firebase.project_id is required")
		os.Exit(1)
	}
	firebaseApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Errorf("firebase init: %v", err)
		os.Exit(1)
	}
	verifier, err := firebaseApp.Verifier(ctx)
	if err != nil {
		log.Errorf("firebase auth: %v", err)
		os.Exit(1)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Errorf("connect postgres: %v", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var estimator maps.Estimator = maps.HaversineEstimator{}
	if cfg.Maps.APIKey != "" {
		route, err := maps.NewRouteEstimator(cfg.Maps.APIKey)
		if err != nil {
			log.Warnf("maps client init failed, using haversine: %v", err)
		} else {
			estimator = route
		}
	}

	engine := reliability.NewEngine(reliability.DefaultEngineConfig(
		cfg.CancelCooldown(), cfg.Reliability.MinTripsForScore,
	))
	relStore := reliability.NewStore(dbPool)
	relSvc := reliability.NewService(relStore, engine, logger.New("reliability"), cfg.Reliability.ScoreWindowDays)

	hub := broadcast.NewHub(logger.New("hub"))
	bcStore := broadcast.NewStore(redisClient)
	bcSvc := broadcast.NewService(bcStore, hub, logger.New("broadcast"), collector, cfg.FreshnessWindow())

	tokens := notify.NewRedisTokenStore(redisClient)
	gateways := []notify.Gateway{broadcast.NewHubGateway(hub)}
	if messagingClient, err := firebaseApp.Messaging(ctx); err != nil {
		log.Warnf("fcm unavailable, push disabled: %v", err)
	} else {
		gateways = append(gateways, notify.NewFCMGateway(messagingClient, tokens, logger.New("fcm")))
	}
	gateway := notify.NewMulti(gateways...)

	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(ride.Deps{
		Store: rideStore,
		Rel:   relSvc,
		Validator: &bidding.Validator{
			MinimumFare:           cfg.Pricing.MinimumFare,
			MaxPerMile:            cfg.Pricing.MaxPerMile,
			FallbackDistanceMiles: cfg.Pricing.FallbackDistanceMiles,
		},
		Caster:    bcSvc,
		Gateway:   gateway,
		Estimator: estimator,
		Metrics:   collector,
		Log:       logger.New("ride"),
		Currency:  cfg.Pricing.Currency,
	})

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:       rideSvc,
		Reliability: relSvc,
		Broadcast:   bcSvc,
		Hub:         hub,
		Tokens:      tokens,
		Verifier:    verifier,
		Registry:    registry,
		Log:         logger.New("http"),
	})

	go hub.Run(ctx)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("server: %v", err)
		os.Exit(1)
	}
}
