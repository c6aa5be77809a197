// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridebid/internal/http/handlers"
	"ridebid/internal/http/middleware"
	"ridebid/internal/infra"
	"ridebid/internal/logger"
	"ridebid/internal/modules/broadcast"
	"ridebid/internal/modules/reliability"
	"ridebid/internal/modules/ride"
)

type RouterDeps struct {
	Rides       *ride.Service
	Reliability *reliability.Service
	Broadcast   *broadcast.Service
	Hub         *broadcast.Hub
	Tokens      handlers.TokenSaver
	Verifier    infra.TokenVerifier
	Registry    *prometheus.Registry
	Log         logger.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	rideHandler := handlers.NewRideHandler(deps.Rides)
	driverHandler := handlers.NewDriverHandler(deps.Reliability, deps.Broadcast, deps.Tokens)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Log)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/bids", rideHandler.SubmitBid)
	api.POST("/rides/:id/accept", rideHandler.Accept)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.POST("/rides/:id/complete", rideHandler.Complete)

	api.GET("/drivers/:id/rides", driverHandler.OpenRides)
	api.POST("/drivers/:id/decline", driverHandler.Decline)
	api.POST("/drivers/:id/restart", driverHandler.Restart)
	api.POST("/drivers/:id/device", driverHandler.RegisterDevice)
	api.GET("/drivers/:id/eligibility", driverHandler.Eligibility)
	api.GET("/drivers/:id/score", driverHandler.Score)

	ws := r.Group("/ws", middleware.Auth(deps.Verifier))
	ws.GET("/drivers/:id", wsHandler.Connect)

	return r
}
