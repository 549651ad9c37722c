package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-engine/internal/observability"
)

// NewRouter wires the API routes. The rate limiter and request timeout apply
// to /weather only; limiter may be nil.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/sources", h.GetSources).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(limiter))
	weatherRouter.Use(TimeoutMiddleware(requestTimeout))
	weatherRouter.HandleFunc("/current", h.GetCurrent).Methods("GET")
	weatherRouter.HandleFunc("/daily", h.GetDaily).Methods("GET")
	weatherRouter.HandleFunc("/hourly", h.GetHourly).Methods("GET")
	return router
}
