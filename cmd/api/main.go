package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tripverse/marketd/internal/alerts"
	"github.com/tripverse/marketd/internal/api"
	"github.com/tripverse/marketd/internal/config"
	"github.com/tripverse/marketd/internal/ledger"
	"github.com/tripverse/marketd/internal/obs"
	"github.com/tripverse/marketd/internal/payments"
	"github.com/tripverse/marketd/internal/service"
	"github.com/tripverse/marketd/internal/store"
)

func main() {
	obs.InitLogger(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Error("config load failed", "err", err)
		return
	}

	var db store.Store
	if cfg.DBSource != "" {
		pg, err := store.NewPostgres(context.Background(), cfg.DBSource)
		if err != nil {
			obs.Logger.Error("unable to connect to database", "err", err)
			return
		}
		db = pg
	} else {
		obs.Logger.Warn("DB_SOURCE not set, using in-memory store (development only)")
		db = store.NewMemory()
	}
	defer db.Close()

	var gateway *payments.Client
	gateway, err = payments.NewClient(cfg)
	if err != nil {
		if !errors.Is(err, config.ErrUnconfigured) {
			obs.Logger.Error("payment gateway setup failed", "err", err)
			return
		}
		obs.Logger.Warn("payment gateway not configured, order and purchase endpoints disabled")
		gateway = nil
	}

	var alerter alerts.Publisher = alerts.Noop{}
	if cfg.NATSURL != "" {
		nc, err := alerts.Connect(cfg.NATSURL)
		if err != nil {
			obs.Logger.Error("unable to connect to NATS", "url", cfg.NATSURL, "err", err)
			return
		}
		defer nc.Close()
		alerter = nc
	}

	// Initialize layers
	led := ledger.New(db)
	listings := service.NewListings(db, led)
	var verifier service.SignatureVerifier
	if gateway != nil {
		verifier = gateway
	}
	purchases := service.NewPurchases(db, led, verifier, alerter, cfg.PurchaseRetryLimit)
	payouts := service.NewPayouts(db)
	applications := service.NewApplications(db)
	handler := api.NewHandler(listings, purchases, payouts, applications, gateway)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/itineraries", handler.CreateListingHandler).Methods("POST")
	apiV1.HandleFunc("/itineraries", handler.ListListingsHandler).Methods("GET")
	apiV1.HandleFunc("/itineraries/{id}", handler.GetListingHandler).Methods("GET")
	apiV1.HandleFunc("/itineraries/{id}", handler.UpdateListingHandler).Methods("PATCH")
	apiV1.HandleFunc("/itineraries/{id}/status", handler.SetListingStatusHandler).Methods("PUT")
	apiV1.HandleFunc("/orders", handler.CreateOrderHandler).Methods("POST")
	apiV1.HandleFunc("/purchases", handler.ConfirmPurchaseHandler).Methods("POST")
	apiV1.HandleFunc("/purchases", handler.ListPurchasesHandler).Methods("GET")
	apiV1.HandleFunc("/purchases/{paymentID}", handler.GetPurchaseHandler).Methods("GET")
	apiV1.HandleFunc("/payouts", handler.CreatePayoutHandler).Methods("POST")
	apiV1.HandleFunc("/payouts", handler.ListPayoutsHandler).Methods("GET")
	apiV1.HandleFunc("/payouts/{id}/status", handler.SetPayoutStatusHandler).Methods("PUT")
	apiV1.HandleFunc("/applications", handler.SubmitApplicationHandler).Methods("POST")
	apiV1.HandleFunc("/applications/{userID}", handler.GetApplicationHandler).Methods("GET")
	apiV1.HandleFunc("/applications/{userID}/status", handler.SetApplicationStatusHandler).Methods("PUT")

	obs.Logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		obs.Logger.Error("server stopped", "err", err)
	}
}
