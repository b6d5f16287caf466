package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tripverse/marketd/internal/config"
	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/payments"
	"github.com/tripverse/marketd/internal/service"
	"github.com/tripverse/marketd/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketd_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	listings     *service.Listings
	purchases    *service.Purchases
	payouts      *service.Payouts
	applications *service.Applications
	gateway      *payments.Client // nil when the key pair is not configured
}

func NewHandler(
	listings *service.Listings,
	purchases *service.Purchases,
	payouts *service.Payouts,
	applications *service.Applications,
	gateway *payments.Client,
) *Handler {
	return &Handler{
		listings:     listings,
		purchases:    purchases,
		payouts:      payouts,
		applications: applications,
		gateway:      gateway,
	}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/itineraries"))
	defer timer.ObserveDuration()

	var in service.CreateListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/itineraries")
		return
	}

	listing, err := h.listings.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondWithError(w, http.StatusConflict, "Listing ID issuance contended, please retry", "POST", "/itineraries")
			return
		}
		h.respondServiceError(w, err, "POST", "/itineraries")
		return
	}
	respondWithJSON(w, http.StatusCreated, listing, "POST", "/itineraries")
}

func (h *Handler) ListListingsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		listings []domain.Listing
		err      error
	)
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		listings, err = h.listings.ListByOwner(r.Context(), owner)
	} else {
		listings, err = h.listings.ListPublished(r.Context())
	}
	if err != nil {
		h.respondServiceError(w, err, "GET", "/itineraries")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	respondWithJSON(w, http.StatusOK, listings, "GET", "/itineraries")
}

func (h *Handler) GetListingHandler(w http.ResponseWriter, r *http.Request) {
	key := domain.ListingKey(mux.Vars(r)["id"])
	listing, err := h.listings.Get(r.Context(), key)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/itineraries/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, listing, "GET", "/itineraries/{id}")
}

func (h *Handler) UpdateListingHandler(w http.ResponseWriter, r *http.Request) {
	key := domain.ListingKey(mux.Vars(r)["id"])

	var in service.UpdateListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PATCH", "/itineraries/{id}")
		return
	}

	listing, err := h.listings.Update(r.Context(), key, in)
	if err != nil {
		h.respondServiceError(w, err, "PATCH", "/itineraries/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, listing, "PATCH", "/itineraries/{id}")
}

func (h *Handler) SetListingStatusHandler(w http.ResponseWriter, r *http.Request) {
	key := domain.ListingKey(mux.Vars(r)["id"])

	var body struct {
		Status domain.ListingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/itineraries/{id}/status")
		return
	}

	listing, err := h.listings.SetStatus(r.Context(), key, body.Status)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/itineraries/{id}/status")
		return
	}
	respondWithJSON(w, http.StatusOK, listing, "PUT", "/itineraries/{id}/status")
}

func (h *Handler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Payment gateway not configured", "POST", "/orders")
		return
	}

	var body struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/orders")
		return
	}
	if body.Amount <= 0 || len(body.Currency) != 3 {
		respondWithError(w, http.StatusUnprocessableEntity, "Positive amount and 3-letter currency required", "POST", "/orders")
		return
	}

	order, err := h.gateway.CreateOrder(r.Context(), body.Amount, body.Currency)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "Order creation failed", "POST", "/orders")
		return
	}
	respondWithJSON(w, http.StatusCreated, order, "POST", "/orders")
}

// ConfirmPurchaseHandler is the payment-confirmation callback. Its error
// mapping splits "please retry" from "contact support": contention after the
// retry budget is 409 and safe to redeliver, a vanished listing after a
// captured payment is 500 with an operator incident already on the wire.
func (h *Handler) ConfirmPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/purchases"))
	defer timer.ObserveDuration()

	if h.gateway == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Payment gateway not configured", "POST", "/purchases")
		return
	}

	var in service.ConfirmPurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/purchases")
		return
	}

	result, err := h.purchases.Confirm(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadSignature):
			respondWithError(w, http.StatusBadRequest, "Signature verification failed", "POST", "/purchases")
		case errors.Is(err, store.ErrConflict):
			respondWithError(w, http.StatusConflict, "Ledger busy, redeliver the callback", "POST", "/purchases")
		case errors.Is(err, store.ErrNotFound):
			respondWithError(w, http.StatusInternalServerError, "Payment captured but purchase not recorded, contact support", "POST", "/purchases")
		default:
			h.respondServiceError(w, err, "POST", "/purchases")
		}
		return
	}

	if result.Replayed {
		respondWithJSON(w, http.StatusOK, result, "POST", "/purchases")
		return
	}
	respondWithJSON(w, http.StatusCreated, result, "POST", "/purchases")
}

func (h *Handler) GetPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.purchases.Get(r.Context(), mux.Vars(r)["paymentID"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/purchases/{paymentID}")
		return
	}
	respondWithJSON(w, http.StatusOK, p, "GET", "/purchases/{paymentID}")
}

func (h *Handler) ListPurchasesHandler(w http.ResponseWriter, r *http.Request) {
	buyer := r.URL.Query().Get("buyer_id")
	if buyer == "" {
		respondWithError(w, http.StatusBadRequest, "buyer_id query parameter required", "GET", "/purchases")
		return
	}
	purchases, err := h.purchases.ListByBuyer(r.Context(), buyer)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/purchases")
		return
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}
	respondWithJSON(w, http.StatusOK, purchases, "GET", "/purchases")
}

func (h *Handler) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var in service.PayoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/payouts")
		return
	}
	req, err := h.payouts.Request(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/payouts")
		return
	}
	respondWithJSON(w, http.StatusCreated, req, "POST", "/payouts")
}

func (h *Handler) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester_id")
	if requester == "" {
		respondWithError(w, http.StatusBadRequest, "requester_id query parameter required", "GET", "/payouts")
		return
	}
	reqs, err := h.payouts.ListByRequester(r.Context(), requester)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/payouts")
		return
	}
	if reqs == nil {
		reqs = []domain.PayoutRequest{}
	}
	respondWithJSON(w, http.StatusOK, reqs, "GET", "/payouts")
}

func (h *Handler) SetPayoutStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.PayoutStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/payouts/{id}/status")
		return
	}
	req, err := h.payouts.SetStatus(r.Context(), mux.Vars(r)["id"], body.Status)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/payouts/{id}/status")
		return
	}
	respondWithJSON(w, http.StatusOK, req, "PUT", "/payouts/{id}/status")
}

func (h *Handler) SubmitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	var in service.ApplicationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/applications")
		return
	}
	app, err := h.applications.Submit(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/applications")
		return
	}
	respondWithJSON(w, http.StatusCreated, app, "POST", "/applications")
}

func (h *Handler) GetApplicationHandler(w http.ResponseWriter, r *http.Request) {
	app, err := h.applications.Get(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/applications/{userID}")
		return
	}
	respondWithJSON(w, http.StatusOK, app, "GET", "/applications/{userID}")
}

func (h *Handler) SetApplicationStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.ApplicationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/applications/{userID}/status")
		return
	}
	app, err := h.applications.SetStatus(r.Context(), mux.Vars(r)["userID"], body.Status)
	if err != nil {
		h.respondServiceError(w, err, "PUT", "/applications/{userID}/status")
		return
	}
	respondWithJSON(w, http.StatusOK, app, "PUT", "/applications/{userID}/status")
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, store.ErrConflict):
		respondWithError(w, http.StatusConflict, "Store contention, please retry", method, endpoint)
	case errors.Is(err, config.ErrUnconfigured):
		respondWithError(w, http.StatusServiceUnavailable, "Service not configured", method, endpoint)
	case errors.Is(err, service.ErrNotOwner):
		respondWithError(w, http.StatusForbidden, "Forbidden", method, endpoint)
	case errors.Is(err, service.ErrBadSignature):
		respondWithError(w, http.StatusBadRequest, "Signature verification failed", method, endpoint)
	case errors.Is(err, service.ErrMissingField),
		errors.Is(err, service.ErrTitleTooShort),
		errors.Is(err, service.ErrInvalidLink),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrUnknownStatus):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
