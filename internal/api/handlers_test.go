package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripverse/marketd/internal/config"
	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/ledger"
	"github.com/tripverse/marketd/internal/payments"
	"github.com/tripverse/marketd/internal/service"
	"github.com/tripverse/marketd/internal/store"
)

const testKeySecret = "test-secret"

// conflictStore fails every transaction, to exercise the 409 mapping.
type conflictStore struct {
	store.Store
}

func (conflictStore) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.ErrConflict
}

func newTestRouter(t *testing.T, db store.Store) *mux.Router {
	t.Helper()
	gateway, err := payments.NewClient(&config.Config{
		RazorpayKeyID:     "rzp_test_key",
		RazorpayKeySecret: testKeySecret,
	})
	require.NoError(t, err)

	led := ledger.New(db)
	listings := service.NewListings(db, led)
	purchases := service.NewPurchases(db, led, gateway, nil, 3)
	payouts := service.NewPayouts(db)
	applications := service.NewApplications(db)
	handler := NewHandler(listings, purchases, payouts, applications, gateway)

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/itineraries", handler.CreateListingHandler).Methods("POST")
	apiV1.HandleFunc("/itineraries", handler.ListListingsHandler).Methods("GET")
	apiV1.HandleFunc("/itineraries/{id}", handler.GetListingHandler).Methods("GET")
	apiV1.HandleFunc("/itineraries/{id}", handler.UpdateListingHandler).Methods("PATCH")
	apiV1.HandleFunc("/itineraries/{id}/status", handler.SetListingStatusHandler).Methods("PUT")
	apiV1.HandleFunc("/purchases", handler.ConfirmPurchaseHandler).Methods("POST")
	apiV1.HandleFunc("/purchases/{paymentID}", handler.GetPurchaseHandler).Methods("GET")
	apiV1.HandleFunc("/payouts", handler.CreatePayoutHandler).Methods("POST")
	apiV1.HandleFunc("/payouts/{id}/status", handler.SetPayoutStatusHandler).Methods("PUT")
	apiV1.HandleFunc("/applications", handler.SubmitApplicationHandler).Methods("POST")
	apiV1.HandleFunc("/applications/{userID}", handler.GetApplicationHandler).Methods("GET")
	return r
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())
	w := doJSON(t, r, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateListingEndpoint(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())

	w := doJSON(t, r, "POST", "/api/v1/itineraries", map[string]any{
		"owner_id": "creator-1",
		"title":    "Five days in Ladakh",
		"link":     "https://example.com/ladakh",
		"price":    1500,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var listing domain.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, int64(1), listing.PublicID)
	assert.Equal(t, domain.ListingDraft, listing.Status)
}

func TestCreateListingValidationStatus(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())

	w := doJSON(t, r, "POST", "/api/v1/itineraries", map[string]any{
		"owner_id": "creator-1",
		"title":    "shrt",
		"link":     "https://example.com/x",
		"price":    100,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateListingConflictStatus(t *testing.T) {
	r := newTestRouter(t, conflictStore{store.NewMemory()})

	w := doJSON(t, r, "POST", "/api/v1/itineraries", map[string]any{
		"owner_id": "creator-1",
		"title":    "Five days in Ladakh",
		"link":     "https://example.com/ladakh",
		"price":    1500,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetListingNotFoundStatus(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())
	w := doJSON(t, r, "GET", "/api/v1/itineraries/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateListingForbiddenStatus(t *testing.T) {
	db := store.NewMemory()
	r := newTestRouter(t, db)

	w := doJSON(t, r, "POST", "/api/v1/itineraries", map[string]any{
		"owner_id": "creator-1",
		"title":    "Five days in Ladakh",
		"link":     "https://example.com/ladakh",
		"price":    1500,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var listing domain.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))

	id := listing.StoreKey[len(domain.ListingPrefix):]
	w = doJSON(t, r, "PATCH", "/api/v1/itineraries/"+id, map[string]any{
		"owner_id": "intruder",
		"price":    9000,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConfirmPurchaseEndpoint(t *testing.T) {
	db := store.NewMemory()
	r := newTestRouter(t, db)

	listing := domain.Listing{
		StoreKey: domain.ListingKey("trip-1"),
		PublicID: 1,
		OwnerID:  "creator-1",
		Title:    "Backwaters by houseboat",
		Link:     "https://example.com/backwaters",
		Price:    1500,
		Status:   domain.ListingPublished,
	}
	require.NoError(t, db.Put(context.Background(), listing.StoreKey, listing))

	body := map[string]any{
		"payment_id":  "pay_1",
		"order_id":    "order_1",
		"signature":   sign("order_1", "pay_1"),
		"listing_key": listing.StoreKey,
		"buyer_id":    "buyer-1",
	}
	w := doJSON(t, r, "POST", "/api/v1/purchases", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var result service.ConfirmResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, int64(1), result.Tally.SalesCount)
	assert.False(t, result.Replayed)

	// Redelivery returns 200 and counts nothing.
	w = doJSON(t, r, "POST", "/api/v1/purchases", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Replayed)

	var stored domain.Listing
	require.NoError(t, db.Get(context.Background(), listing.StoreKey, &stored))
	assert.Equal(t, int64(1), stored.SalesCount)
	assert.Equal(t, int64(1500), stored.Earnings)
}

func TestConfirmPurchaseBadSignatureStatus(t *testing.T) {
	db := store.NewMemory()
	r := newTestRouter(t, db)

	listing := domain.Listing{StoreKey: domain.ListingKey("trip-1"), Price: 1500, OwnerID: "c"}
	require.NoError(t, db.Put(context.Background(), listing.StoreKey, listing))

	w := doJSON(t, r, "POST", "/api/v1/purchases", map[string]any{
		"payment_id":  "pay_1",
		"order_id":    "order_1",
		"signature":   "forged",
		"listing_key": listing.StoreKey,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmPurchaseMissingListingStatus(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())

	w := doJSON(t, r, "POST", "/api/v1/purchases", map[string]any{
		"payment_id":  "pay_1",
		"order_id":    "order_1",
		"signature":   sign("order_1", "pay_1"),
		"listing_key": domain.ListingKey("gone"),
	})
	// Payment already captured: this maps to the support path, not 404.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPayoutEndpoints(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())

	w := doJSON(t, r, "POST", "/api/v1/payouts", map[string]any{
		"requester_id":   "creator-1",
		"requester_name": "Asha",
		"account_number": "001122334455",
		"ifsc_code":      "HDFC0001234",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var req domain.PayoutRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))
	assert.Equal(t, domain.PayoutPending, req.Status)

	w = doJSON(t, r, "PUT", "/api/v1/payouts/"+req.ID+"/status", map[string]any{"status": "processed"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "PUT", "/api/v1/payouts/"+req.ID+"/status", map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestApplicationEndpoints(t *testing.T) {
	r := newTestRouter(t, store.NewMemory())

	w := doJSON(t, r, "POST", "/api/v1/applications", map[string]any{
		"user_id":           "user-1",
		"full_name":         "Asha Nair",
		"email":             "asha@example.com",
		"social_links":      "instagram.com/asha.travels",
		"verification_code": "X7K2P9",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, "GET", "/api/v1/applications/user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var app domain.CreatorApplication
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Equal(t, domain.ApplicationPending, app.Status)
}
