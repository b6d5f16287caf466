package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tripverse/marketd/internal/alerts"
	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/ledger"
	"github.com/tripverse/marketd/internal/obs"
	"github.com/tripverse/marketd/internal/store"
)

// SignatureVerifier checks a gateway checkout callback signature.
type SignatureVerifier interface {
	VerifySignature(orderID, paymentID, signature string) bool
}

type Purchases struct {
	store      store.Store
	ledger     *ledger.Ledger
	verifier   SignatureVerifier
	alerts     alerts.Publisher
	retryLimit int
}

func NewPurchases(s store.Store, l *ledger.Ledger, v SignatureVerifier, a alerts.Publisher, retryLimit int) *Purchases {
	if a == nil {
		a = alerts.Noop{}
	}
	return &Purchases{store: s, ledger: l, verifier: v, alerts: a, retryLimit: retryLimit}
}

type ConfirmPurchaseInput struct {
	PaymentID  string `json:"payment_id"`
	OrderID    string `json:"order_id"`
	Signature  string `json:"signature"`
	ListingKey string `json:"listing_key"`
	BuyerID    string `json:"buyer_id"`
}

type ConfirmResult struct {
	Purchase domain.Purchase `json:"purchase"`
	Tally    ledger.Tally    `json:"tally"`
	// Replayed is true when the payment ID was already recorded and this
	// delivery counted nothing.
	Replayed bool `json:"replayed"`
}

// Confirm is the payment-confirmation handler's entry point. The gateway
// delivers callbacks at-least-once; the payment ID keys the purchase record,
// so a redelivery is a no-op replay.
//
// By the time Confirm runs the buyer has paid, which shapes the error
// policy: contention is retried up to the configured limit, and anything
// that still fails is escalated to the operator alert bus before being
// returned. A paid purchase that could not be recorded must never vanish
// silently.
func (s *Purchases) Confirm(ctx context.Context, in ConfirmPurchaseInput) (*ConfirmResult, error) {
	if in.PaymentID == "" || in.OrderID == "" || in.ListingKey == "" {
		return nil, fmt.Errorf("payment_id, order_id, listing_key: %w", ErrMissingField)
	}
	if !s.verifier.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		return nil, ErrBadSignature
	}

	var listing domain.Listing
	if err := s.store.Get(ctx, in.ListingKey, &listing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.escalate(in, "listing gone before ledger update")
		}
		return nil, err
	}

	purchase := domain.Purchase{
		PaymentID:  in.PaymentID,
		OrderID:    in.OrderID,
		ListingKey: in.ListingKey,
		BuyerID:    in.BuyerID,
		Amount:     listing.Price,
		Status:     "success",
		CreatedAt:  time.Now().UTC(),
	}

	var (
		tally   ledger.Tally
		counted bool
		err     error
	)
	for attempt := 0; ; attempt++ {
		tally, counted, err = s.ledger.RecordPurchaseOnce(ctx, in.ListingKey, purchase)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrConflict) && attempt < s.retryLimit {
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			s.escalate(in, "listing gone before ledger update")
		} else if errors.Is(err, store.ErrConflict) {
			s.escalate(in, "retry budget exhausted on store contention")
		}
		return nil, err
	}

	return &ConfirmResult{Purchase: purchase, Tally: tally, Replayed: !counted}, nil
}

// Get returns a recorded purchase by gateway payment ID.
func (s *Purchases) Get(ctx context.Context, paymentID string) (*domain.Purchase, error) {
	var p domain.Purchase
	if err := s.store.Get(ctx, domain.PurchaseKey(paymentID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByBuyer returns a buyer's purchases, newest first.
func (s *Purchases) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	docs, err := s.store.List(ctx, domain.PurchasePrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.Purchase
	for _, doc := range docs {
		var p domain.Purchase
		if err := decode(doc, &p); err != nil {
			return nil, err
		}
		if p.BuyerID == buyerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Purchases) escalate(in ConfirmPurchaseInput, reason string) {
	inc := alerts.Incident{
		PaymentID:  in.PaymentID,
		OrderID:    in.OrderID,
		ListingKey: in.ListingKey,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	obs.Logger.Error("paid purchase not recorded",
		"payment_id", inc.PaymentID,
		"order_id", inc.OrderID,
		"listing_key", inc.ListingKey,
		"reason", reason,
	)
	if err := s.alerts.PurchaseFailed(inc); err != nil {
		obs.Logger.Error("alert publish failed", "payment_id", inc.PaymentID, "err", err)
	}
}
