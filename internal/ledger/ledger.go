// Package ledger owns the two invariants of the marketplace: uniqueness and
// monotonicity of public listing IDs, and atomicity of the per-listing
// (sales count, earnings) pair. Both are expressed solely through the store's
// transaction primitive; there is no in-process lock, because multiple
// service instances may run against the same store.
package ledger

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/store"
)

var (
	idsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketd_listing_ids_issued_total",
		Help: "Public listing IDs issued",
	})

	txConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_ledger_tx_conflicts_total",
		Help: "Ledger transactions aborted on store contention",
	}, []string{"op"})
)

type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Tally is the updated aggregate pair after a recorded purchase.
type Tally struct {
	SalesCount int64 `json:"sales_count"`
	Earnings   int64 `json:"earnings"`
}

// IssueListingID returns the next public listing ID from the shared counter
// record. An absent counter reads as zero, so the first ID issued is 1.
//
// The method performs no retry: on contention it returns store.ErrConflict
// and the caller decides whether to fail the whole creation or resubmit. If
// the caller's listing write fails after this commits, the issued ID becomes
// a permanent gap; uniqueness holds, strict contiguity does not.
//
// A caller that abandons ctx mid-call cannot assume the counter was not
// advanced.
func (l *Ledger) IssueListingID(ctx context.Context) (int64, error) {
	var next int64
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		var c domain.SequenceCounter
		if err := tx.Get(domain.CounterKey, &c); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		next = c.Value + 1
		return tx.Set(domain.CounterKey, domain.SequenceCounter{Value: next})
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			txConflicts.WithLabelValues("issue_id").Inc()
		}
		return 0, err
	}
	idsIssued.Inc()
	return next, nil
}

// RecordPurchase increments the listing's sales count by one and its
// earnings by the listing's current price, both in a single transaction. The
// price is read inside the transaction, so a concurrent price edit cannot
// produce a stale increment.
//
// Returns store.ErrNotFound if the listing is gone; since the buyer has
// already paid by the time this runs, that error must reach an operator, not
// a retry loop. Returns store.ErrConflict on contention; the caller may
// retry a bounded number of times.
//
// RecordPurchase is not idempotent: called twice for the same payment it
// counts the sale twice. Deduplication is the purchase flow's job.
func (l *Ledger) RecordPurchase(ctx context.Context, listingKey string) (Tally, error) {
	var tally Tally
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		var listing domain.Listing
		if err := tx.Get(listingKey, &listing); err != nil {
			return err
		}
		listing.SalesCount++
		listing.Earnings += listing.Price
		tally = Tally{SalesCount: listing.SalesCount, Earnings: listing.Earnings}
		return tx.Set(listingKey, listing)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			txConflicts.WithLabelValues("record_purchase").Inc()
		}
		return Tally{}, err
	}
	return tally, nil
}

// RecordPurchaseOnce is the deduplicating variant used by the payment
// callback path, which the gateway delivers at-least-once. The purchase
// record, keyed by gateway payment ID, is written in the same transaction as
// the tally update; a redelivered callback finds it and counts nothing. The
// second return value reports whether this call counted the sale.
func (l *Ledger) RecordPurchaseOnce(ctx context.Context, listingKey string, p domain.Purchase) (Tally, bool, error) {
	purchaseKey := domain.PurchaseKey(p.PaymentID)
	var tally Tally
	counted := false
	err := l.store.RunTransaction(ctx, func(tx store.Tx) error {
		tally = Tally{}
		counted = false

		var existing domain.Purchase
		err := tx.Get(purchaseKey, &existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var listing domain.Listing
		if err := tx.Get(listingKey, &listing); err != nil {
			return err
		}
		listing.SalesCount++
		listing.Earnings += listing.Price
		tally = Tally{SalesCount: listing.SalesCount, Earnings: listing.Earnings}
		counted = true
		if err := tx.Set(listingKey, listing); err != nil {
			return err
		}
		return tx.Set(purchaseKey, p)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			txConflicts.WithLabelValues("record_purchase_once").Inc()
		}
		return Tally{}, false, err
	}
	return tally, counted, nil
}
