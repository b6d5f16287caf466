package domain

// Store key layout. A single flat key space, slash-separated like the
// collections it replaced.
const (
	CounterKey = "counters/itineraries"

	ListingPrefix     = "itineraries/"
	PurchasePrefix    = "purchases/"
	PayoutPrefix      = "payout_requests/"
	ApplicationPrefix = "applications/"
)

func ListingKey(id string) string { return ListingPrefix + id }

func PurchaseKey(paymentID string) string { return PurchasePrefix + paymentID }

func PayoutKey(id string) string { return PayoutPrefix + id }

func ApplicationKey(userID string) string { return ApplicationPrefix + userID }
