package domain

import "time"

// ListingStatus is the moderation state of a listing. Transitions are driven
// by the review flow, never computed by the ledger core.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "Draft"
	ListingPublished ListingStatus = "Published"
	ListingRejected  ListingStatus = "Rejected"
)

// PayoutStatus tracks a withdrawal request through manual processing.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutProcessed PayoutStatus = "processed"
	PayoutReversed  PayoutStatus = "reversed"
	PayoutRejected  PayoutStatus = "rejected"
)

// ApplicationStatus tracks a creator verification application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Listing is an itinerary offered for sale by a creator.
//
// PublicID is assigned exactly once at creation from the shared sequence
// counter and never reassigned. SalesCount and Earnings are mutated only by
// the purchase ledger, inside a store transaction. Price is in the smallest
// currency unit.
type Listing struct {
	StoreKey   string        `json:"store_key"`
	PublicID   int64         `json:"public_id"`
	OwnerID    string        `json:"owner_id"`
	Title      string        `json:"title"`
	Link       string        `json:"link"`
	Price      int64         `json:"price"`
	Status     ListingStatus `json:"status"`
	SalesCount int64         `json:"sales_count"`
	Earnings   int64         `json:"earnings"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SequenceCounter is the single shared record behind public ID issuance.
// An absent record reads as zero.
type SequenceCounter struct {
	Value int64 `json:"value"`
}

// Purchase records one confirmed payment. Its store key is the gateway
// payment ID, which doubles as the idempotency key for callback redelivery.
type Purchase struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	ListingKey string    `json:"listing_key"`
	BuyerID    string    `json:"buyer_id"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// PayoutRequest is a creator's withdrawal request. Status transitions happen
// in a manual operator flow.
type PayoutRequest struct {
	ID            string       `json:"id"`
	RequesterID   string       `json:"requester_id"`
	RequesterName string       `json:"requester_name"`
	AccountNumber string       `json:"account_number"`
	IFSCCode      string       `json:"ifsc_code"`
	Status        PayoutStatus `json:"status"`
	RequestedAt   time.Time    `json:"requested_at"`
}

// CreatorApplication is a verification application, keyed by the applicant's
// user ID so a resubmission overwrites the previous one.
type CreatorApplication struct {
	UserID           string            `json:"user_id"`
	FullName         string            `json:"full_name"`
	Email            string            `json:"email"`
	SocialLinks      string            `json:"social_links"`
	VerificationCode string            `json:"verification_code"`
	Status           ApplicationStatus `json:"status"`
	SubmittedAt      time.Time         `json:"submitted_at"`
}
