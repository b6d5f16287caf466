// Package alerts is the operator escalation path. A purchase that was paid
// but could not be recorded is a reportable inconsistency, not something to
// retry forever; incidents go out on NATS where the support tooling listens.
package alerts

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const SubjectPurchaseFailed = "marketd.alerts.purchase_failed"

// Incident describes a paid-but-unrecorded purchase.
type Incident struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	ListingKey string    `json:"listing_key"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	PurchaseFailed(inc Incident) error
}

// NATS publishes incidents to the alert subject.
type NATS struct {
	conn *nats.Conn
}

func Connect(url string) (*NATS, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: conn}, nil
}

func (n *NATS) PurchaseFailed(inc Incident) error {
	payload, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	return n.conn.Publish(SubjectPurchaseFailed, payload)
}

func (n *NATS) Close() {
	n.conn.Close()
}

// Noop drops incidents; used when no alert bus is configured. The incident
// still reaches the logs through the purchase flow.
type Noop struct{}

func (Noop) PurchaseFailed(Incident) error { return nil }
