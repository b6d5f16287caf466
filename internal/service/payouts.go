package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/store"
)

type Payouts struct {
	store store.Store
}

func NewPayouts(s store.Store) *Payouts {
	return &Payouts{store: s}
}

type PayoutInput struct {
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
	AccountNumber string `json:"account_number"`
	IFSCCode      string `json:"ifsc_code"`
}

// Request records a withdrawal request as pending. Processing is manual;
// status moves in the operator flow, never here.
func (s *Payouts) Request(ctx context.Context, in PayoutInput) (*domain.PayoutRequest, error) {
	if in.RequesterID == "" || in.AccountNumber == "" || in.IFSCCode == "" {
		return nil, fmt.Errorf("requester_id, account_number, ifsc_code: %w", ErrMissingField)
	}

	req := domain.PayoutRequest{
		ID:            uuid.New().String(),
		RequesterID:   in.RequesterID,
		RequesterName: in.RequesterName,
		AccountNumber: in.AccountNumber,
		IFSCCode:      in.IFSCCode,
		Status:        domain.PayoutPending,
		RequestedAt:   time.Now().UTC(),
	}
	if err := s.store.Put(ctx, domain.PayoutKey(req.ID), req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByRequester returns a creator's payout requests, newest first.
func (s *Payouts) ListByRequester(ctx context.Context, requesterID string) ([]domain.PayoutRequest, error) {
	docs, err := s.store.List(ctx, domain.PayoutPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.PayoutRequest
	for _, doc := range docs {
		var req domain.PayoutRequest
		if err := decode(doc, &req); err != nil {
			return nil, err
		}
		if req.RequesterID == requesterID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// SetStatus applies an operator decision to a payout request.
func (s *Payouts) SetStatus(ctx context.Context, id string, status domain.PayoutStatus) (*domain.PayoutRequest, error) {
	switch status {
	case domain.PayoutPending, domain.PayoutProcessed, domain.PayoutReversed, domain.PayoutRejected:
	default:
		return nil, ErrUnknownStatus
	}

	key := domain.PayoutKey(id)
	var req domain.PayoutRequest
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Get(key, &req); err != nil {
			return err
		}
		req.Status = status
		return tx.Set(key, req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}
