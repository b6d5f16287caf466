package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/store"
)

type Applications struct {
	store store.Store
}

func NewApplications(s store.Store) *Applications {
	return &Applications{store: s}
}

type ApplicationInput struct {
	UserID           string `json:"user_id"`
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	SocialLinks      string `json:"social_links"`
	VerificationCode string `json:"verification_code"`
}

// Submit stores a verification application keyed by user ID. A repeat
// submission replaces the earlier one and resets it to pending.
func (s *Applications) Submit(ctx context.Context, in ApplicationInput) (*domain.CreatorApplication, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id: %w", ErrMissingField)
	}
	if len(in.FullName) < 2 {
		return nil, fmt.Errorf("full_name: %w", ErrMissingField)
	}
	if !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("email: %w", ErrMissingField)
	}
	if len(in.SocialLinks) < 3 {
		return nil, fmt.Errorf("social_links: %w", ErrMissingField)
	}
	if len(in.VerificationCode) != 6 {
		return nil, fmt.Errorf("verification_code must be 6 characters: %w", ErrMissingField)
	}

	app := domain.CreatorApplication{
		UserID:           in.UserID,
		FullName:         in.FullName,
		Email:            in.Email,
		SocialLinks:      in.SocialLinks,
		VerificationCode: in.VerificationCode,
		Status:           domain.ApplicationPending,
		SubmittedAt:      time.Now().UTC(),
	}
	if err := s.store.Put(ctx, domain.ApplicationKey(app.UserID), app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Applications) Get(ctx context.Context, userID string) (*domain.CreatorApplication, error) {
	var app domain.CreatorApplication
	if err := s.store.Get(ctx, domain.ApplicationKey(userID), &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// SetStatus records the manual review decision.
func (s *Applications) SetStatus(ctx context.Context, userID string, status domain.ApplicationStatus) (*domain.CreatorApplication, error) {
	switch status {
	case domain.ApplicationPending, domain.ApplicationApproved, domain.ApplicationRejected:
	default:
		return nil, ErrUnknownStatus
	}

	key := domain.ApplicationKey(userID)
	var app domain.CreatorApplication
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Get(key, &app); err != nil {
			return err
		}
		app.Status = status
		return tx.Set(key, app)
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}
