// Package service holds the marketplace flows: listing creation and edits,
// purchase confirmation, payout requests, and creator applications. The
// flows validate input and sequence store operations; every invariant lives
// in the ledger underneath.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tripverse/marketd/internal/domain"
	"github.com/tripverse/marketd/internal/ledger"
	"github.com/tripverse/marketd/internal/store"
)

type Listings struct {
	store  store.Store
	ledger *ledger.Ledger
}

func NewListings(s store.Store, l *ledger.Ledger) *Listings {
	return &Listings{store: s, ledger: l}
}

type CreateListingInput struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Price   int64  `json:"price"`
}

// Create issues the next public ID and writes the listing as a draft with
// zero tallies.
//
// The ID issuance and the listing write are separate store operations, so a
// crash between them leaves an unused ID behind. That gap is accepted;
// uniqueness of issued IDs is what matters. An ErrConflict from issuance
// propagates untouched: the whole creation fails and the creator resubmits.
func (s *Listings) Create(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner_id: %w", ErrMissingField)
	}
	if len(in.Title) < 5 {
		return nil, ErrTitleTooShort
	}
	if !validLink(in.Link) {
		return nil, ErrInvalidLink
	}
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	publicID, err := s.ledger.IssueListingID(ctx)
	if err != nil {
		return nil, err
	}

	listing := domain.Listing{
		StoreKey:  domain.ListingKey(uuid.New().String()),
		PublicID:  publicID,
		OwnerID:   in.OwnerID,
		Title:     in.Title,
		Link:      in.Link,
		Price:     in.Price,
		Status:    domain.ListingDraft,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, listing.StoreKey, listing); err != nil {
		return nil, fmt.Errorf("listing write failed (public id %d now unused): %w", publicID, err)
	}
	return &listing, nil
}

func (s *Listings) Get(ctx context.Context, key string) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.store.Get(ctx, key, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListByOwner returns the owner's listings ordered by public ID.
func (s *Listings) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return s.list(ctx, func(l domain.Listing) bool { return l.OwnerID == ownerID })
}

// ListPublished returns the storefront view: published listings only.
func (s *Listings) ListPublished(ctx context.Context) ([]domain.Listing, error) {
	return s.list(ctx, func(l domain.Listing) bool { return l.Status == domain.ListingPublished })
}

func (s *Listings) list(ctx context.Context, keep func(domain.Listing) bool) ([]domain.Listing, error) {
	docs, err := s.store.List(ctx, domain.ListingPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.Listing
	for _, doc := range docs {
		var listing domain.Listing
		if err := decode(doc, &listing); err != nil {
			return nil, err
		}
		if keep(listing) {
			out = append(out, listing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicID < out[j].PublicID })
	return out, nil
}

type UpdateListingInput struct {
	OwnerID string  `json:"owner_id"`
	Title   *string `json:"title,omitempty"`
	Link    *string `json:"link,omitempty"`
	Price   *int64  `json:"price,omitempty"`
}

// Update edits the descriptive fields, owner only. Price stays editable even
// after sales have been recorded, so earnings == sales * price is a
// best-effort invariant, not a guaranteed one.
func (s *Listings) Update(ctx context.Context, key string, in UpdateListingInput) (*domain.Listing, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner_id: %w", ErrMissingField)
	}
	if in.Title != nil && len(*in.Title) < 5 {
		return nil, ErrTitleTooShort
	}
	if in.Link != nil && !validLink(*in.Link) {
		return nil, ErrInvalidLink
	}
	if in.Price != nil && *in.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	// Transactional read-modify-write: a concurrent purchase bumps the
	// tally pair on the same document, and a plain Get+Put here could
	// silently revert it.
	var listing domain.Listing
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Get(key, &listing); err != nil {
			return err
		}
		if listing.OwnerID != in.OwnerID {
			return ErrNotOwner
		}
		if in.Title != nil {
			listing.Title = *in.Title
		}
		if in.Link != nil {
			listing.Link = *in.Link
		}
		if in.Price != nil {
			listing.Price = *in.Price
		}
		return tx.Set(key, listing)
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// SetStatus applies a moderation decision. Transitions are externally
// driven; any known status may follow any other.
func (s *Listings) SetStatus(ctx context.Context, key string, status domain.ListingStatus) (*domain.Listing, error) {
	switch status {
	case domain.ListingDraft, domain.ListingPublished, domain.ListingRejected:
	default:
		return nil, ErrUnknownStatus
	}

	var listing domain.Listing
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Get(key, &listing); err != nil {
			return err
		}
		listing.Status = status
		return tx.Set(key, listing)
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func validLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func decode(doc store.Document, dest any) error {
	if err := json.Unmarshal(doc.Raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", doc.Key, err)
	}
	return nil
}
