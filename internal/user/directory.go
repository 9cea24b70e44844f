package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxCreateAttempts bounds how many uniqueness races GetOrCreate will absorb.
const maxCreateAttempts = 3

// Store is the persistence the directory needs. *Repository implements it.
type Store interface {
	Create(ctx context.Context, externalID, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	LinkExternalID(ctx context.Context, email, externalID string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Directory maps external identities to local users. It relies on the
// store's unique constraints rather than an in-process lock, so it is safe
// across independent server processes.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return d.store.GetByID(ctx, id)
}

func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return d.store.FindByExternalID(ctx, strings.TrimSpace(externalID))
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return d.store.FindByEmail(ctx, NormalizeEmail(email))
}

func (d *Directory) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return d.store.SetActive(ctx, id, active)
}

// GetOrCreate returns the user bound to externalID, creating it on first
// sight. An existing email-only row is linked instead of duplicated.
// Lost insert races are resolved by re-reading the winner's row.
func (d *Directory) GetOrCreate(ctx context.Context, externalID, email string) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	email = NormalizeEmail(email)
	if externalID == "" || email == "" {
		return nil, ErrInvalidIdentity
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		u, err := d.lookup(ctx, externalID, email)
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, ErrConflictRetryable):
			continue
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}

		u, err = d.store.Create(ctx, externalID, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrConflictRetryable) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to resolve user after %d attempts: %w", maxCreateAttempts, ErrConflictRetryable)
}

// lookup resolves an existing user by external id, then by email.
// ErrNotFound means neither exists and a create should be attempted.
func (d *Directory) lookup(ctx context.Context, externalID, email string) (*User, error) {
	u, err := d.store.FindByExternalID(ctx, externalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u, err = d.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if u.GoogleID != nil {
		if *u.GoogleID == externalID {
			return u, nil
		}
		return nil, ErrIdentityConflict
	}

	if err := d.store.LinkExternalID(ctx, email, externalID); err != nil {
		// Another request linked or claimed the row first.
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflictRetryable) {
			return nil, ErrConflictRetryable
		}
		return nil, err
	}

	return d.store.FindByExternalID(ctx, externalID)
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
