package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/database"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrConflictRetryable means an insert lost a uniqueness race. The row
	// now exists and a fresh lookup will find it.
	ErrConflictRetryable = errors.New("user already exists")
	// ErrIdentityConflict means the email is already bound to a different
	// external identity.
	ErrIdentityConflict = errors.New("email is linked to a different identity")
	ErrInvalidIdentity  = errors.New("external id and email are required")
)

// Repository handles user data persistence
type Repository struct {
	db  bun.IDB
	now func() time.Time
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new active user linked to externalID.
func (r *Repository) Create(ctx context.Context, externalID, email string) (*User, error) {
	now := r.now().UTC()
	dbUser := &database.User{
		ID:        uuid.New(),
		Email:     email,
		GoogleID:  &externalID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Exec(ctx)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflictRetryable
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// FindByExternalID retrieves a user by the provider subject id
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return r.getWhere(ctx, "google_id = ?", externalID)
}

// FindByEmail retrieves a user by email
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.getWhere(ctx, "email = ?", email)
}

// LinkExternalID binds externalID to the email-only row for email.
// Returns ErrNotFound when no unlinked row matched.
func (r *Repository) LinkExternalID(ctx context.Context, email, externalID string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("google_id = ?", externalID).
		Set("updated_at = ?", r.now().UTC()).
		Where("email = ?", email).
		Where("google_id IS NULL").
		Exec(ctx)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflictRetryable
		}
		return fmt.Errorf("failed to link external id: %w", err)
	}

	return expectOneRow(result)
}

// SetActive activates or deactivates a user
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update active flag: %w", err)
	}

	return expectOneRow(result)
}

func (r *Repository) getWhere(ctx context.Context, query string, arg any) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where(query, arg).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:        dbu.ID,
		Email:     dbu.Email,
		GoogleID:  dbu.GoogleID,
		IsActive:  dbu.IsActive,
		CreatedAt: dbu.CreatedAt,
		UpdatedAt: dbu.UpdatedAt,
	}
}
