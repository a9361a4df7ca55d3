package sharing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrShareNotFound indicates the share does not exist in the given
	// tenant, or the token hash matches no share. Cross-tenant lookups are
	// indistinguishable from missing shares.
	ErrShareNotFound = errors.New("share not found")

	// ErrShareNotUsable is returned by RecordAccess when the conditional
	// update matched no row: the share expired, was revoked or used, or hit
	// its access cap between lookup and update.
	ErrShareNotUsable = errors.New("share not usable")

	// ErrTokenCollision indicates the generated token hash already exists.
	// Treated as fatal, never retried silently.
	ErrTokenCollision = errors.New("share token collision")
)

// ListFilter narrows ListByOwner results.
type ListFilter struct {
	PatientID  *uuid.UUID
	ActiveOnly bool
	Now        time.Time // validity instant for ActiveOnly
}

// Repository defines the persistence contract for shares. All state
// transitions that race with each other (usage accounting, lazy expiry,
// revocation) are single conditional updates at this layer.
type Repository interface {
	// Create persists a new ACTIVE share. A token hash collision returns
	// ErrTokenCollision.
	Create(ctx context.Context, share *Share) error

	// GetByTokenHash looks a share up by its token hash. Tenant-unscoped:
	// the anonymous redemption path has no tenant until the row is found.
	GetByTokenHash(ctx context.Context, hash string) (*Share, error)

	// GetByID retrieves a share within a tenant.
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Share, error)

	// ListByOwner returns shares created by a user in a tenant, newest
	// first, with the total count before pagination.
	ListByOwner(ctx context.Context, tenantID, ownerUserID string, filter ListFilter, limit, offset int) ([]*Share, int, error)

	// RecordAccess atomically increments the access count and stamps the
	// access metadata, but only while the share is still usable at the given
	// instant. Reaching the access cap flips the status to USED in the same
	// update. Returns the post-update share, or ErrShareNotUsable.
	RecordAccess(ctx context.Context, id uuid.UUID, now time.Time, sourceIP string) (*Share, error)

	// MarkExpired transitions ACTIVE to EXPIRED. A no-op when the share
	// already left ACTIVE (a concurrent revoke wins the race).
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error

	// MarkRevoked stamps revokedAt/revokedBy and moves ACTIVE shares to
	// REVOKED. Terminal shares keep their status but are stamped anyway.
	// Returns the post-update share.
	MarkRevoked(ctx context.Context, tenantID string, id uuid.UUID, now time.Time, byUserID string) (*Share, error)
}
