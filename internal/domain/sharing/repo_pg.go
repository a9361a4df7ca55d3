package sharing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medishare/medishare/internal/platform/db"
)

// Shares live in the shared schema keyed by tenant_id: the anonymous
// redemption path looks tokens up before any tenant is known.
const shareTable = "shared.record_share"

const shareColumns = `id, tenant_id, patient_id, shared_by_user_id, token_hash, token_prefix,
	scope, custom_resources, pin_hash, recipient_email, recipient_name, purpose, notes,
	status, expires_at, access_count, max_access_count, last_accessed_at, last_accessed_ip,
	consent_given, consent_date, created_at, updated_at, revoked_at, revoked_by_user_id`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, share *Share) error {
	if share.ID == uuid.Nil {
		share.ID = uuid.New()
	}

	kinds := make([]string, len(share.CustomResources))
	for i, k := range share.CustomResources {
		kinds[i] = string(k)
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO `+shareTable+` (
			id, tenant_id, patient_id, shared_by_user_id, token_hash, token_prefix,
			scope, custom_resources, pin_hash, recipient_email, recipient_name, purpose, notes,
			status, expires_at, access_count, max_access_count,
			consent_given, consent_date, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21
		)`,
		share.ID, share.TenantID, share.PatientID, share.SharedByUserID, share.TokenHash, share.TokenPrefix,
		string(share.Scope), kinds, share.PinHash, share.RecipientEmail, share.RecipientName, share.Purpose, share.Notes,
		string(share.Status), share.ExpiresAt, share.AccessCount, share.MaxAccessCount,
		share.ConsentGiven, share.ConsentDate, share.CreatedAt, share.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrTokenCollision
	}
	return err
}

func (r *repoPG) GetByTokenHash(ctx context.Context, hash string) (*Share, error) {
	return scanShare(r.conn(ctx).QueryRow(ctx,
		`SELECT `+shareColumns+` FROM `+shareTable+` WHERE token_hash = $1`, hash))
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Share, error) {
	return scanShare(r.conn(ctx).QueryRow(ctx,
		`SELECT `+shareColumns+` FROM `+shareTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repoPG) ListByOwner(ctx context.Context, tenantID, ownerUserID string, filter ListFilter, limit, offset int) ([]*Share, int, error) {
	where := ` WHERE tenant_id = $1 AND shared_by_user_id = $2`
	args := []interface{}{tenantID, ownerUserID}

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where += ` AND patient_id = $3`
	}
	if filter.ActiveOnly {
		args = append(args, filter.Now)
		n := len(args)
		where += ` AND status = 'ACTIVE' AND expires_at > $` + strconv.Itoa(n) +
			` AND (max_access_count IS NULL OR access_count < max_access_count)`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM `+shareTable+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+shareColumns+` FROM `+shareTable+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, 0, err
		}
		shares = append(shares, share)
	}
	return shares, total, rows.Err()
}

// RecordAccess is the single atomic update closing the check-then-increment
// race: the WHERE clause re-checks validity, and hitting the cap flips the
// status to USED in the same statement.
func (r *repoPG) RecordAccess(ctx context.Context, id uuid.UUID, now time.Time, sourceIP string) (*Share, error) {
	share, err := scanShare(r.conn(ctx).QueryRow(ctx, `
		UPDATE `+shareTable+` SET
			access_count = access_count + 1,
			last_accessed_at = $2,
			last_accessed_ip = $3,
			status = CASE
				WHEN max_access_count IS NOT NULL AND access_count + 1 >= max_access_count THEN 'USED'
				ELSE status
			END,
			updated_at = $2
		WHERE id = $1
		  AND status = 'ACTIVE'
		  AND expires_at > $2
		  AND (max_access_count IS NULL OR access_count < max_access_count)
		RETURNING `+shareColumns, id, now, sourceIP))
	if errors.Is(err, ErrShareNotFound) {
		return nil, ErrShareNotUsable
	}
	return share, err
}

func (r *repoPG) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE `+shareTable+` SET status = 'EXPIRED', updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE'`, id, now)
	return err
}

func (r *repoPG) MarkRevoked(ctx context.Context, tenantID string, id uuid.UUID, now time.Time, byUserID string) (*Share, error) {
	return scanShare(r.conn(ctx).QueryRow(ctx, `
		UPDATE `+shareTable+` SET
			status = CASE WHEN status = 'ACTIVE' THEN 'REVOKED' ELSE status END,
			revoked_at = $3,
			revoked_by_user_id = $4,
			updated_at = $3
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+shareColumns, tenantID, id, now, byUserID))
}

func scanShare(row pgx.Row) (*Share, error) {
	var s Share
	var scope, status string
	var kinds []string

	err := row.Scan(
		&s.ID, &s.TenantID, &s.PatientID, &s.SharedByUserID, &s.TokenHash, &s.TokenPrefix,
		&scope, &kinds, &s.PinHash, &s.RecipientEmail, &s.RecipientName, &s.Purpose, &s.Notes,
		&status, &s.ExpiresAt, &s.AccessCount, &s.MaxAccessCount, &s.LastAccessedAt, &s.LastAccessedIP,
		&s.ConsentGiven, &s.ConsentDate, &s.CreatedAt, &s.UpdatedAt, &s.RevokedAt, &s.RevokedByUserID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Scope = Scope(scope)
	s.Status = Status(status)
	if len(kinds) > 0 {
		s.CustomResources = make([]ResourceKind, len(kinds))
		for i, k := range kinds {
			s.CustomResources[i] = ResourceKind(k)
		}
	}
	return &s, nil
}

// queryable abstracts pgxpool.Pool, pgxpool.Conn and pgx.Tx for tenant-scoped
// queries.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
