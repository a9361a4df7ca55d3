package sharing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medishare/medishare/internal/domain/patientrecord"
	"github.com/medishare/medishare/internal/platform/audit"
)

// Error taxonomy surfaced to handlers. Anonymous callers only ever see the
// bare not-found/forbidden distinction, never the underlying reason.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

const (
	minExpiryHours = 1
	maxExpiryHours = 720
)

// auditResource is the resource type all share audit events carry.
const auditResource = "record_share"

// Service orchestrates the share lifecycle: create, anonymous access,
// revocation and staff listings.
type Service struct {
	repo     Repository
	patients patientrecord.Directory
	audit    audit.Emitter
	logger   zerolog.Logger

	baseURL        string
	maxExpiryHours int

	// now is injectable for expiry tests.
	now func() time.Time
}

func NewService(repo Repository, patients patientrecord.Directory, sink audit.Emitter, logger zerolog.Logger, baseURL string, maxHours int) *Service {
	if maxHours <= 0 || maxHours > maxExpiryHours {
		maxHours = maxExpiryHours
	}
	return &Service{
		repo:           repo,
		patients:       patients,
		audit:          sink,
		logger:         logger,
		baseURL:        baseURL,
		maxExpiryHours: maxHours,
		now:            time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput carries everything a staff user supplies when creating a share.
type CreateInput struct {
	TenantID        string
	ActingUserID    string
	PatientID       uuid.UUID
	Scope           Scope
	CustomResources []ResourceKind
	RecipientEmail  *string
	RecipientName   *string
	ExpiresInHours  int
	MaxAccessCount  *int
	RequirePin      bool
	Purpose         *string
	Notes           *string
	ConsentGiven    bool
	ConsentDate     *time.Time
}

// CreateResult is the one response that ever carries the raw token and PIN.
// Neither is retrievable again.
type CreateResult struct {
	Share     *Share `json:"share"`
	Token     string `json:"token"`
	ShareURL  string `json:"share_url"`
	AccessPin string `json:"access_pin,omitempty"`
}

// Create validates the request, verifies the patient exists in the tenant,
// generates credentials and persists an ACTIVE share.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	if _, err := s.patients.GetPatient(ctx, in.TenantID, in.PatientID); err != nil {
		if errors.Is(err, patientrecord.ErrPatientNotFound) {
			return nil, fmt.Errorf("%w: patient", ErrNotFound)
		}
		return nil, fmt.Errorf("looking up patient: %w", err)
	}

	rawToken, err := NewToken()
	if err != nil {
		return nil, err
	}

	var pin string
	if in.RequirePin {
		pin, err = NewPin()
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	consentDate := now
	if in.ConsentDate != nil {
		consentDate = in.ConsentDate.UTC()
	}

	share := &Share{
		ID:              uuid.New(),
		TenantID:        in.TenantID,
		PatientID:       in.PatientID,
		SharedByUserID:  in.ActingUserID,
		TokenHash:       HashToken(rawToken),
		TokenPrefix:     TokenPrefix(rawToken),
		Scope:           in.Scope,
		CustomResources: in.CustomResources,
		RecipientEmail:  in.RecipientEmail,
		RecipientName:   in.RecipientName,
		Purpose:         in.Purpose,
		Notes:           in.Notes,
		Status:          StatusActive,
		ExpiresAt:       now.Add(time.Duration(in.ExpiresInHours) * time.Hour),
		MaxAccessCount:  in.MaxAccessCount,
		ConsentGiven:    in.ConsentGiven,
		ConsentDate:     consentDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if pin != "" {
		share.PinHash = HashPin(pin)
	}

	if err := s.repo.Create(ctx, share); err != nil {
		return nil, fmt.Errorf("storing share: %w", err)
	}

	s.emit(ctx, share.TenantID, audit.ActionCreate, audit.OutcomeSuccess, share.ID.String(), in.ActingUserID, "", map[string]string{
		"patient_id": in.PatientID.String(),
		"scope":      string(in.Scope),
		"expires_at": share.ExpiresAt.Format(time.RFC3339),
	})
	s.logger.Info().
		Str("share_id", share.ID.String()).
		Str("tenant_id", share.TenantID).
		Str("scope", string(share.Scope)).
		Msg("share created")

	return &CreateResult{
		Share:     share,
		Token:     rawToken,
		ShareURL:  s.baseURL + "/shared/" + rawToken,
		AccessPin: pin,
	}, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	if !in.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, in.Scope)
	}
	if in.Scope == ScopeCustom {
		if len(in.CustomResources) == 0 {
			return fmt.Errorf("%w: custom scope requires at least one resource kind", ErrValidation)
		}
		for _, k := range in.CustomResources {
			if !k.Valid() {
				return fmt.Errorf("%w: unknown resource kind %q", ErrValidation, k)
			}
		}
	}
	if in.ExpiresInHours < minExpiryHours || in.ExpiresInHours > s.maxExpiryHours {
		return fmt.Errorf("%w: expires_in_hours must be between %d and %d", ErrValidation, minExpiryHours, s.maxExpiryHours)
	}
	if in.MaxAccessCount != nil && *in.MaxAccessCount < 1 {
		return fmt.Errorf("%w: max_access_count must be positive", ErrValidation)
	}
	if !in.ConsentGiven {
		return fmt.Errorf("%w: patient consent is required", ErrValidation)
	}
	return nil
}

// Access redeems a token. Deliberately anonymous; every failure is audited
// with its internal reason but surfaced without one.
func (s *Service) Access(ctx context.Context, token, pin, sourceIP string) (*SharedView, error) {
	share, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			s.emit(ctx, "", audit.ActionAccess, audit.OutcomeDenied, "", "anonymous", sourceIP, map[string]string{
				"reason": "token_unknown",
			})
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up share: %w", err)
	}

	// PIN first: a wrong PIN must not mutate anything, not even counters.
	if share.RequiresPin() && !PinMatches(share.PinHash, pin) {
		s.denyAccess(ctx, share, sourceIP, "pin_mismatch")
		return nil, ErrForbidden
	}

	now := s.now().UTC()

	// Self-healing expiry: a stale ACTIVE row past its deadline is corrected
	// here rather than by a background sweep. The repo's ACTIVE guard keeps a
	// concurrent revoke from being overwritten.
	if share.Status == StatusActive && !now.Before(share.ExpiresAt) {
		if err := s.repo.MarkExpired(ctx, share.ID, now); err != nil {
			return nil, fmt.Errorf("marking share expired: %w", err)
		}
		s.denyAccess(ctx, share, sourceIP, "expired")
		return nil, ErrForbidden
	}

	if !share.IsValid(now) {
		s.denyAccess(ctx, share, sourceIP, denialReason(share))
		return nil, ErrForbidden
	}

	updated, err := s.repo.RecordAccess(ctx, share.ID, now, sourceIP)
	if err != nil {
		if errors.Is(err, ErrShareNotUsable) {
			// Lost a race with a concurrent access, revoke or expiry.
			s.denyAccess(ctx, share, sourceIP, "not_usable")
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("recording access: %w", err)
	}

	rec, err := patientrecord.LoadRecord(ctx, s.patients, share.TenantID, share.PatientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient record: %w", err)
	}

	s.emit(ctx, share.TenantID, audit.ActionAccess, audit.OutcomeSuccess, share.ID.String(), "anonymous", sourceIP, map[string]string{
		"scope":        string(share.Scope),
		"access_count": strconv.Itoa(updated.AccessCount),
	})
	s.logger.Info().
		Str("share_id", share.ID.String()).
		Int("access_count", updated.AccessCount).
		Msg("share accessed")

	return Project(share, rec), nil
}

// Revoke transitions a share to REVOKED on behalf of its owner. Elevated
// callers may revoke any share in the tenant. Non-owners get not-found, never
// a confirmation the share exists.
func (s *Service) Revoke(ctx context.Context, tenantID, actingUserID string, shareID uuid.UUID, elevated bool) (*Share, error) {
	share, err := s.repo.GetByID(ctx, tenantID, shareID)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up share: %w", err)
	}

	if !elevated && share.SharedByUserID != actingUserID {
		return nil, ErrNotFound
	}

	// Idempotent: revoking an already-revoked share succeeds without change.
	if share.Status == StatusRevoked {
		return share, nil
	}

	updated, err := s.repo.MarkRevoked(ctx, tenantID, shareID, s.now().UTC(), actingUserID)
	if err != nil {
		return nil, fmt.Errorf("revoking share: %w", err)
	}

	s.emit(ctx, tenantID, audit.ActionRevoke, audit.OutcomeSuccess, shareID.String(), actingUserID, "", map[string]string{
		"prior_status": string(share.Status),
	})
	s.logger.Info().
		Str("share_id", shareID.String()).
		Str("revoked_by", actingUserID).
		Msg("share revoked")

	return updated, nil
}

// Get retrieves a single share for its owner. Elevated callers may read any
// share in the tenant.
func (s *Service) Get(ctx context.Context, tenantID, actingUserID string, shareID uuid.UUID, elevated bool) (*Share, error) {
	share, err := s.repo.GetByID(ctx, tenantID, shareID)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !elevated && share.SharedByUserID != actingUserID {
		return nil, ErrNotFound
	}
	return share, nil
}

// List returns the caller's shares, newest first.
func (s *Service) List(ctx context.Context, tenantID, ownerUserID string, patientID *uuid.UUID, activeOnly bool, limit, offset int) ([]*Share, int, error) {
	filter := ListFilter{PatientID: patientID, ActiveOnly: activeOnly, Now: s.now().UTC()}
	return s.repo.ListByOwner(ctx, tenantID, ownerUserID, filter, limit, offset)
}

func (s *Service) denyAccess(ctx context.Context, share *Share, sourceIP, reason string) {
	s.emit(ctx, share.TenantID, audit.ActionAccess, audit.OutcomeDenied, share.ID.String(), "anonymous", sourceIP, map[string]string{
		"reason": reason,
	})
}

func denialReason(share *Share) string {
	switch share.Status {
	case StatusRevoked:
		return "revoked"
	case StatusExpired:
		return "expired"
	case StatusUsed:
		return "used"
	}
	return "access_cap_reached"
}

// emit writes an audit event. Audit failures are logged, never surfaced:
// the sink is a best-effort trail, not a gate.
func (s *Service) emit(ctx context.Context, tenantID, action, outcome, resourceID, actorID, sourceIP string, details map[string]string) {
	event := audit.NewEvent(tenantID, action, outcome, auditResource, resourceID, actorID)
	event.SourceIP = sourceIP
	event.Details = details
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("audit emit failed")
	}
}
