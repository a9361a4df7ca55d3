package sharing

import (
	"time"

	"github.com/google/uuid"
)

// Scope declares which slice of the patient record a share exposes.
type Scope string

const (
	ScopeFullRecord        Scope = "FULL_RECORD"
	ScopeAppointmentsOnly  Scope = "APPOINTMENTS_ONLY"
	ScopePrescriptionsOnly Scope = "PRESCRIPTIONS_ONLY"
	ScopeDocumentsOnly     Scope = "DOCUMENTS_ONLY"
	ScopeCustom            Scope = "CUSTOM"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeFullRecord, ScopeAppointmentsOnly, ScopePrescriptionsOnly, ScopeDocumentsOnly, ScopeCustom:
		return true
	}
	return false
}

// ResourceKind names a sub-resource a CUSTOM scope may include.
type ResourceKind string

const (
	KindAppointments  ResourceKind = "appointments"
	KindPrescriptions ResourceKind = "prescriptions"
	KindDocuments     ResourceKind = "documents"
)

func (k ResourceKind) Valid() bool {
	switch k {
	case KindAppointments, KindPrescriptions, KindDocuments:
		return true
	}
	return false
}

// Status is the share lifecycle state. ACTIVE is the only non-terminal
// state; EXPIRED, REVOKED and USED are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
	StatusUsed    Status = "USED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusRevoked, StatusUsed:
		return true
	}
	return false
}

// Terminal reports whether the status can never transition again.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Share authorizes anonymous, time-boxed, scope-limited read access to one
// patient's record via an opaque token. The token and PIN material are never
// stored; only SHA-256 hashes are persisted.
type Share struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        string         `json:"tenant_id"`
	PatientID       uuid.UUID      `json:"patient_id"`
	SharedByUserID  string         `json:"shared_by_user_id"`
	TokenHash       string         `json:"-"` // never serialize
	TokenPrefix     string         `json:"token_prefix"`
	Scope           Scope          `json:"scope"`
	CustomResources []ResourceKind `json:"custom_resources,omitempty"`
	PinHash         string         `json:"-"` // never serialize
	RecipientEmail  *string        `json:"recipient_email,omitempty"`
	RecipientName   *string        `json:"recipient_name,omitempty"`
	Purpose         *string        `json:"purpose,omitempty"`
	Notes           *string        `json:"notes,omitempty"`
	Status          Status         `json:"status"`
	ExpiresAt       time.Time      `json:"expires_at"`
	AccessCount     int            `json:"access_count"`
	MaxAccessCount  *int           `json:"max_access_count,omitempty"`
	LastAccessedAt  *time.Time     `json:"last_accessed_at,omitempty"`
	LastAccessedIP  *string        `json:"last_accessed_ip,omitempty"`
	ConsentGiven    bool           `json:"consent_given"`
	ConsentDate     time.Time      `json:"consent_date"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	RevokedAt       *time.Time     `json:"revoked_at,omitempty"`
	RevokedByUserID *string        `json:"revoked_by_user_id,omitempty"`
}

// RequiresPin reports whether a PIN must accompany the token.
func (s *Share) RequiresPin() bool {
	return s.PinHash != ""
}

// IsValid reports whether the share is usable at the given instant: ACTIVE,
// not past expiry, and not at its access cap.
func (s *Share) IsValid(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	if s.MaxAccessCount != nil && s.AccessCount >= *s.MaxAccessCount {
		return false
	}
	return true
}

// IncludesKind reports whether the share's scope exposes the given
// sub-resource kind. The identity block is always included and is not a kind.
func (s *Share) IncludesKind(kind ResourceKind) bool {
	switch s.Scope {
	case ScopeFullRecord:
		return true
	case ScopeAppointmentsOnly:
		return kind == KindAppointments
	case ScopePrescriptionsOnly:
		return kind == KindPrescriptions
	case ScopeDocumentsOnly:
		return kind == KindDocuments
	case ScopeCustom:
		for _, k := range s.CustomResources {
			if k == kind {
				return true
			}
		}
	}
	return false
}
