package sharing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepo provides a thread-safe in-memory implementation of
// Repository. It backs unit tests and development mode without Postgres, and
// honors the same atomic usage-accounting contract under its mutex.
type InMemoryRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Share
	byHash  map[string]uuid.UUID
	ordered []uuid.UUID // insertion order, for stable listings
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byID:   make(map[uuid.UUID]*Share),
		byHash: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, share *Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[share.TokenHash]; exists {
		return ErrTokenCollision
	}
	if share.ID == uuid.Nil {
		share.ID = uuid.New()
	}

	cp := copyShare(share)
	r.byID[cp.ID] = cp
	r.byHash[cp.TokenHash] = cp.ID
	r.ordered = append(r.ordered, cp.ID)
	return nil
}

func (r *InMemoryRepo) GetByTokenHash(_ context.Context, hash string) (*Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHash[hash]
	if !ok {
		return nil, ErrShareNotFound
	}
	return copyShare(r.byID[id]), nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrShareNotFound
	}
	return copyShare(s), nil
}

func (r *InMemoryRepo) ListByOwner(_ context.Context, tenantID, ownerUserID string, filter ListFilter, limit, offset int) ([]*Share, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Newest first: walk insertion order backwards.
	var matching []*Share
	for i := len(r.ordered) - 1; i >= 0; i-- {
		s := r.byID[r.ordered[i]]
		if s.TenantID != tenantID || s.SharedByUserID != ownerUserID {
			continue
		}
		if filter.PatientID != nil && s.PatientID != *filter.PatientID {
			continue
		}
		if filter.ActiveOnly && !s.IsValid(filter.Now) {
			continue
		}
		matching = append(matching, s)
	}

	total := len(matching)
	if offset > len(matching) {
		offset = len(matching)
	}
	matching = matching[offset:]
	if limit > 0 && limit < len(matching) {
		matching = matching[:limit]
	}

	result := make([]*Share, len(matching))
	for i, s := range matching {
		result[i] = copyShare(s)
	}
	return result, total, nil
}

// RecordAccess performs the check and the increment under one lock so
// concurrent callers can never both take the last slot.
func (r *InMemoryRepo) RecordAccess(_ context.Context, id uuid.UUID, now time.Time, sourceIP string) (*Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, ErrShareNotUsable
	}
	if !s.IsValid(now) {
		return nil, ErrShareNotUsable
	}

	s.AccessCount++
	t := now
	s.LastAccessedAt = &t
	ip := sourceIP
	s.LastAccessedIP = &ip
	if s.MaxAccessCount != nil && s.AccessCount >= *s.MaxAccessCount {
		s.Status = StatusUsed
	}
	s.UpdatedAt = now
	return copyShare(s), nil
}

func (r *InMemoryRepo) MarkExpired(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.Status != StatusActive {
		return nil
	}
	s.Status = StatusExpired
	s.UpdatedAt = now
	return nil
}

func (r *InMemoryRepo) MarkRevoked(_ context.Context, tenantID string, id uuid.UUID, now time.Time, byUserID string) (*Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrShareNotFound
	}

	if s.Status == StatusActive {
		s.Status = StatusRevoked
	}
	t := now
	s.RevokedAt = &t
	by := byUserID
	s.RevokedByUserID = &by
	s.UpdatedAt = now
	return copyShare(s), nil
}

// copyShare returns a deep copy so callers cannot mutate the store's copy.
func copyShare(s *Share) *Share {
	cp := *s
	if s.CustomResources != nil {
		cp.CustomResources = make([]ResourceKind, len(s.CustomResources))
		copy(cp.CustomResources, s.CustomResources)
	}
	if s.MaxAccessCount != nil {
		n := *s.MaxAccessCount
		cp.MaxAccessCount = &n
	}
	if s.LastAccessedAt != nil {
		t := *s.LastAccessedAt
		cp.LastAccessedAt = &t
	}
	if s.LastAccessedIP != nil {
		v := *s.LastAccessedIP
		cp.LastAccessedIP = &v
	}
	if s.RecipientEmail != nil {
		v := *s.RecipientEmail
		cp.RecipientEmail = &v
	}
	if s.RecipientName != nil {
		v := *s.RecipientName
		cp.RecipientName = &v
	}
	if s.Purpose != nil {
		v := *s.Purpose
		cp.Purpose = &v
	}
	if s.Notes != nil {
		v := *s.Notes
		cp.Notes = &v
	}
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		cp.RevokedAt = &t
	}
	if s.RevokedByUserID != nil {
		v := *s.RevokedByUserID
		cp.RevokedByUserID = &v
	}
	return &cp
}
