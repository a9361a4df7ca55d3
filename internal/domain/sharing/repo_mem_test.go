package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func activeShare(tenantID, owner string) *Share {
	now := time.Now().UTC()
	token, _ := NewToken()
	return &Share{
		ID:             uuid.New(),
		TenantID:       tenantID,
		PatientID:      uuid.New(),
		SharedByUserID: owner,
		TokenHash:      HashToken(token),
		TokenPrefix:    TokenPrefix(token),
		Scope:          ScopeFullRecord,
		Status:         StatusActive,
		ExpiresAt:      now.Add(24 * time.Hour),
		ConsentGiven:   true,
		ConsentDate:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInMemoryRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")

	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byHash, err := repo.GetByTokenHash(ctx, share.TokenHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byHash.ID != share.ID {
		t.Error("expected lookup by hash to return the share")
	}

	byID, err := repo.GetByID(ctx, "acme", share.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byID.ID != share.ID {
		t.Error("expected lookup by id to return the share")
	}
}

func TestInMemoryRepo_TokenCollision(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	first := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := activeShare("acme", "dr-1")
	dup.TokenHash = first.TokenHash
	if err := repo.Create(ctx, dup); err != ErrTokenCollision {
		t.Errorf("expected ErrTokenCollision, got %v", err)
	}
}

func TestInMemoryRepo_GetByID_CrossTenant(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.GetByID(ctx, "other", share.ID); err != ErrShareNotFound {
		t.Errorf("expected ErrShareNotFound for cross-tenant lookup, got %v", err)
	}
}

func TestInMemoryRepo_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()

	a := activeShare("acme", "dr-1")
	b := activeShare("acme", "dr-1")
	b.Status = StatusRevoked
	other := activeShare("acme", "dr-2")
	for _, s := range []*Share{a, b, other} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	shares, total, err := repo.ListByOwner(ctx, "acme", "dr-1", ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(shares) != 2 {
		t.Fatalf("expected 2 shares for dr-1, got total=%d len=%d", total, len(shares))
	}
	// Newest first.
	if shares[0].ID != b.ID {
		t.Error("expected most recently created share first")
	}

	active, total, err := repo.ListByOwner(ctx, "acme", "dr-1", ListFilter{ActiveOnly: true, Now: time.Now().UTC()}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("expected only the active share, got %d", len(active))
	}
}

func TestInMemoryRepo_ListByOwner_PatientFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()

	a := activeShare("acme", "dr-1")
	b := activeShare("acme", "dr-1")
	for _, s := range []*Share{a, b} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	shares, total, err := repo.ListByOwner(ctx, "acme", "dr-1", ListFilter{PatientID: &a.PatientID}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || shares[0].PatientID != a.PatientID {
		t.Errorf("expected only shares for the filtered patient, got %d", total)
	}
}

func TestInMemoryRepo_RecordAccess(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	share.MaxAccessCount = intPtr(2)
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now().UTC()

	first, err := repo.RecordAccess(ctx, share.ID, now, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AccessCount != 1 || first.Status != StatusActive {
		t.Errorf("expected count 1 and ACTIVE, got %d %s", first.AccessCount, first.Status)
	}
	if first.LastAccessedIP == nil || *first.LastAccessedIP != "203.0.113.9" {
		t.Error("expected source ip recorded")
	}

	second, err := repo.RecordAccess(ctx, share.ID, now, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.AccessCount != 2 || second.Status != StatusUsed {
		t.Errorf("expected count 2 and USED, got %d %s", second.AccessCount, second.Status)
	}

	if _, err := repo.RecordAccess(ctx, share.ID, now, "203.0.113.9"); err != ErrShareNotUsable {
		t.Errorf("expected ErrShareNotUsable past the cap, got %v", err)
	}
}

func TestInMemoryRepo_RecordAccess_Expired(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	past := share.ExpiresAt.Add(time.Hour)
	if _, err := repo.RecordAccess(ctx, share.ID, past, "203.0.113.9"); err != ErrShareNotUsable {
		t.Errorf("expected ErrShareNotUsable past expiry, got %v", err)
	}
}

func TestInMemoryRepo_MarkExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.MarkExpired(ctx, share.ID, time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.GetByID(ctx, "acme", share.ID)
	if got.Status != StatusExpired {
		t.Errorf("expected EXPIRED, got %s", got.Status)
	}

	// Left terminal states alone.
	revoked := activeShare("acme", "dr-1")
	revoked.Status = StatusRevoked
	if err := repo.Create(ctx, revoked); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkExpired(ctx, revoked.ID, time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = repo.GetByID(ctx, "acme", revoked.ID)
	if got.Status != StatusRevoked {
		t.Errorf("expected REVOKED untouched, got %s", got.Status)
	}
}

func TestInMemoryRepo_MarkRevoked(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now().UTC()
	got, err := repo.MarkRevoked(ctx, "acme", share.ID, now, "dr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusRevoked {
		t.Errorf("expected REVOKED, got %s", got.Status)
	}
	if got.RevokedAt == nil || got.RevokedByUserID == nil || *got.RevokedByUserID != "dr-1" {
		t.Error("expected revocation fields stamped")
	}
}

func TestInMemoryRepo_MarkRevoked_TerminalKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	share.Status = StatusUsed
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.MarkRevoked(ctx, "acme", share.ID, time.Now().UTC(), "dr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusUsed {
		t.Errorf("expected USED to keep its status, got %s", got.Status)
	}
	if got.RevokedAt == nil {
		t.Error("expected revocation still recorded on terminal share")
	}
}

func TestInMemoryRepo_CopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepo()
	share := activeShare("acme", "dr-1")
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := repo.GetByID(ctx, "acme", share.ID)
	got.Status = StatusRevoked

	again, _ := repo.GetByID(ctx, "acme", share.ID)
	if again.Status != StatusActive {
		t.Error("mutating a returned share must not affect the store")
	}
}
