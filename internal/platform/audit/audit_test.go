package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent("acme", ActionAccess, OutcomeDenied, "record_share", "abc", "anonymous")

	if e.TenantID != "acme" {
		t.Errorf("expected tenant acme, got %s", e.TenantID)
	}
	if e.Action != ActionAccess {
		t.Errorf("expected action access, got %s", e.Action)
	}
	if e.Outcome != OutcomeDenied {
		t.Errorf("expected outcome denied, got %s", e.Outcome)
	}
	if e.Recorded.IsZero() {
		t.Error("expected recorded timestamp to be set")
	}
}

func TestLogEmitter_Emit(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	emitter := NewLogEmitter(logger)

	event := NewEvent("acme", ActionCreate, OutcomeSuccess, "record_share", "share-1", "user-1")
	event.Details = map[string]string{"scope": "FULL_RECORD"}

	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if line["action"] != ActionCreate {
		t.Errorf("expected action create, got %v", line["action"])
	}
	if line["actor_id"] != "user-1" {
		t.Errorf("expected actor user-1, got %v", line["actor_id"])
	}
	if line["detail_scope"] != "FULL_RECORD" {
		t.Errorf("expected detail_scope FULL_RECORD, got %v", line["detail_scope"])
	}
}

func TestLogEmitter_SetsRecorded(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(zerolog.New(&buf))

	event := &Event{TenantID: "acme", Action: ActionRevoke, Outcome: OutcomeSuccess}
	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Recorded.IsZero() {
		t.Error("expected emitter to fill recorded timestamp")
	}
}
