package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"slaengine/internal/model"
)

func newSQLiteForTest(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "slaengine_test.db")
	store, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestSQLiteShipmentRoundTrip(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	promised := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Millisecond)

	in := model.Shipment{
		ID:         "shp-1",
		PromisedAt: &promised,
		Priority:   model.PriorityExpress,
		VIP:        true,
		Status:     model.StatusInTransit,
		RiskScore:  0.42,
	}
	if err := store.UpsertShipment(ctx, in); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.GetShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Priority != model.PriorityExpress || !got.VIP || got.Status != model.StatusInTransit {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.PromisedAt == nil || !got.PromisedAt.Equal(promised) {
		t.Fatalf("promised_at mismatch: %v", got.PromisedAt)
	}
	if got.RiskScore != 0.42 {
		t.Fatalf("risk score mismatch: %v", got.RiskScore)
	}

	if _, err := store.GetShipment(ctx, "shp-missing"); err != ErrNotFound {
		t.Fatalf("missing shipment: expected ErrNotFound, got %v", err)
	}

	scannedAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.UpdateShipmentRiskScore(ctx, "shp-1", 0.9, scannedAt); err != nil {
		t.Fatalf("score update: %v", err)
	}
	got, err = store.GetShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.RiskScore != 0.9 || !got.LastScanAt.Equal(scannedAt) {
		t.Fatalf("score update not persisted: %+v", got)
	}
	if err := store.UpdateShipmentRiskScore(ctx, "shp-missing", 0.5, scannedAt); err != ErrNotFound {
		t.Fatalf("score update on missing shipment: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteActiveShipmentsExcludeTerminal(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	for id, status := range map[string]model.ShipmentStatus{
		"shp-a": model.StatusPending,
		"shp-b": model.StatusDelivered,
		"shp-c": model.StatusInTransit,
		"shp-d": model.StatusReturned,
	} {
		sh := model.Shipment{ID: id, Priority: model.PriorityStandard, Status: status}
		if err := store.UpsertShipment(ctx, sh); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	active, err := store.ListActiveShipments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	if active[0].ID != "shp-a" || active[1].ID != "shp-c" {
		t.Fatalf("active order: %s, %s", active[0].ID, active[1].ID)
	}
}

func TestSQLiteLadderOrder(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	contacts := []model.EscalationContact{
		{ID: "c-slow", Name: "Slow", Channel: model.ChannelEmail, Position: 1, Timeout: 1800 * time.Second, Active: true},
		{ID: "c-fast", Name: "Fast", Channel: model.ChannelSMS, Position: 2, Timeout: 300 * time.Second, Active: true},
		{ID: "c-off", Name: "Off", Channel: model.ChannelPhone, Position: 3, Timeout: 60 * time.Second, Active: false},
	}
	for _, c := range contacts {
		if err := store.CreateContact(ctx, c); err != nil {
			t.Fatalf("create %s: %v", c.ID, err)
		}
	}
	ladder, err := store.ListActiveContacts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ladder) != 2 {
		t.Fatalf("ladder size = %d, want 2", len(ladder))
	}
	// Ascending timeout, inactive contacts dropped.
	if ladder[0].ID != "c-fast" || ladder[1].ID != "c-slow" {
		t.Fatalf("ladder order: %s, %s", ladder[0].ID, ladder[1].ID)
	}
	if ladder[0].Timeout != 300*time.Second {
		t.Fatalf("timeout round trip: %v", ladder[0].Timeout)
	}
}

func TestSQLiteAttemptGuardAndReplace(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := model.EscalationAttempt{
		ShipmentID:    "shp-1",
		ContactID:     "c-1",
		AttemptNumber: 1,
		Kind:          model.KindTriggered,
		Payload: model.AttemptPayload{
			Kind:    model.KindTriggered,
			Trigger: &model.TriggerPayload{Reason: "test", TriggeredBy: "test"},
		},
		CreatedAt: now,
	}
	if err := store.CreateAttempt(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("insert id not assigned")
	}

	dup := first
	dup.ID = 0
	if err := store.CreateAttempt(ctx, &dup); err != ErrActiveAttempt {
		t.Fatalf("duplicate live attempt: expected ErrActiveAttempt, got %v", err)
	}

	// A live attempt for another shipment is unaffected by the guard.
	other := first
	other.ID = 0
	other.ShipmentID = "shp-2"
	if err := store.CreateAttempt(ctx, &other); err != nil {
		t.Fatalf("other shipment: %v", err)
	}

	closeAt := now.Add(time.Minute)
	closePayload := first.Payload
	closePayload.Ack = &model.AckPayload{Method: "superseded", Actor: "system", AckedAt: closeAt}
	next := model.EscalationAttempt{
		ShipmentID:    "shp-1",
		ContactID:     "c-2",
		AttemptNumber: 2,
		Kind:          model.KindAdvanced,
		Payload: model.AttemptPayload{
			Kind:    model.KindAdvanced,
			Advance: &model.AdvancePayload{Reason: "timeout expired", Actor: "test", FromPosition: 1, ToPosition: 2},
		},
		CreatedAt: closeAt,
	}
	if err := store.ReplaceAttempt(ctx, first.ID, closePayload, closeAt, &next); err != nil {
		t.Fatalf("replace: %v", err)
	}

	live, err := store.GetUnacknowledgedAttempt(ctx, "shp-1")
	if err != nil {
		t.Fatalf("live lookup: %v", err)
	}
	if live.ID != next.ID || live.ContactID != "c-2" || live.Payload.Advance == nil {
		t.Fatalf("live attempt after replace: %+v", live)
	}

	attempts, err := store.ListAttempts(ctx, "shp-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempt count = %d, want 2", len(attempts))
	}
	if !attempts[0].Acknowledged || attempts[0].Payload.Ack == nil || attempts[0].Payload.Ack.Method != "superseded" {
		t.Fatalf("superseded attempt not closed: %+v", attempts[0])
	}

	// Replacing an already-closed attempt fails cleanly.
	if err := store.ReplaceAttempt(ctx, first.ID, closePayload, closeAt, &next); err != ErrNotFound {
		t.Fatalf("replace closed attempt: expected ErrNotFound, got %v", err)
	}

	n, err := store.CountAttempts(ctx, "shp-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestSQLiteAcknowledgeAttempt(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	attempt := model.EscalationAttempt{
		ShipmentID:    "shp-1",
		ContactID:     "c-1",
		AttemptNumber: 1,
		Kind:          model.KindTriggered,
		Payload: model.AttemptPayload{
			Kind:    model.KindTriggered,
			Trigger: &model.TriggerPayload{Reason: "test", TriggeredBy: "test"},
		},
		CreatedAt: now,
	}
	if err := store.CreateAttempt(ctx, &attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	ackAt := now.Add(time.Minute)
	payload := attempt.Payload
	payload.Ack = &model.AckPayload{Method: "phone", Actor: "alice", AckedAt: ackAt}
	if err := store.AcknowledgeAttempt(ctx, attempt.ID, payload, ackAt); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := store.AcknowledgeAttempt(ctx, attempt.ID, payload, ackAt); err != ErrNotFound {
		t.Fatalf("double acknowledge: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetUnacknowledgedAttempt(ctx, "shp-1"); err != ErrNotFound {
		t.Fatalf("live lookup after ack: expected ErrNotFound, got %v", err)
	}

	ack := model.Acknowledgment{ShipmentID: "shp-1", Actor: "alice", Method: "phone", CreatedAt: ackAt}
	if err := store.CreateAcknowledgment(ctx, &ack); err != nil {
		t.Fatalf("ack record: %v", err)
	}
	if ack.ID == 0 {
		t.Fatalf("ack record id not assigned")
	}
}

func TestSQLiteOpenIssues(t *testing.T) {
	store := newSQLiteForTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issues := []model.Issue{
		{ID: "iss-1", ShipmentID: "shp-1", Severity: 0.4, Status: "open", CreatedAt: now},
		{ID: "iss-2", ShipmentID: "shp-1", Severity: 0.9, Status: "open", CreatedAt: now},
		{ID: "iss-3", ShipmentID: "shp-1", Severity: 0.95, Status: "resolved", CreatedAt: now},
		{ID: "iss-4", ShipmentID: "shp-2", Severity: 0.5, Status: "open", CreatedAt: now},
	}
	for _, is := range issues {
		if err := store.CreateIssue(ctx, is); err != nil {
			t.Fatalf("create %s: %v", is.ID, err)
		}
	}
	open, err := store.ListOpenIssues(ctx, "shp-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open issue count = %d, want 2", len(open))
	}
	if open[0].ID != "iss-2" {
		t.Fatalf("issues not ordered by severity: %+v", open)
	}
}
