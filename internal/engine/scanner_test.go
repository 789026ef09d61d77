package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"slaengine/internal/config"
	"slaengine/internal/model"
	"slaengine/internal/notify"
	"slaengine/internal/riskview"
	"slaengine/internal/storage"
)

func newScannerEngine(t *testing.T) (*Engine, *storage.Memory, *riskview.Store) {
	t.Helper()
	store := storage.NewMemory()
	risk := riskview.NewStore(100)
	eng := NewEngine(config.DefaultConfig(), nil, store, notify.NewRecent(100), risk)
	return eng, store, risk
}

func TestScanSkipsSmallScoreDrift(t *testing.T) {
	eng, store, risk := newScannerEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Due in 30h, in transit: fresh score is 0.25. Stored 0.23 is within the
	// hysteresis band, so the stored value must not churn.
	promised := now.Add(30 * time.Hour)
	if err := store.UpsertShipment(ctx, model.Shipment{
		ID:         "shp-drift",
		PromisedAt: &promised,
		Priority:   model.PriorityStandard,
		Status:     model.StatusInTransit,
		RiskScore:  0.23,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	scanned, escalated := eng.ScanOnce(ctx, now)
	if scanned != 1 || escalated != 0 {
		t.Fatalf("scanned=%d escalated=%d, want 1 0", scanned, escalated)
	}
	s, err := store.GetShipment(ctx, "shp-drift")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.RiskScore != 0.23 {
		t.Fatalf("stored score churned to %v", s.RiskScore)
	}
	if !s.LastScanAt.IsZero() {
		t.Fatalf("last scan timestamp written despite skipped update")
	}
	snap, ok := risk.Get("shp-drift")
	if !ok || snap.Score != 0.23 {
		t.Fatalf("risk view should carry the effective stored score, got %+v", snap)
	}
}

func TestScanPersistsLargeScoreShift(t *testing.T) {
	eng, store, _ := newScannerEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	promised := now.Add(30 * time.Hour)
	if err := store.UpsertShipment(ctx, model.Shipment{
		ID:         "shp-shift",
		PromisedAt: &promised,
		Priority:   model.PriorityStandard,
		Status:     model.StatusInTransit,
		RiskScore:  0,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	eng.ScanOnce(ctx, now)
	s, err := store.GetShipment(ctx, "shp-shift")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !almostEqual(s.RiskScore, 0.25) {
		t.Fatalf("stored score = %v, want 0.25", s.RiskScore)
	}
	if !s.LastScanAt.Equal(now) {
		t.Fatalf("last scan at = %v, want %v", s.LastScanAt, now)
	}
}

func TestScanOpensChainAboveThreshold(t *testing.T) {
	eng, store, _ := newScannerEngine(t)
	seedLadder(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	// Pending with 6h left scores 0.8, over the 0.7 trigger threshold.
	promised := now.Add(6 * time.Hour)
	if err := store.UpsertShipment(ctx, model.Shipment{
		ID:         "shp-hot",
		PromisedAt: &promised,
		Priority:   model.PriorityStandard,
		Status:     model.StatusPending,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	scanned, escalated := eng.ScanOnce(ctx, now)
	if scanned != 1 || escalated != 1 {
		t.Fatalf("scanned=%d escalated=%d, want 1 1", scanned, escalated)
	}
	attempt, err := store.GetUnacknowledgedAttempt(ctx, "shp-hot")
	if err != nil {
		t.Fatalf("chain lookup: %v", err)
	}
	if attempt.Payload.Trigger == nil || attempt.Payload.Trigger.TriggeredBy != "risk-scanner" {
		t.Fatalf("trigger payload: %+v", attempt.Payload.Trigger)
	}

	// The next scan sees the live chain and does not stack another.
	_, escalated = eng.ScanOnce(ctx, now)
	if escalated != 0 {
		t.Fatalf("second scan escalated %d chains, want 0", escalated)
	}
	attempts, err := store.ListAttempts(ctx, "shp-hot")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempt count = %d, want 1", len(attempts))
	}
}

func TestScanIgnoresTerminalShipments(t *testing.T) {
	eng, store, _ := newScannerEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	promised := now.Add(-72 * time.Hour)
	for id, status := range map[string]model.ShipmentStatus{
		"shp-done":     model.StatusDelivered,
		"shp-failed":   model.StatusFailed,
		"shp-returned": model.StatusReturned,
	} {
		if err := store.UpsertShipment(ctx, model.Shipment{ID: id, PromisedAt: &promised, Status: status}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	scanned, _ := eng.ScanOnce(ctx, now)
	if scanned != 0 {
		t.Fatalf("scanned %d terminal shipments, want 0", scanned)
	}
}

type scoreUpdateFailStore struct {
	storage.Store
	failID string
}

func (s *scoreUpdateFailStore) UpdateShipmentRiskScore(ctx context.Context, id string, score float64, scannedAt time.Time) error {
	if id == s.failID {
		return errors.New("injected store failure")
	}
	return s.Store.UpdateShipmentRiskScore(ctx, id, score, scannedAt)
}

func TestScanSurvivesPerShipmentFailure(t *testing.T) {
	mem := storage.NewMemory()
	store := &scoreUpdateFailStore{Store: mem, failID: "shp-a"}
	eng := NewEngine(config.DefaultConfig(), nil, store, notify.NewRecent(100), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	promised := now.Add(30 * time.Hour)
	for _, id := range []string{"shp-a", "shp-b"} {
		if err := mem.UpsertShipment(ctx, model.Shipment{
			ID:         id,
			PromisedAt: &promised,
			Status:     model.StatusInTransit,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	scanned, _ := eng.ScanOnce(ctx, now)
	if scanned != 2 {
		t.Fatalf("scanned = %d, want 2", scanned)
	}
	b, err := mem.GetShipment(ctx, "shp-b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !almostEqual(b.RiskScore, 0.25) {
		t.Fatalf("healthy shipment not updated after sibling failure: score %v", b.RiskScore)
	}
}
