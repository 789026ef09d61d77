package engine

import (
	"testing"
	"time"

	"slaengine/internal/model"
)

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func shipmentDueIn(d time.Duration, now time.Time) model.Shipment {
	promised := now.Add(d)
	return model.Shipment{
		ID:         "shp-1",
		PromisedAt: &promised,
		Priority:   model.PriorityStandard,
		Status:     model.StatusPending,
	}
}

func TestScoreDeliveredIsZero(t *testing.T) {
	now := time.Now().UTC()
	s := shipmentDueIn(-72*time.Hour, now)
	s.Status = model.StatusDelivered
	s.VIP = true
	s.Priority = model.PrioritySameDay
	if got := Score(s, now); !almostEqual(got, 0) {
		t.Fatalf("delivered shipment score = %v, want 0", got)
	}
}

func TestScoreNoPromise(t *testing.T) {
	now := time.Now().UTC()
	s := model.Shipment{ID: "shp-1", Status: model.StatusPending}
	if got := Score(s, now); !almostEqual(got, 0.1) {
		t.Fatalf("no-promise base score = %v, want 0.1", got)
	}
	s.Status = model.StatusInTransit
	s.VIP = true
	s.Priority = model.PrioritySameDay
	if got := Score(s, now); !almostEqual(got, 0.4) {
		t.Fatalf("no-promise adjusted score = %v, want 0.4", got)
	}
}

func TestScoreOverdueBands(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		overdue time.Duration
		want    float64
	}{
		{6 * time.Hour, 0.7},
		{30 * time.Hour, 0.85},
		{80 * time.Hour, 0.95},
	}
	for _, tc := range cases {
		s := shipmentDueIn(-tc.overdue, now)
		s.Status = model.StatusOutForDelivery
		if got := Score(s, now); !almostEqual(got, tc.want) {
			t.Fatalf("overdue %v score = %v, want %v", tc.overdue, got, tc.want)
		}
	}
}

func TestScoreDueBands(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		until time.Duration
		want  float64
	}{
		{6 * time.Hour, 0.6},
		{18 * time.Hour, 0.4},
		{36 * time.Hour, 0.25},
		{90 * time.Hour, 0.1},
	}
	for _, tc := range cases {
		s := shipmentDueIn(tc.until, now)
		s.Status = model.StatusOutForDelivery
		if got := Score(s, now); !almostEqual(got, tc.want) {
			t.Fatalf("due in %v score = %v, want %v", tc.until, got, tc.want)
		}
	}
}

func TestScoreDeadlineAdjustments(t *testing.T) {
	now := time.Now().UTC()

	s := shipmentDueIn(6*time.Hour, now)
	s.Status = model.StatusPending
	if got := Score(s, now); !almostEqual(got, 0.8) {
		t.Fatalf("pending near deadline score = %v, want 0.8", got)
	}

	s.Status = model.StatusInTransit
	if got := Score(s, now); !almostEqual(got, 0.75) {
		t.Fatalf("in-transit near deadline score = %v, want 0.75", got)
	}

	// Beyond 24h out, the status adjustments do not apply.
	far := shipmentDueIn(36*time.Hour, now)
	far.Status = model.StatusPending
	if got := Score(far, now); !almostEqual(got, 0.25) {
		t.Fatalf("pending far from deadline score = %v, want 0.25", got)
	}
}

func TestScorePriorityAndVIPAdjustments(t *testing.T) {
	now := time.Now().UTC()
	s := shipmentDueIn(36*time.Hour, now)
	s.Status = model.StatusOutForDelivery

	s.Priority = model.PriorityExpress
	if got := Score(s, now); !almostEqual(got, 0.35) {
		t.Fatalf("express score = %v, want 0.35", got)
	}
	s.Priority = model.PrioritySameDay
	if got := Score(s, now); !almostEqual(got, 0.4) {
		t.Fatalf("same-day score = %v, want 0.4", got)
	}
	s.VIP = true
	if got := Score(s, now); !almostEqual(got, 0.6) {
		t.Fatalf("same-day VIP score = %v, want 0.6", got)
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	now := time.Now().UTC()
	offsets := []time.Duration{-100 * time.Hour, -30 * time.Hour, -1 * time.Hour, 0, 3 * time.Hour, 20 * time.Hour, 40 * time.Hour, 200 * time.Hour}
	statuses := []model.ShipmentStatus{model.StatusPending, model.StatusInTransit, model.StatusOutForDelivery, model.StatusDelivered, model.StatusFailed}
	priorities := []model.Priority{model.PriorityStandard, model.PriorityExpress, model.PrioritySameDay}
	for _, off := range offsets {
		for _, st := range statuses {
			for _, pr := range priorities {
				for _, vip := range []bool{false, true} {
					s := shipmentDueIn(off, now)
					s.Status = st
					s.Priority = pr
					s.VIP = vip
					got := Score(s, now)
					if got < 0 || got > 1 {
						t.Fatalf("score out of range: %v (offset=%v status=%s priority=%s vip=%v)", got, off, st, pr, vip)
					}
				}
			}
		}
	}
}
