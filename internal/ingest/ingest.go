package ingest

import (
	"context"
	"log/slog"
	"time"

	"slaengine/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.IssueEvent, ev model.IssueEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("issue event channel full, dropping event", "issue_id", ev.IssueID, "shipment_id", ev.ShipmentID)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
