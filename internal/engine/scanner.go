package engine

import (
	"context"
	"math"
	"time"

	"slaengine/internal/storage"
)

// RunScanner drives the periodic risk scan. The interval is re-read every
// cycle so a config reload takes effect without a restart.
func (e *Engine) RunScanner(ctx context.Context) {
	for {
		interval := e.config().Escalation.ScanInterval
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			e.ScanOnce(ctx, time.Now().UTC())
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// ScanOnce recomputes risk for every active shipment and opens chains where
// the trigger policy fires. A failure on one shipment never aborts the rest.
func (e *Engine) ScanOnce(ctx context.Context, now time.Time) (scanned, escalated int) {
	cfg := e.config().Escalation
	shipments, err := e.store.ListActiveShipments(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("risk scan: listing shipments failed", "err", err)
		}
		return 0, 0
	}
	for _, s := range shipments {
		scanned++
		score := Score(s, now)

		stored := s.RiskScore
		if math.Abs(score-s.RiskScore) > cfg.RiskHysteresis {
			if err := e.store.UpdateShipmentRiskScore(ctx, s.ID, score, now); err != nil {
				if e.logger != nil {
					e.logger.Warn("risk scan: score update failed", "shipment_id", s.ID, "err", err)
				}
				continue
			}
			stored = score
		}
		if e.risk != nil {
			e.risk.Update(s.ID, stored, s.Status, now)
		}

		if stored <= cfg.RiskThreshold {
			continue
		}
		_, err := e.store.GetUnacknowledgedAttempt(ctx, s.ID)
		if err == nil {
			continue
		}
		if err != storage.ErrNotFound {
			if e.logger != nil {
				e.logger.Warn("risk scan: chain lookup failed", "shipment_id", s.ID, "err", err)
			}
			continue
		}

		snapshot := s
		snapshot.RiskScore = stored
		dec, err := e.ShouldTrigger(ctx, snapshot)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("risk scan: trigger check failed", "shipment_id", s.ID, "err", err)
			}
			continue
		}
		if !dec.Trigger {
			continue
		}
		if _, err := e.Open(ctx, s.ID, dec.Reason, "risk-scanner"); err != nil {
			if err == ErrActiveChainExists {
				continue
			}
			if e.logger != nil {
				e.logger.Warn("risk scan: escalation open failed", "shipment_id", s.ID, "err", err)
			}
			continue
		}
		escalated++
	}
	if e.logger != nil {
		e.logger.Debug("risk scan complete", "scanned", scanned, "escalated", escalated)
	}
	return scanned, escalated
}
