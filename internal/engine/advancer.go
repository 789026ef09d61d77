package engine

import (
	"context"
	"time"

	"slaengine/internal/model"
)

// RunAdvancer drives the periodic ladder walk for chains whose current
// contact's timeout has elapsed without an acknowledgment.
func (e *Engine) RunAdvancer(ctx context.Context) {
	for {
		interval := e.config().Escalation.AdvanceInterval
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			e.AdvanceOnce(ctx, time.Now().UTC())
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// AdvanceOnce advances every expired live attempt, oldest first. A chain at
// the last rung stays parked there until acknowledged; per-item failures are
// logged and the batch continues.
func (e *Engine) AdvanceOnce(ctx context.Context, now time.Time) (checked, advanced int) {
	cfg := e.config().Escalation
	attempts, err := e.store.ListUnacknowledgedAttempts(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("ladder advance: listing attempts failed", "err", err)
		}
		return 0, 0
	}
	if len(attempts) == 0 {
		return 0, 0
	}
	contacts, err := e.store.ListActiveContacts(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("ladder advance: listing contacts failed", "err", err)
		}
		return 0, 0
	}
	byID := make(map[string]model.EscalationContact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	for _, a := range attempts {
		checked++
		timeout := cfg.DefaultContactTimeout
		if c, ok := byID[a.ContactID]; ok && c.Timeout > 0 {
			timeout = c.Timeout
		}
		if now.Sub(a.CreatedAt) < timeout {
			continue
		}
		if _, err := e.Advance(ctx, a.ShipmentID, "timeout expired", "ladder-advancer"); err != nil {
			if err == ErrLadderExhausted {
				if e.logger != nil {
					e.logger.Debug("ladder advance: chain at last contact", "shipment_id", a.ShipmentID)
				}
				continue
			}
			if e.logger != nil {
				e.logger.Warn("ladder advance: advance failed", "shipment_id", a.ShipmentID, "err", err)
			}
			continue
		}
		advanced++
	}
	if e.logger != nil {
		e.logger.Debug("ladder advance complete", "checked", checked, "advanced", advanced)
	}
	return checked, advanced
}
