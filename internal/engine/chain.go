package engine

import (
	"context"
	"fmt"
	"time"

	"slaengine/internal/model"
	"slaengine/internal/notify"
	"slaengine/internal/storage"
)

// Open starts a new escalation chain for the shipment: attempt addressed to
// the first ladder contact, guarded by the store's conditional insert so two
// concurrent opens cannot both succeed.
func (e *Engine) Open(ctx context.Context, shipmentID, reason, triggeredBy string) (model.EscalationAttempt, error) {
	if _, err := e.store.GetShipment(ctx, shipmentID); err != nil {
		if err == storage.ErrNotFound {
			return model.EscalationAttempt{}, ErrShipmentNotFound
		}
		return model.EscalationAttempt{}, err
	}
	ladder, err := e.store.ListActiveContacts(ctx)
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	if len(ladder) == 0 {
		return model.EscalationAttempt{}, ErrNoContacts
	}
	count, err := e.store.CountAttempts(ctx, shipmentID)
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	first := ladder[0]
	now := time.Now().UTC()
	attempt := model.EscalationAttempt{
		ShipmentID:    shipmentID,
		ContactID:     first.ID,
		AttemptNumber: count + 1,
		Kind:          model.KindTriggered,
		Payload: model.AttemptPayload{
			Kind: model.KindTriggered,
			Trigger: &model.TriggerPayload{
				Reason:         reason,
				TriggeredBy:    triggeredBy,
				ContactName:    first.Name,
				ContactChannel: first.Channel,
			},
		},
		CreatedAt: now,
	}
	if err := e.store.CreateAttempt(ctx, &attempt); err != nil {
		if err == storage.ErrActiveAttempt {
			return model.EscalationAttempt{}, ErrActiveChainExists
		}
		return model.EscalationAttempt{}, err
	}
	if e.logger != nil {
		e.logger.Info("escalation opened",
			"shipment_id", shipmentID,
			"attempt", attempt.AttemptNumber,
			"contact", first.Name,
			"reason", reason,
		)
	}
	e.emit(ctx, notify.ChannelTriggered, attempt)
	return attempt, nil
}

// Advance walks the chain to the next ladder contact. The superseded attempt
// is closed and the new one inserted in a single store transaction, keeping
// the one-live-attempt invariant without a two-row window.
func (e *Engine) Advance(ctx context.Context, shipmentID, reason, actor string) (model.EscalationAttempt, error) {
	current, err := e.store.GetUnacknowledgedAttempt(ctx, shipmentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return model.EscalationAttempt{}, ErrNoActiveChain
		}
		return model.EscalationAttempt{}, err
	}
	ladder, err := e.store.ListActiveContacts(ctx)
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	if len(ladder) == 0 {
		return model.EscalationAttempt{}, ErrNoContacts
	}
	pos := -1
	for i, c := range ladder {
		if c.ID == current.ContactID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return model.EscalationAttempt{}, fmt.Errorf("%w: current contact %s is no longer active", ErrNoContacts, current.ContactID)
	}
	if pos == len(ladder)-1 {
		return model.EscalationAttempt{}, ErrLadderExhausted
	}
	next := ladder[pos+1]
	count, err := e.store.CountAttempts(ctx, shipmentID)
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	now := time.Now().UTC()
	attempt := model.EscalationAttempt{
		ShipmentID:    shipmentID,
		IssueID:       current.IssueID,
		ContactID:     next.ID,
		AttemptNumber: count + 1,
		Kind:          model.KindAdvanced,
		Payload: model.AttemptPayload{
			Kind: model.KindAdvanced,
			Advance: &model.AdvancePayload{
				Reason:         reason,
				Actor:          actor,
				FromPosition:   ladder[pos].Position,
				ToPosition:     next.Position,
				ContactName:    next.Name,
				ContactChannel: next.Channel,
			},
		},
		CreatedAt: now,
	}
	closePayload := current.Payload
	closePayload.Ack = &model.AckPayload{
		Method:  "superseded",
		Actor:   "system",
		AckedAt: now,
	}
	if err := e.store.ReplaceAttempt(ctx, current.ID, closePayload, now, &attempt); err != nil {
		if err == storage.ErrNotFound {
			return model.EscalationAttempt{}, ErrNoActiveChain
		}
		return model.EscalationAttempt{}, err
	}
	if e.logger != nil {
		e.logger.Info("escalation advanced",
			"shipment_id", shipmentID,
			"attempt", attempt.AttemptNumber,
			"contact", next.Name,
			"reason", reason,
		)
	}
	e.emit(ctx, notify.ChannelAdvanced, attempt)
	return attempt, nil
}

// Acknowledge closes the chain's live attempt. The Acknowledgment side record
// is best-effort: the attempt update is the authoritative closure state, so a
// side-record failure is logged and swallowed.
func (e *Engine) Acknowledge(ctx context.Context, shipmentID, method, notes, actor string) (model.EscalationAttempt, error) {
	current, err := e.store.GetUnacknowledgedAttempt(ctx, shipmentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return model.EscalationAttempt{}, ErrNoActiveChain
		}
		return model.EscalationAttempt{}, err
	}
	now := time.Now().UTC()
	payload := current.Payload
	payload.Ack = &model.AckPayload{
		Method:  method,
		Actor:   actor,
		Notes:   notes,
		AckedAt: now,
	}
	if err := e.store.AcknowledgeAttempt(ctx, current.ID, payload, now); err != nil {
		if err == storage.ErrNotFound {
			return model.EscalationAttempt{}, ErrNoActiveChain
		}
		return model.EscalationAttempt{}, err
	}
	current.Acknowledged = true
	current.Payload = payload
	current.AcknowledgedAt = &now

	ack := model.Acknowledgment{
		ShipmentID: shipmentID,
		IssueID:    current.IssueID,
		Actor:      actor,
		Method:     method,
		Notes:      notes,
		CreatedAt:  now,
	}
	if err := e.store.CreateAcknowledgment(ctx, &ack); err != nil {
		if e.logger != nil {
			e.logger.Warn("acknowledgment record failed",
				"shipment_id", shipmentID,
				"attempt_id", current.ID,
				"err", err,
			)
		}
	}
	if e.logger != nil {
		e.logger.Info("escalation acknowledged",
			"shipment_id", shipmentID,
			"attempt", current.AttemptNumber,
			"method", method,
			"actor", actor,
		)
	}
	e.emit(ctx, notify.ChannelAcknowledged, current)
	return current, nil
}

// ListEscalations returns the shipment's attempts in attempt-number order and
// the derived chain status.
func (e *Engine) ListEscalations(ctx context.Context, shipmentID string, activeOnly bool) ([]model.EscalationAttempt, model.ChainStatus, error) {
	attempts, err := e.store.ListAttempts(ctx, shipmentID)
	if err != nil {
		return nil, "", err
	}
	status := ChainState(attempts)
	if activeOnly {
		live := attempts[:0:0]
		for _, a := range attempts {
			if !a.Acknowledged {
				live = append(live, a)
			}
		}
		attempts = live
	}
	return attempts, status, nil
}

// ChainState derives a shipment's aggregate escalation status: active while
// any attempt is unacknowledged, resolved once every attempt is closed.
func ChainState(attempts []model.EscalationAttempt) model.ChainStatus {
	for _, a := range attempts {
		if !a.Acknowledged {
			return model.ChainActive
		}
	}
	if len(attempts) > 0 {
		return model.ChainResolved
	}
	return model.ChainAcknowledged
}
