package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"slaengine/internal/config"
	"slaengine/internal/model"
	"slaengine/internal/notify"
	"slaengine/internal/riskview"
	"slaengine/internal/storage"
)

// Engine owns the escalation chain state machine and the two periodic jobs
// that drive it. All shared mutable state lives in the store; the engine
// itself only caches configuration.
type Engine struct {
	logger *slog.Logger
	store  storage.Store
	sink   notify.Sink
	risk   *riskview.Store
	cfg    atomic.Value
}

func NewEngine(cfg *config.Config, logger *slog.Logger, store storage.Store, sink notify.Sink, risk *riskview.Store) *Engine {
	e := &Engine{
		logger: logger,
		store:  store,
		sink:   sink,
		risk:   risk,
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// StartIssueIntake consumes issue-created events from the intake channel and
// runs the trigger policy for each.
func (e *Engine) StartIssueIntake(ctx context.Context, in <-chan model.IssueEvent) {
	go func() {
		for {
			select {
			case ev := <-in:
				if err := e.HandleIssueEvent(ctx, ev); err != nil {
					if e.logger != nil {
						e.logger.Warn("issue event failed",
							"issue_id", ev.IssueID,
							"shipment_id", ev.ShipmentID,
							"err", err,
						)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// HandleIssueEvent persists the issue, then opens a chain when the trigger
// policy says so. A policy "no" is not an error.
func (e *Engine) HandleIssueEvent(ctx context.Context, ev model.IssueEvent) error {
	shipment, err := e.store.GetShipment(ctx, ev.ShipmentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return ErrShipmentNotFound
		}
		return err
	}
	status := ev.Status
	if status == "" {
		status = "open"
	}
	issue := model.Issue{
		ID:         ev.IssueID,
		ShipmentID: ev.ShipmentID,
		Severity:   clamp01(ev.Severity),
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateIssue(ctx, issue); err != nil {
		return err
	}
	dec, err := e.ShouldTrigger(ctx, shipment)
	if err != nil {
		return err
	}
	if !dec.Trigger {
		return nil
	}
	_, err = e.Open(ctx, shipment.ID, dec.Reason, "issue-hook")
	if err == ErrActiveChainExists {
		// Lost the race to another trigger source; the chain is open either way.
		return nil
	}
	return err
}

func (e *Engine) emit(ctx context.Context, channel string, attempt model.EscalationAttempt) {
	if e.sink == nil {
		return
	}
	ev := notify.Event{
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Attempt:   attempt,
	}
	if err := e.sink.Publish(ctx, channel, ev); err != nil {
		if e.logger != nil {
			e.logger.Warn("notification publish failed",
				"channel", channel,
				"shipment_id", attempt.ShipmentID,
				"err", err,
			)
		}
	}
}
