package engine

import (
	"context"
	"fmt"

	"slaengine/internal/config"
	"slaengine/internal/model"
	"slaengine/internal/storage"
)

type Decision struct {
	Trigger bool   `json:"trigger"`
	Reason  string `json:"reason"`
}

// Decide applies the trigger rules in order, first match wins. Pure; callers
// supply the active-chain flag and the shipment's open issues.
func Decide(s model.Shipment, issues []model.Issue, hasActive bool, cfg config.EscalationConfig) Decision {
	if hasActive {
		return Decision{Trigger: false, Reason: "active escalation exists"}
	}
	for _, issue := range issues {
		if issue.Severity > cfg.IssueSeverityThreshold {
			return Decision{
				Trigger: true,
				Reason:  fmt.Sprintf("Issue severity %.2f exceeds threshold %.2f", issue.Severity, cfg.IssueSeverityThreshold),
			}
		}
	}
	if s.VIP && len(issues) > 0 {
		return Decision{Trigger: true, Reason: "VIP shipment with open issue"}
	}
	if s.RiskScore > cfg.RiskThreshold {
		return Decision{
			Trigger: true,
			Reason:  fmt.Sprintf("High SLA risk score %.2f", s.RiskScore),
		}
	}
	return Decision{Trigger: false, Reason: ""}
}

// ShouldTrigger loads the shipment's chain state and open issues, then
// evaluates Decide. It has no side effects; callers invoke Open themselves.
func (e *Engine) ShouldTrigger(ctx context.Context, s model.Shipment) (Decision, error) {
	hasActive := true
	_, err := e.store.GetUnacknowledgedAttempt(ctx, s.ID)
	if err == storage.ErrNotFound {
		hasActive = false
	} else if err != nil {
		return Decision{}, err
	}
	issues, err := e.store.ListOpenIssues(ctx, s.ID)
	if err != nil {
		return Decision{}, err
	}
	return Decide(s, issues, hasActive, e.config().Escalation), nil
}
