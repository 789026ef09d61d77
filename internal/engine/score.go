package engine

import (
	"time"

	"slaengine/internal/model"
)

// Risk scoring bands. These are policy constants, not physics; downstream
// thresholds (trigger, hysteresis) are configured, but the bands themselves
// are fixed so stored scores stay comparable across deployments.
const (
	baseRiskNoPromise = 0.1

	overdueUnder24h = 0.7
	overdueUnder48h = 0.85
	overdueBeyond   = 0.95

	dueUnder12h  = 0.6
	dueUnder24h  = 0.4
	dueUnder48h  = 0.25
	dueBeyond48h = 0.1

	adjInTransitSoon = 0.15
	adjPendingSoon   = 0.2
	adjSameDay       = 0.15
	adjExpress       = 0.1
	adjVIP           = 0.2
)

// Score estimates the probability, in [0,1], that a shipment breaches its
// promised delivery. Pure and deterministic for a given now.
func Score(s model.Shipment, now time.Time) float64 {
	if s.Status == model.StatusDelivered {
		return 0
	}

	if s.PromisedAt == nil {
		risk := baseRiskNoPromise
		if s.Status == model.StatusInTransit {
			risk += 0.1
		}
		if s.VIP {
			risk += 0.1
		}
		if s.Priority == model.PrioritySameDay {
			risk += 0.1
		}
		return clamp01(risk)
	}

	hoursUntil := s.PromisedAt.Sub(now).Hours()

	var risk float64
	if hoursUntil < 0 {
		overdue := -hoursUntil
		switch {
		case overdue < 24:
			risk = overdueUnder24h
		case overdue < 48:
			risk = overdueUnder48h
		default:
			risk = overdueBeyond
		}
	} else {
		switch {
		case hoursUntil < 12:
			risk = dueUnder12h
		case hoursUntil < 24:
			risk = dueUnder24h
		case hoursUntil < 48:
			risk = dueUnder48h
		default:
			risk = dueBeyond48h
		}
	}

	if s.Status == model.StatusInTransit && hoursUntil < 24 {
		risk += adjInTransitSoon
	}
	if s.Status == model.StatusPending && hoursUntil < 24 {
		risk += adjPendingSoon
	}
	switch s.Priority {
	case model.PrioritySameDay:
		risk += adjSameDay
	case model.PriorityExpress:
		risk += adjExpress
	}
	if s.VIP {
		risk += adjVIP
	}

	return clamp01(risk)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
