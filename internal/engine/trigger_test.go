package engine

import (
	"strings"
	"testing"

	"slaengine/internal/config"
	"slaengine/internal/model"
)

func TestDecideActiveChainBlocks(t *testing.T) {
	cfg := config.DefaultConfig().Escalation
	s := model.Shipment{ID: "shp-1", VIP: true, RiskScore: 0.99}
	issues := []model.Issue{{ID: "iss-1", ShipmentID: "shp-1", Severity: 0.95, Status: "open"}}
	dec := Decide(s, issues, true, cfg)
	if dec.Trigger {
		t.Fatalf("expected no trigger while a chain is active, got reason %q", dec.Reason)
	}
	if dec.Reason != "active escalation exists" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}
}

func TestDecideSeverityRule(t *testing.T) {
	cfg := config.DefaultConfig().Escalation
	s := model.Shipment{ID: "shp-1", RiskScore: 0.1}
	issues := []model.Issue{
		{ID: "iss-1", ShipmentID: "shp-1", Severity: 0.5, Status: "open"},
		{ID: "iss-2", ShipmentID: "shp-1", Severity: 0.9, Status: "open"},
	}
	dec := Decide(s, issues, false, cfg)
	if !dec.Trigger {
		t.Fatalf("expected trigger for severity 0.9 over threshold 0.8")
	}
	if !strings.Contains(dec.Reason, "severity") {
		t.Fatalf("reason should name the severity rule: %q", dec.Reason)
	}

	// At exactly the threshold the rule stays quiet.
	atThreshold := []model.Issue{{ID: "iss-3", ShipmentID: "shp-1", Severity: 0.8, Status: "open"}}
	dec = Decide(s, atThreshold, false, cfg)
	if dec.Trigger {
		t.Fatalf("severity equal to threshold must not trigger, got %q", dec.Reason)
	}
}

func TestDecideVIPWithOpenIssue(t *testing.T) {
	cfg := config.DefaultConfig().Escalation
	s := model.Shipment{ID: "shp-1", VIP: true, RiskScore: 0.1}
	issues := []model.Issue{{ID: "iss-1", ShipmentID: "shp-1", Severity: 0.2, Status: "open"}}
	dec := Decide(s, issues, false, cfg)
	if !dec.Trigger {
		t.Fatalf("expected trigger for VIP shipment with an open issue")
	}
	if dec.Reason != "VIP shipment with open issue" {
		t.Fatalf("unexpected reason: %q", dec.Reason)
	}

	// VIP without issues does not trigger on its own.
	dec = Decide(s, nil, false, cfg)
	if dec.Trigger {
		t.Fatalf("VIP with no issues must not trigger, got %q", dec.Reason)
	}
}

func TestDecideRiskRule(t *testing.T) {
	cfg := config.DefaultConfig().Escalation
	s := model.Shipment{ID: "shp-1", RiskScore: 0.75}
	dec := Decide(s, nil, false, cfg)
	if !dec.Trigger {
		t.Fatalf("expected trigger for risk 0.75 over threshold 0.7")
	}
	if !strings.Contains(dec.Reason, "risk") {
		t.Fatalf("reason should name the risk rule: %q", dec.Reason)
	}

	s.RiskScore = 0.7
	dec = Decide(s, nil, false, cfg)
	if dec.Trigger {
		t.Fatalf("risk equal to threshold must not trigger, got %q", dec.Reason)
	}
}

func TestDecideSeverityBeatsRisk(t *testing.T) {
	cfg := config.DefaultConfig().Escalation
	s := model.Shipment{ID: "shp-1", RiskScore: 0.9}
	issues := []model.Issue{{ID: "iss-1", ShipmentID: "shp-1", Severity: 0.95, Status: "open"}}
	dec := Decide(s, issues, false, cfg)
	if !dec.Trigger || !strings.Contains(dec.Reason, "severity") {
		t.Fatalf("severity rule should win over risk rule, got %q", dec.Reason)
	}
}
