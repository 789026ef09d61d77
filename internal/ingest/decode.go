package ingest

import (
	"encoding/json"
	"errors"
	"strings"

	"slaengine/internal/model"
)

var (
	errMissingIssueID    = errors.New("issue event missing issue_id")
	errMissingShipmentID = errors.New("issue event missing shipment_id")
	errBadSeverity       = errors.New("issue event severity out of range")
)

func DecodeIssueEvent(data []byte) (model.IssueEvent, error) {
	var ev model.IssueEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.IssueEvent{}, err
	}
	if err := validateIssueEvent(&ev); err != nil {
		return model.IssueEvent{}, err
	}
	return ev, nil
}

func validateIssueEvent(ev *model.IssueEvent) error {
	ev.IssueID = strings.TrimSpace(ev.IssueID)
	ev.ShipmentID = strings.TrimSpace(ev.ShipmentID)
	if ev.IssueID == "" {
		return errMissingIssueID
	}
	if ev.ShipmentID == "" {
		return errMissingShipmentID
	}
	if ev.Severity < 0 || ev.Severity > 1 {
		return errBadSeverity
	}
	return nil
}
