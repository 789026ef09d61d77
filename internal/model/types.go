package model

import "time"

type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityExpress  Priority = "express"
	PrioritySameDay  Priority = "same_day"
)

type ShipmentStatus string

const (
	StatusPending        ShipmentStatus = "pending"
	StatusInTransit      ShipmentStatus = "in_transit"
	StatusOutForDelivery ShipmentStatus = "out_for_delivery"
	StatusDelivered      ShipmentStatus = "delivered"
	StatusFailed         ShipmentStatus = "failed"
	StatusReturned       ShipmentStatus = "returned"
)

// Terminal returns true for lifecycle states excluded from risk scanning.
func (s ShipmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusReturned
}

type Shipment struct {
	ID         string         `json:"id"`
	PromisedAt *time.Time     `json:"promised_at,omitempty"`
	Priority   Priority       `json:"priority"`
	VIP        bool           `json:"vip"`
	Status     ShipmentStatus `json:"status"`
	LastScanAt time.Time      `json:"last_scan_at"`
	RiskScore  float64        `json:"risk_score"`
}

type Issue struct {
	ID         string    `json:"id"`
	ShipmentID string    `json:"shipment_id"`
	Severity   float64   `json:"severity"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type ContactChannel string

const (
	ChannelEmail ContactChannel = "email"
	ChannelSMS   ContactChannel = "sms"
	ChannelPhone ContactChannel = "phone"
	ChannelPager ContactChannel = "pager"
)

// EscalationContact is one rung of the ladder. The walk order is ascending
// configured timeout among active contacts.
type EscalationContact struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Channel  ContactChannel `json:"channel"`
	Position int            `json:"position"`
	Timeout  time.Duration  `json:"timeout"`
	Active   bool           `json:"active"`
}

type EventKind string

const (
	KindTriggered    EventKind = "triggered"
	KindAdvanced     EventKind = "advanced"
	KindAcknowledged EventKind = "acknowledged"
)

// AttemptPayload is a tagged union keyed by Kind; exactly the field matching
// the kind is set, plus Ack once the attempt is closed.
type AttemptPayload struct {
	Kind    EventKind       `json:"kind"`
	Trigger *TriggerPayload `json:"trigger,omitempty"`
	Advance *AdvancePayload `json:"advance,omitempty"`
	Ack     *AckPayload     `json:"ack,omitempty"`
}

type TriggerPayload struct {
	Reason         string         `json:"reason"`
	TriggeredBy    string         `json:"triggered_by"`
	ContactName    string         `json:"contact_name"`
	ContactChannel ContactChannel `json:"contact_channel"`
}

type AdvancePayload struct {
	Reason         string         `json:"reason"`
	Actor          string         `json:"actor"`
	FromPosition   int            `json:"from_position"`
	ToPosition     int            `json:"to_position"`
	ContactName    string         `json:"contact_name"`
	ContactChannel ContactChannel `json:"contact_channel"`
}

type AckPayload struct {
	Method  string    `json:"method"`
	Actor   string    `json:"actor"`
	Notes   string    `json:"notes,omitempty"`
	AckedAt time.Time `json:"acked_at"`
}

// EscalationAttempt is an append-only log entry: created by open/advance,
// mutated exactly once by acknowledge, never deleted. AttemptNumber is a
// running count across the shipment's whole chain history.
type EscalationAttempt struct {
	ID             int64          `json:"id"`
	ShipmentID     string         `json:"shipment_id"`
	IssueID        string         `json:"issue_id,omitempty"`
	ContactID      string         `json:"contact_id"`
	AttemptNumber  int            `json:"attempt_number"`
	Kind           EventKind      `json:"kind"`
	Payload        AttemptPayload `json:"payload"`
	Acknowledged   bool           `json:"acknowledged"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// Acknowledgment is the durable side record of who closed a chain and how.
// Creating it is best-effort relative to the attempt update it accompanies.
type Acknowledgment struct {
	ID         int64     `json:"id"`
	ShipmentID string    `json:"shipment_id"`
	IssueID    string    `json:"issue_id,omitempty"`
	Actor      string    `json:"actor"`
	Method     string    `json:"method"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChainStatus string

const (
	ChainActive       ChainStatus = "active"
	ChainResolved     ChainStatus = "resolved"
	ChainAcknowledged ChainStatus = "acknowledged"
)

// IssueEvent is the intake wire shape for "issue created" hooks arriving over
// REST or Kafka.
type IssueEvent struct {
	IssueID    string  `json:"issue_id"`
	ShipmentID string  `json:"shipment_id"`
	Severity   float64 `json:"severity"`
	Status     string  `json:"status,omitempty"`
	Source     string  `json:"source,omitempty"`
}
