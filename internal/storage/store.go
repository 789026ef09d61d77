package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"slaengine/internal/config"
	"slaengine/internal/model"
)

var (
	// ErrNotFound signals that the referenced record does not exist or is
	// not in the expected state for the requested mutation.
	ErrNotFound = errors.New("record not found")
	// ErrActiveAttempt signals the conditional insert guard: an
	// unacknowledged attempt already exists for the shipment.
	ErrActiveAttempt = errors.New("unacknowledged attempt already exists")
)

type Store interface {
	Init(ctx context.Context) error
	Close() error

	UpsertShipment(ctx context.Context, s model.Shipment) error
	GetShipment(ctx context.Context, id string) (model.Shipment, error)
	ListActiveShipments(ctx context.Context) ([]model.Shipment, error)
	UpdateShipmentRiskScore(ctx context.Context, id string, score float64, scannedAt time.Time) error

	CreateContact(ctx context.Context, c model.EscalationContact) error
	ListActiveContacts(ctx context.Context) ([]model.EscalationContact, error)

	// CreateAttempt is the atomic check-and-insert that opens a chain: it
	// fails with ErrActiveAttempt when the shipment already has an
	// unacknowledged attempt.
	CreateAttempt(ctx context.Context, a *model.EscalationAttempt) error
	// ReplaceAttempt closes the attempt prevID with closePayload and inserts
	// next in a single transaction; the one-live-attempt invariant never has
	// a window with two open rows. Fails with ErrNotFound when prevID is
	// missing or already acknowledged.
	ReplaceAttempt(ctx context.Context, prevID int64, closePayload model.AttemptPayload, closedAt time.Time, next *model.EscalationAttempt) error
	GetUnacknowledgedAttempt(ctx context.Context, shipmentID string) (model.EscalationAttempt, error)
	CountAttempts(ctx context.Context, shipmentID string) (int, error)
	ListAttempts(ctx context.Context, shipmentID string) ([]model.EscalationAttempt, error)
	ListUnacknowledgedAttempts(ctx context.Context) ([]model.EscalationAttempt, error)
	AcknowledgeAttempt(ctx context.Context, id int64, payload model.AttemptPayload, ackedAt time.Time) error

	CreateAcknowledgment(ctx context.Context, a *model.Acknowledgment) error

	CreateIssue(ctx context.Context, issue model.Issue) error
	ListOpenIssues(ctx context.Context, shipmentID string) ([]model.Issue, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func decodePayload(data string) model.AttemptPayload {
	var p model.AttemptPayload
	_ = json.Unmarshal([]byte(data), &p)
	return p
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
