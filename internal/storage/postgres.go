package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"slaengine/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/slaengine?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shipments (
			id TEXT PRIMARY KEY,
			promised_at TIMESTAMPTZ,
			priority TEXT NOT NULL,
			vip BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			last_scan_at TIMESTAMPTZ,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`CREATE TABLE IF NOT EXISTS escalation_contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			channel TEXT NOT NULL,
			position INTEGER NOT NULL,
			timeout_sec BIGINT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_attempts (
			id BIGSERIAL PRIMARY KEY,
			shipment_id TEXT NOT NULL,
			issue_id TEXT NOT NULL DEFAULT '',
			contact_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload_json JSONB NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			acknowledged_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_shipment ON escalation_attempts(shipment_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_live ON escalation_attempts(shipment_id) WHERE NOT acknowledged`,
		`CREATE TABLE IF NOT EXISTS acknowledgments (
			id BIGSERIAL PRIMARY KEY,
			shipment_id TEXT NOT NULL,
			issue_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL,
			method TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			shipment_id TEXT NOT NULL,
			severity DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_shipment ON issues(shipment_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) UpsertShipment(ctx context.Context, sh model.Shipment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shipments (id, promised_at, priority, vip, status, last_scan_at, risk_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			promised_at = EXCLUDED.promised_at,
			priority = EXCLUDED.priority,
			vip = EXCLUDED.vip,
			status = EXCLUDED.status,
			risk_score = EXCLUDED.risk_score`,
		sh.ID, sh.PromisedAt, string(sh.Priority), sh.VIP,
		string(sh.Status), nullableTime(sh.LastScanAt), sh.RiskScore,
	)
	return err
}

func (s *postgresStore) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, promised_at, priority, vip, status, last_scan_at, risk_score
		FROM shipments WHERE id = $1`, id)
	return scanShipmentPG(row)
}

func (s *postgresStore) ListActiveShipments(ctx context.Context) ([]model.Shipment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, promised_at, priority, vip, status, last_scan_at, risk_score
		FROM shipments
		WHERE status NOT IN ('delivered', 'failed', 'returned')
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Shipment
	for rows.Next() {
		sh, err := scanShipmentPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *postgresStore) UpdateShipmentRiskScore(ctx context.Context, id string, score float64, scannedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipments SET risk_score = $1, last_scan_at = $2 WHERE id = $3`,
		score, scannedAt.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) CreateContact(ctx context.Context, c model.EscalationContact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalation_contacts (id, name, channel, position, timeout_sec, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			channel = EXCLUDED.channel,
			position = EXCLUDED.position,
			timeout_sec = EXCLUDED.timeout_sec,
			active = EXCLUDED.active`,
		c.ID, c.Name, string(c.Channel), c.Position, int64(c.Timeout/time.Second), c.Active)
	return err
}

func (s *postgresStore) ListActiveContacts(ctx context.Context) ([]model.EscalationContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel, position, timeout_sec, active
		FROM escalation_contacts
		WHERE active
		ORDER BY timeout_sec ASC, position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EscalationContact
	for rows.Next() {
		var c model.EscalationContact
		var channel string
		var timeoutSec int64
		if err := rows.Scan(&c.ID, &c.Name, &channel, &c.Position, &timeoutSec, &c.Active); err != nil {
			return nil, err
		}
		c.Channel = model.ContactChannel(channel)
		c.Timeout = time.Duration(timeoutSec) * time.Second
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *postgresStore) CreateAttempt(ctx context.Context, a *model.EscalationAttempt) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO escalation_attempts
			(shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at)
		SELECT $1, $2, $3, $4, $5, $6, FALSE, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM escalation_attempts WHERE shipment_id = $1 AND NOT acknowledged
		)
		RETURNING id`,
		a.ShipmentID, a.IssueID, a.ContactID, a.AttemptNumber, string(a.Kind),
		encodeJSON(a.Payload), a.CreatedAt.UTC()).Scan(&a.ID)
	if err == sql.ErrNoRows {
		return ErrActiveAttempt
	}
	return err
}

func (s *postgresStore) ReplaceAttempt(ctx context.Context, prevID int64, closePayload model.AttemptPayload, closedAt time.Time, next *model.EscalationAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE escalation_attempts
		SET acknowledged = TRUE, payload_json = $1, acknowledged_at = $2
		WHERE id = $3 AND NOT acknowledged`,
		encodeJSON(closePayload), closedAt.UTC(), prevID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		return ErrNotFound
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO escalation_attempts
			(shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id`,
		next.ShipmentID, next.IssueID, next.ContactID, next.AttemptNumber,
		string(next.Kind), encodeJSON(next.Payload), next.CreatedAt.UTC()).Scan(&next.ID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *postgresStore) GetUnacknowledgedAttempt(ctx context.Context, shipmentID string) (model.EscalationAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE shipment_id = $1 AND NOT acknowledged`, shipmentID)
	return scanAttemptPG(row)
}

func (s *postgresStore) CountAttempts(ctx context.Context, shipmentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_attempts WHERE shipment_id = $1`, shipmentID).Scan(&n)
	return n, err
}

func (s *postgresStore) ListAttempts(ctx context.Context, shipmentID string) ([]model.EscalationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE shipment_id = $1
		ORDER BY attempt_number ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttemptsPG(rows)
}

func (s *postgresStore) ListUnacknowledgedAttempts(ctx context.Context) ([]model.EscalationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE NOT acknowledged
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttemptsPG(rows)
}

func (s *postgresStore) AcknowledgeAttempt(ctx context.Context, id int64, payload model.AttemptPayload, ackedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE escalation_attempts
		SET acknowledged = TRUE, payload_json = $1, acknowledged_at = $2
		WHERE id = $3 AND NOT acknowledged`,
		encodeJSON(payload), ackedAt.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) CreateAcknowledgment(ctx context.Context, a *model.Acknowledgment) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO acknowledgments (shipment_id, issue_id, actor, method, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.ShipmentID, a.IssueID, a.Actor, a.Method, a.Notes, a.CreatedAt.UTC()).Scan(&a.ID)
}

func (s *postgresStore) CreateIssue(ctx context.Context, issue model.Issue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, shipment_id, severity, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			status = EXCLUDED.status`,
		issue.ID, issue.ShipmentID, issue.Severity, issue.Status, issue.CreatedAt.UTC())
	return err
}

func (s *postgresStore) ListOpenIssues(ctx context.Context, shipmentID string) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, severity, status, created_at
		FROM issues
		WHERE shipment_id = $1 AND status NOT IN ('resolved', 'closed')
		ORDER BY severity DESC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Issue
	for rows.Next() {
		var is model.Issue
		if err := rows.Scan(&is.ID, &is.ShipmentID, &is.Severity, &is.Status, &is.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func scanShipmentPG(row rowScanner) (model.Shipment, error) {
	var sh model.Shipment
	var promised, lastScan sql.NullTime
	var priority, status string
	err := row.Scan(&sh.ID, &promised, &priority, &sh.VIP, &status, &lastScan, &sh.RiskScore)
	if err == sql.ErrNoRows {
		return model.Shipment{}, ErrNotFound
	}
	if err != nil {
		return model.Shipment{}, err
	}
	sh.Priority = model.Priority(priority)
	sh.Status = model.ShipmentStatus(status)
	if promised.Valid {
		t := promised.Time.UTC()
		sh.PromisedAt = &t
	}
	if lastScan.Valid {
		sh.LastScanAt = lastScan.Time.UTC()
	}
	return sh, nil
}

func scanAttemptPG(row rowScanner) (model.EscalationAttempt, error) {
	var a model.EscalationAttempt
	var kind, payload string
	var ackedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ShipmentID, &a.IssueID, &a.ContactID, &a.AttemptNumber,
		&kind, &payload, &a.Acknowledged, &a.CreatedAt, &ackedAt)
	if err == sql.ErrNoRows {
		return model.EscalationAttempt{}, ErrNotFound
	}
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	a.Kind = model.EventKind(kind)
	a.Payload = decodePayload(payload)
	a.CreatedAt = a.CreatedAt.UTC()
	if ackedAt.Valid {
		t := ackedAt.Time.UTC()
		a.AcknowledgedAt = &t
	}
	return a, nil
}

func collectAttemptsPG(rows *sql.Rows) ([]model.EscalationAttempt, error) {
	var out []model.EscalationAttempt
	for rows.Next() {
		a, err := scanAttemptPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
