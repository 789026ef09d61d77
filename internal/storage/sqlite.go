package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slaengine/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:slaengine.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shipments (
			id TEXT PRIMARY KEY,
			promised_at TEXT,
			priority TEXT NOT NULL,
			vip INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			last_scan_at TEXT,
			risk_score REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`CREATE TABLE IF NOT EXISTS escalation_contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			channel TEXT NOT NULL,
			position INTEGER NOT NULL,
			timeout_sec INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			shipment_id TEXT NOT NULL,
			issue_id TEXT NOT NULL DEFAULT '',
			contact_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			acknowledged_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_shipment ON escalation_attempts(shipment_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_live ON escalation_attempts(shipment_id) WHERE acknowledged = 0`,
		`CREATE TABLE IF NOT EXISTS acknowledgments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			shipment_id TEXT NOT NULL,
			issue_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL,
			method TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			shipment_id TEXT NOT NULL,
			severity REAL NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
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

func (s *sqliteStore) UpsertShipment(ctx context.Context, sh model.Shipment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shipments (id, promised_at, priority, vip, status, last_scan_at, risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			promised_at = excluded.promised_at,
			priority = excluded.priority,
			vip = excluded.vip,
			status = excluded.status,
			risk_score = excluded.risk_score`,
		sh.ID, encodeTimePtr(sh.PromisedAt), string(sh.Priority), boolToInt(sh.VIP),
		string(sh.Status), encodeTime(sh.LastScanAt), sh.RiskScore,
	)
	return err
}

func (s *sqliteStore) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, promised_at, priority, vip, status, last_scan_at, risk_score
		FROM shipments WHERE id = ?`, id)
	return scanShipmentText(row)
}

func (s *sqliteStore) ListActiveShipments(ctx context.Context) ([]model.Shipment, error) {
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
		sh, err := scanShipmentText(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateShipmentRiskScore(ctx context.Context, id string, score float64, scannedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipments SET risk_score = ?, last_scan_at = ? WHERE id = ?`,
		score, encodeTime(scannedAt), id)
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

func (s *sqliteStore) CreateContact(ctx context.Context, c model.EscalationContact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalation_contacts (id, name, channel, position, timeout_sec, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			channel = excluded.channel,
			position = excluded.position,
			timeout_sec = excluded.timeout_sec,
			active = excluded.active`,
		c.ID, c.Name, string(c.Channel), c.Position, int64(c.Timeout/time.Second), boolToInt(c.Active))
	return err
}

func (s *sqliteStore) ListActiveContacts(ctx context.Context) ([]model.EscalationContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel, position, timeout_sec, active
		FROM escalation_contacts
		WHERE active = 1
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
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &channel, &c.Position, &timeoutSec, &active); err != nil {
			return nil, err
		}
		c.Channel = model.ContactChannel(channel)
		c.Timeout = time.Duration(timeoutSec) * time.Second
		c.Active = active != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateAttempt(ctx context.Context, a *model.EscalationAttempt) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO escalation_attempts
			(shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at)
		SELECT ?, ?, ?, ?, ?, ?, 0, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM escalation_attempts WHERE shipment_id = ? AND acknowledged = 0
		)`,
		a.ShipmentID, a.IssueID, a.ContactID, a.AttemptNumber, string(a.Kind),
		encodeJSON(a.Payload), encodeTime(a.CreatedAt), a.ShipmentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActiveAttempt
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *sqliteStore) ReplaceAttempt(ctx context.Context, prevID int64, closePayload model.AttemptPayload, closedAt time.Time, next *model.EscalationAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE escalation_attempts
		SET acknowledged = 1, payload_json = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0`,
		encodeJSON(closePayload), encodeTime(closedAt), prevID)
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
	res, err = tx.ExecContext(ctx,
		`INSERT INTO escalation_attempts
			(shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		next.ShipmentID, next.IssueID, next.ContactID, next.AttemptNumber,
		string(next.Kind), encodeJSON(next.Payload), encodeTime(next.CreatedAt))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	next.ID = id
	return tx.Commit()
}

func (s *sqliteStore) GetUnacknowledgedAttempt(ctx context.Context, shipmentID string) (model.EscalationAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE shipment_id = ? AND acknowledged = 0`, shipmentID)
	return scanAttemptText(row)
}

func (s *sqliteStore) CountAttempts(ctx context.Context, shipmentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_attempts WHERE shipment_id = ?`, shipmentID).Scan(&n)
	return n, err
}

func (s *sqliteStore) ListAttempts(ctx context.Context, shipmentID string) ([]model.EscalationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE shipment_id = ?
		ORDER BY attempt_number ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttemptsText(rows)
}

func (s *sqliteStore) ListUnacknowledgedAttempts(ctx context.Context) ([]model.EscalationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, issue_id, contact_id, attempt_number, kind, payload_json, acknowledged, created_at, acknowledged_at
		FROM escalation_attempts
		WHERE acknowledged = 0
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttemptsText(rows)
}

func (s *sqliteStore) AcknowledgeAttempt(ctx context.Context, id int64, payload model.AttemptPayload, ackedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE escalation_attempts
		SET acknowledged = 1, payload_json = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0`,
		encodeJSON(payload), encodeTime(ackedAt), id)
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

func (s *sqliteStore) CreateAcknowledgment(ctx context.Context, a *model.Acknowledgment) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO acknowledgments (shipment_id, issue_id, actor, method, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ShipmentID, a.IssueID, a.Actor, a.Method, a.Notes, encodeTime(a.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *sqliteStore) CreateIssue(ctx context.Context, issue model.Issue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, shipment_id, severity, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status`,
		issue.ID, issue.ShipmentID, issue.Severity, issue.Status, encodeTime(issue.CreatedAt))
	return err
}

func (s *sqliteStore) ListOpenIssues(ctx context.Context, shipmentID string) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shipment_id, severity, status, created_at
		FROM issues
		WHERE shipment_id = ? AND status NOT IN ('resolved', 'closed')
		ORDER BY severity DESC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Issue
	for rows.Next() {
		var is model.Issue
		var created string
		if err := rows.Scan(&is.ID, &is.ShipmentID, &is.Severity, &is.Status, &created); err != nil {
			return nil, err
		}
		is.CreatedAt = decodeTime(created)
		out = append(out, is)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipmentText(row rowScanner) (model.Shipment, error) {
	var sh model.Shipment
	var promised, lastScan sql.NullString
	var priority, status string
	var vip int
	err := row.Scan(&sh.ID, &promised, &priority, &vip, &status, &lastScan, &sh.RiskScore)
	if err == sql.ErrNoRows {
		return model.Shipment{}, ErrNotFound
	}
	if err != nil {
		return model.Shipment{}, err
	}
	sh.Priority = model.Priority(priority)
	sh.Status = model.ShipmentStatus(status)
	sh.VIP = vip != 0
	if promised.Valid && promised.String != "" {
		t := decodeTime(promised.String)
		sh.PromisedAt = &t
	}
	if lastScan.Valid && lastScan.String != "" {
		sh.LastScanAt = decodeTime(lastScan.String)
	}
	return sh, nil
}

func scanAttemptText(row rowScanner) (model.EscalationAttempt, error) {
	var a model.EscalationAttempt
	var kind, payload, created string
	var ackedAt sql.NullString
	var acked int
	err := row.Scan(&a.ID, &a.ShipmentID, &a.IssueID, &a.ContactID, &a.AttemptNumber,
		&kind, &payload, &acked, &created, &ackedAt)
	if err == sql.ErrNoRows {
		return model.EscalationAttempt{}, ErrNotFound
	}
	if err != nil {
		return model.EscalationAttempt{}, err
	}
	a.Kind = model.EventKind(kind)
	a.Payload = decodePayload(payload)
	a.Acknowledged = acked != 0
	a.CreatedAt = decodeTime(created)
	if ackedAt.Valid && ackedAt.String != "" {
		t := decodeTime(ackedAt.String)
		a.AcknowledgedAt = &t
	}
	return a, nil
}

func collectAttemptsText(rows *sql.Rows) ([]model.EscalationAttempt, error) {
	var out []model.EscalationAttempt
	for rows.Next() {
		a, err := scanAttemptText(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
