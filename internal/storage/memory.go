package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"slaengine/internal/model"
)

// Memory backs tests and single-process development runs. The mutex is
// held across each whole operation so the conditional-insert guard behaves
// like the partial unique index the SQL drivers carry.
type Memory struct {
	mu        sync.Mutex
	shipments map[string]model.Shipment
	contacts  map[string]model.EscalationContact
	attempts  []model.EscalationAttempt
	acks      []model.Acknowledgment
	issues    map[string]model.Issue
	nextID    int64
}

func NewMemory() *Memory {
	return &Memory{
		shipments: make(map[string]model.Shipment),
		contacts:  make(map[string]model.EscalationContact),
		issues:    make(map[string]model.Issue),
		nextID:    1,
	}
}

func (m *Memory) Init(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) UpsertShipment(ctx context.Context, s model.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments[s.ID] = s
	return nil
}

func (m *Memory) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return model.Shipment{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListActiveShipments(ctx context.Context) ([]model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Shipment, 0, len(m.shipments))
	for _, s := range m.shipments {
		if s.Status.Terminal() {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateShipmentRiskScore(ctx context.Context, id string, score float64, scannedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return ErrNotFound
	}
	s.RiskScore = score
	s.LastScanAt = scannedAt
	m.shipments[id] = s
	return nil
}

func (m *Memory) CreateContact(ctx context.Context, c model.EscalationContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.ID] = c
	return nil
}

func (m *Memory) ListActiveContacts(ctx context.Context) ([]model.EscalationContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EscalationContact, 0, len(m.contacts))
	for _, c := range m.contacts {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timeout != out[j].Timeout {
			return out[i].Timeout < out[j].Timeout
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *Memory) CreateAttempt(ctx context.Context, a *model.EscalationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.ShipmentID == a.ShipmentID && !existing.Acknowledged {
			return ErrActiveAttempt
		}
	}
	a.ID = m.nextID
	m.nextID++
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *Memory) ReplaceAttempt(ctx context.Context, prevID int64, closePayload model.AttemptPayload, closedAt time.Time, next *model.EscalationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, existing := range m.attempts {
		if existing.ID == prevID && !existing.Acknowledged {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	m.attempts[idx].Acknowledged = true
	m.attempts[idx].Payload = closePayload
	t := closedAt
	m.attempts[idx].AcknowledgedAt = &t
	next.ID = m.nextID
	m.nextID++
	m.attempts = append(m.attempts, *next)
	return nil
}

func (m *Memory) GetUnacknowledgedAttempt(ctx context.Context, shipmentID string) (model.EscalationAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ShipmentID == shipmentID && !a.Acknowledged {
			return a, nil
		}
	}
	return model.EscalationAttempt{}, ErrNotFound
}

func (m *Memory) CountAttempts(ctx context.Context, shipmentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.ShipmentID == shipmentID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListAttempts(ctx context.Context, shipmentID string) ([]model.EscalationAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EscalationAttempt
	for _, a := range m.attempts {
		if a.ShipmentID == shipmentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (m *Memory) ListUnacknowledgedAttempts(ctx context.Context) ([]model.EscalationAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EscalationAttempt
	for _, a := range m.attempts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AcknowledgeAttempt(ctx context.Context, id int64, payload model.AttemptPayload, ackedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.attempts {
		if a.ID == id && !a.Acknowledged {
			m.attempts[i].Acknowledged = true
			m.attempts[i].Payload = payload
			t := ackedAt
			m.attempts[i].AcknowledgedAt = &t
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateAcknowledgment(ctx context.Context, a *model.Acknowledgment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	m.acks = append(m.acks, *a)
	return nil
}

// Acknowledgments returns a copy of all side records; test helper.
func (m *Memory) Acknowledgments() []model.Acknowledgment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Acknowledgment, len(m.acks))
	copy(out, m.acks)
	return out
}

func (m *Memory) CreateIssue(ctx context.Context, issue model.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.ID] = issue
	return nil
}

func (m *Memory) ListOpenIssues(ctx context.Context, shipmentID string) ([]model.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Issue
	for _, is := range m.issues {
		if is.ShipmentID != shipmentID {
			continue
		}
		if is.Status == "resolved" || is.Status == "closed" {
			continue
		}
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out, nil
}
