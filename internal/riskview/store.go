package riskview

import (
	"sync"
	"time"

	"slaengine/internal/model"
)

type Snapshot struct {
	ShipmentID string               `json:"shipment_id"`
	Score      float64              `json:"score"`
	Status     model.ShipmentStatus `json:"status"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Store holds the latest computed risk snapshot per shipment, bounded by
// oldest-update eviction.
type Store struct {
	mu         sync.RWMutex
	byShipment map[string]Snapshot
	limit      int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byShipment: make(map[string]Snapshot),
		limit:      limit,
	}
}

func (s *Store) Update(shipmentID string, score float64, status model.ShipmentStatus, at time.Time) {
	if shipmentID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byShipment[shipmentID] = Snapshot{
		ShipmentID: shipmentID,
		Score:      score,
		Status:     status,
		UpdatedAt:  at,
	}
	if len(s.byShipment) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(shipmentID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byShipment[shipmentID]
	return snap, ok
}

func (s *Store) GetAll() map[string]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Snapshot, len(s.byShipment))
	for id, snap := range s.byShipment {
		out[id] = snap
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, snap := range s.byShipment {
		if oldestID == "" || snap.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = snap.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.byShipment, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byShipment = make(map[string]Snapshot)
}
