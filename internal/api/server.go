package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slaengine/internal/config"
	"slaengine/internal/engine"
	"slaengine/internal/model"
	"slaengine/internal/notify"
	"slaengine/internal/riskview"
)

type EngineControl interface {
	UpdateConfig(cfg *config.Config)
	Open(ctx context.Context, shipmentID, reason, triggeredBy string) (model.EscalationAttempt, error)
	Advance(ctx context.Context, shipmentID, reason, actor string) (model.EscalationAttempt, error)
	Acknowledge(ctx context.Context, shipmentID, method, notes, actor string) (model.EscalationAttempt, error)
	ListEscalations(ctx context.Context, shipmentID string, activeOnly bool) ([]model.EscalationAttempt, model.ChainStatus, error)
	ScanOnce(ctx context.Context, now time.Time) (int, int)
	AdvanceOnce(ctx context.Context, now time.Time) (int, int)
}

type Server struct {
	cfg     *config.Manager
	risk    *riskview.Store
	recent  *notify.Recent
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string                  `json:"status"`
	Time       string                  `json:"time"`
	Version    string                  `json:"version"`
	ConfigPath string                  `json:"config_path"`
	Escalation config.EscalationConfig `json:"escalation"`
	Ingest     ingestStatus            `json:"ingest"`
	API        apiStatus               `json:"api"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, risk *riskview.Store, recent *notify.Recent, eng EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		risk:    risk,
		recent:  recent,
		engine:  eng,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/risk", server.handleRisk)
	mux.HandleFunc("/risk/", server.handleRisk)
	mux.HandleFunc("/escalations", server.handleEscalations)
	mux.HandleFunc("/escalations/trigger", server.handleTrigger)
	mux.HandleFunc("/escalations/advance", server.handleAdvance)
	mux.HandleFunc("/escalations/acknowledge", server.handleAcknowledge)
	mux.HandleFunc("/notifications", server.handleNotifications)
	mux.HandleFunc("/config/escalation", server.handleEscalationConfig)
	mux.HandleFunc("/admin/scan", server.handleAdminScan)
	mux.HandleFunc("/admin/advance", server.handleAdminAdvance)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Escalation: cfg.Escalation,
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/risk")
	path = strings.TrimPrefix(path, "/")
	if path != "" {
		snap, ok := s.risk.Get(path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}
	all := s.risk.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"risk":  all,
		"count": len(all),
	})
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	shipmentID := r.URL.Query().Get("shipment_id")
	if shipmentID == "" {
		writeError(w, http.StatusBadRequest, "shipment_id is required")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	attempts, status, err := s.engine.ListEscalations(r.Context(), shipmentID, activeOnly)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shipment_id": shipmentID,
		"status":      status,
		"attempts":    attempts,
		"count":       len(attempts),
	})
}

type triggerRequest struct {
	ShipmentID string `json:"shipment_id"`
	Reason     string `json:"reason"`
	Actor      string `json:"actor"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "manual trigger"
	}
	attempt, err := s.engine.Open(r.Context(), req.ShipmentID, req.Reason, actorOr(req.Actor))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "manual advance"
	}
	attempt, err := s.engine.Advance(r.Context(), req.ShipmentID, req.Reason, actorOr(req.Actor))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type acknowledgeRequest struct {
	ShipmentID string `json:"shipment_id"`
	Method     string `json:"method"`
	Notes      string `json:"notes"`
	Actor      string `json:"actor"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Method == "" {
		req.Method = "manual"
	}
	attempt, err := s.engine.Acknowledge(r.Context(), req.ShipmentID, req.Method, req.Notes, actorOr(req.Actor))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []notify.Event
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.recent.Since(ts)
	} else {
		list = s.recent.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleEscalationConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"escalation": s.cfg.Get().Escalation,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		esc := current.Escalation
		if err := json.Unmarshal(body, &esc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		next.Escalation = esc
		if err := config.Validate(&next); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.engine != nil {
			s.engine.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdminScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	scanned, escalated := s.engine.ScanOnce(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":   scanned,
		"escalated": escalated,
	})
}

func (s *Server) handleAdminAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	checked, advanced := s.engine.AdvanceOnce(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"checked":  checked,
		"advanced": advanced,
	})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsInvalidState(err):
		writeError(w, http.StatusConflict, err.Error())
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		if s.logger != nil {
			s.logger.Error("api operation failed", "err", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func actorOr(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
