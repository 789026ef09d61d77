package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"slaengine/internal/config"
	"slaengine/internal/model"
)

type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.IssueEvent
	dedupe *DedupeCache
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.IssueEvent, dedupe *DedupeCache, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, dedupe: dedupe, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/events/issue", server.handleIssueEvents)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleIssueEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytesTrim(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted := 0
	failed := 0
	if trim[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, raw := range list {
			if s.process(raw) {
				accepted++
			} else {
				failed++
			}
		}
	} else {
		if s.process(trim) {
			accepted++
		} else {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"failed":   failed,
	})
}

func (s *RESTServer) process(raw []byte) bool {
	ev, err := DecodeIssueEvent(raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest issue event rejected", "err", err)
		}
		return false
	}
	ev.Source = "rest"
	if s.dedupe != nil && s.dedupe.Seen(ev.IssueID, time.Now().UTC(), s.cfg.Get().Ingest.DedupeWindow) {
		return true
	}
	return SendNonBlocking(context.Background(), s.out, ev, s.logger)
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
