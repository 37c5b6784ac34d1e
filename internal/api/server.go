// ABOUTME: HTTP handlers for health, collection lists, snapshots and the change stream
// ABOUTME: Run serves until the context is cancelled, then shuts down gracefully

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/meshwatch/internal/broadcast"
	"github.com/2389/meshwatch/internal/store"
)

const (
	// heartbeatInterval keeps idle SSE connections open through proxies.
	heartbeatInterval = 15 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Reader is the read side of the store.
type Reader interface {
	Texts() []store.TextRecord
	Positions() []store.PositionRecord
	Telemetry() []store.TelemetryRecord
	Nodes() []store.NodeRecord
	Logs() []store.LogRecord
	Connected() bool
	MyNode() (uint32, bool)
	Snapshot() store.Snapshot
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	MyNode    string `json:"my_node,omitempty"`
	Nodes     int    `json:"nodes"`
}

// Server serves the store over HTTP.
type Server struct {
	store       Reader
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	mux         *http.ServeMux
	heartbeat   time.Duration
}

// New creates a server. A nil broadcaster disables /api/stream.
func New(st Reader, b *broadcast.Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:       st,
		broadcaster: b,
		logger:      logger.With("component", "api"),
		mux:         http.NewServeMux(),
		heartbeat:   heartbeatInterval,
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("/api/texts", listHandler(s, st.Texts))
	s.mux.HandleFunc("/api/positions", listHandler(s, st.Positions))
	s.mux.HandleFunc("/api/telemetry", listHandler(s, st.Telemetry))
	s.mux.HandleFunc("/api/nodes", listHandler(s, st.Nodes))
	s.mux.HandleFunc("/api/logs", listHandler(s, st.Logs))
	s.mux.HandleFunc("/api/stream", s.handleStream)
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler { return s.mux }

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down http server")
	case err := <-errCh:
		if err != nil {
			s.logger.Error("http server error", "error", err)
			return err
		}
		return nil
	}

	// The serving context is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{
		Status:    "ok",
		Connected: s.store.Connected(),
		Nodes:     len(s.store.Nodes()),
	}
	if num, ok := s.store.MyNode(); ok {
		resp.MyNode = store.FormatNodeNum(num)
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.store.Snapshot()
	snap.Texts = orEmpty(snap.Texts)
	snap.Positions = orEmpty(snap.Positions)
	snap.Telemetry = orEmpty(snap.Telemetry)
	snap.Nodes = orEmpty(snap.Nodes)
	snap.Logs = orEmpty(snap.Logs)
	s.writeJSON(w, snap)
}

// listHandler serves one collection newest first. ?limit=N truncates.
func listHandler[T any](s *Server, list func() []T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		items := orEmpty(list())
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		s.writeJSON(w, items)
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

// handleStream sends a "ready" event and then one "change" event per store
// mutation. ?collections=texts,nodes filters the feed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.broadcaster == nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "change stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	collections := parseCollections(r.URL.Query().Get("collections"))
	for _, c := range collections {
		if !knownCollection(c) {
			s.sendJSONError(w, http.StatusBadRequest, "unknown collection: "+c)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	changes, subID := s.broadcaster.Subscribe(ctx, collections...)

	s.logger.Debug("stream opened", "sub_id", subID, "collections", collections)

	if err := writeSSEEvent(w, "ready", map[string]any{"collections": collections}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stream closed by client", "sub_id", subID)
			return
		case change, ok := <-changes:
			if !ok {
				s.logger.Debug("stream closed by broadcaster", "sub_id", subID)
				return
			}
			if err := writeSSEEvent(w, "change", change); err != nil {
				s.logger.Debug("stream write failed", "sub_id", subID, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseCollections(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func knownCollection(c string) bool {
	switch c {
	case store.CollectionTexts, store.CollectionPositions, store.CollectionTelemetry,
		store.CollectionNodes, store.CollectionLogs:
		return true
	}
	return false
}

func writeSSEEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// writeJSON encodes before writing so a failure becomes a 500, not an empty
// 200.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(body, '\n'))
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// orEmpty makes nil slices encode as [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
