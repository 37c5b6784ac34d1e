// ABOUTME: Bounded in-memory aggregate of decoded records and the node registry
// ABOUTME: Newest first, capped per collection; nodes merge by number and sort by recency

package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/meshwatch/internal/broadcast"
)

// Default collection caps.
const (
	DefaultEventLimit = 200
	DefaultLogLimit   = 500
	DefaultNodeLimit  = 200
)

// Limits caps each collection. Zero values take the defaults.
type Limits struct {
	Events int // texts, positions, telemetry
	Logs   int
	Nodes  int
}

func (l Limits) withDefaults() Limits {
	if l.Events <= 0 {
		l.Events = DefaultEventLimit
	}
	if l.Logs <= 0 {
		l.Logs = DefaultLogLimit
	}
	if l.Nodes <= 0 {
		l.Nodes = DefaultNodeLimit
	}
	return l
}

// Publisher receives a notification after every mutation.
type Publisher interface {
	Publish(c broadcast.Change)
}

// Options configures a Store.
type Options struct {
	Limits    Limits
	Logger    *slog.Logger
	Publisher Publisher
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns every decoded record. All mutation goes through its methods;
// readers get copies.
type Store struct {
	mu        sync.RWMutex
	limits    Limits
	texts     []TextRecord
	positions []PositionRecord
	telemetry []TelemetryRecord
	nodes     []NodeRecord
	logs      []LogRecord
	connected bool
	myNode    *uint32

	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an empty store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		limits:    opts.Limits.withDefaults(),
		publisher: opts.Publisher,
		logger:    logger.With("component", "store"),
		now:       now,
	}
}

// Limits returns the effective caps.
func (s *Store) Limits() Limits { return s.limits }

// prepend puts item first and truncates to limit.
func prepend[T any](items []T, item T, limit int) []T {
	out := make([]T, 0, min(len(items)+1, limit))
	out = append(out, item)
	for _, it := range items {
		if len(out) >= limit {
			break
		}
		out = append(out, it)
	}
	return out
}

func (s *Store) stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if at.IsZero() {
		*at = s.now()
	}
}

func (s *Store) publish(collection, id string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(broadcast.Change{Collection: collection, ID: id, At: s.now()})
}

// PushText records a text message. Missing ID and At are filled in.
func (s *Store) PushText(r TextRecord) {
	s.stamp(&r.ID, &r.At)
	s.mu.Lock()
	s.texts = prepend(s.texts, r, s.limits.Events)
	s.mu.Unlock()
	s.publish(CollectionTexts, r.ID)
}

// PushPosition records a position report.
func (s *Store) PushPosition(r PositionRecord) {
	s.stamp(&r.ID, &r.At)
	s.mu.Lock()
	s.positions = prepend(s.positions, r, s.limits.Events)
	s.mu.Unlock()
	s.publish(CollectionPositions, r.ID)
}

// PushTelemetry records a telemetry sample.
func (s *Store) PushTelemetry(r TelemetryRecord) {
	s.stamp(&r.ID, &r.At)
	s.mu.Lock()
	s.telemetry = prepend(s.telemetry, r, s.limits.Events)
	s.mu.Unlock()
	s.publish(CollectionTelemetry, r.ID)
}

// PushLog records a diagnostic and mirrors it to the structured logger.
func (s *Store) PushLog(r LogRecord) {
	s.stamp(&r.ID, &r.At)
	s.mu.Lock()
	s.logs = prepend(s.logs, r, s.limits.Logs)
	s.mu.Unlock()
	s.logger.Log(context.Background(), slogLevel(r.Level), r.Message, "source", "diagnostics")
	s.publish(CollectionLogs, r.ID)
}

// Log records a diagnostic message at level.
func (s *Store) Log(level LogLevel, message string) {
	s.PushLog(LogRecord{Level: level, Message: message})
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// PushNode merges r into the registry when it carries a Num, otherwise it is
// inserted as a standalone sighting.
func (s *Store) PushNode(r NodeRecord) {
	if r.Num != nil {
		id := s.upsert(*r.Num, PatchOf(r), r.ID)
		s.publish(CollectionNodes, id)
		return
	}

	s.stamp(&r.ID, &r.At)
	s.mu.Lock()
	s.nodes = append([]NodeRecord{r}, s.nodes...)
	s.sortNodesLocked()
	s.mu.Unlock()
	s.publish(CollectionNodes, r.ID)
}

// SeeNode merges patch into the registry entry for num, creating it if
// needed.
func (s *Store) SeeNode(num uint32, patch NodePatch) {
	id := s.upsert(num, patch, "")
	s.publish(CollectionNodes, id)
}

// upsert merges patch into the entry for num and returns its record ID. A new
// entry takes id, or a synthetic one when id is empty.
func (s *Store) upsert(num uint32, patch NodePatch, id string) string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.nodes, func(n NodeRecord) bool {
		return n.Num != nil && *n.Num == num
	})

	var rec NodeRecord
	if idx >= 0 {
		rec = s.nodes[idx]
		patch.applyTo(&rec)
		rec.At = now
		s.nodes = slices.Delete(s.nodes, idx, idx+1)
	} else {
		if id == "" {
			id = SyntheticNodeID(num)
		}
		n := num
		rec = NodeRecord{ID: id, Num: &n, At: now}
		patch.applyTo(&rec)
		if rec.LastHeard == nil {
			rec.LastHeard = &now
		}
	}

	s.nodes = append([]NodeRecord{rec}, s.nodes...)
	s.sortNodesLocked()
	return rec.ID
}

// sortNodesLocked orders by descending recency, keeping relative order of
// ties, then truncates. Must be called with mu held.
func (s *Store) sortNodesLocked() {
	slices.SortStableFunc(s.nodes, func(a, b NodeRecord) int {
		return b.Recency().Compare(a.Recency())
	})
	if len(s.nodes) > s.limits.Nodes {
		s.nodes = slices.Clip(s.nodes[:s.limits.Nodes])
	}
}

// Node returns the registry entry for num.
func (s *Store) Node(num uint32) (NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.nodes {
		if n.Num != nil && *n.Num == num {
			return n, true
		}
	}
	return NodeRecord{}, false
}

// Texts returns text messages, newest first.
func (s *Store) Texts() []TextRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.texts)
}

// Positions returns position reports, newest first.
func (s *Store) Positions() []PositionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.positions)
}

// Telemetry returns telemetry samples, newest first.
func (s *Store) Telemetry() []TelemetryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.telemetry)
}

// Nodes returns the node registry, most recently heard first.
func (s *Store) Nodes() []NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodes)
}

// Logs returns diagnostics, newest first.
func (s *Store) Logs() []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// SetConnected records whether a source is attached.
func (s *Store) SetConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Connected reports whether a source is attached.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetMyNode records the number of the locally attached radio; nil clears it.
func (s *Store) SetMyNode(num *uint32) {
	s.mu.Lock()
	s.myNode = num
	s.mu.Unlock()
}

// MyNode returns the number of the locally attached radio.
func (s *Store) MyNode() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.myNode == nil {
		return 0, false
	}
	return *s.myNode, true
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	s.texts, s.positions, s.telemetry, s.nodes, s.logs = nil, nil, nil, nil, nil
	s.mu.Unlock()
	for _, c := range []string{CollectionTexts, CollectionPositions, CollectionTelemetry, CollectionNodes, CollectionLogs} {
		s.publish(c, "")
	}
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Connected bool              `json:"connected"`
	MyNode    *uint32           `json:"my_node,omitempty"`
	Texts     []TextRecord      `json:"texts"`
	Positions []PositionRecord  `json:"positions"`
	Telemetry []TelemetryRecord `json:"telemetry"`
	Nodes     []NodeRecord      `json:"nodes"`
	Logs      []LogRecord       `json:"logs"`
}

// Snapshot copies every collection under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Connected: s.connected,
		Texts:     slices.Clone(s.texts),
		Positions: slices.Clone(s.positions),
		Telemetry: slices.Clone(s.telemetry),
		Nodes:     slices.Clone(s.nodes),
		Logs:      slices.Clone(s.logs),
	}
	if s.myNode != nil {
		n := *s.myNode
		snap.MyNode = &n
	}
	return snap
}
