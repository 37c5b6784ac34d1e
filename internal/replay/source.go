// ABOUTME: Event source that delivers recorded frames to subscribed handlers
// ABOUTME: Frames are delivered sequentially; malformed frames are counted and skipped

package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/2389/meshwatch/internal/dispatch"
	"github.com/2389/meshwatch/internal/rawevent"
)

// ErrMalformedFrame is returned for frames that cannot be parsed.
var ErrMalformedFrame = errors.New("malformed frame")

// DefaultEvents is offered when no event list is configured.
var DefaultEvents = []string{dispatch.FirehoseEvent, dispatch.MyNodeInfoEvent}

// Frame is one recorded event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame encodes v as the data of a frame for event.
func NewFrame(event string, v rawevent.Value) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s frame: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Value parses the frame data.
func (f Frame) Value() (rawevent.Value, error) {
	if len(f.Data) == 0 {
		return rawevent.Null(), nil
	}
	v, err := rawevent.FromJSON(f.Data)
	if err != nil {
		return rawevent.Null(), fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return v, nil
}

// FrameReader yields frames until io.EOF.
type FrameReader interface {
	Next(ctx context.Context) (Frame, error)
}

// Stats summarises a Run.
type Stats struct {
	Frames    int `json:"frames"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// Options configures a Source.
type Options struct {
	// Events lists the event names the source offers. Empty means
	// DefaultEvents.
	Events []string
	Logger *slog.Logger
}

// Source implements dispatch.Source over recorded frames.
type Source struct {
	events   []string
	handlers map[string][]dispatch.Handler
	logger   *slog.Logger
}

// New creates a source offering opts.Events.
func New(opts Options) *Source {
	events := opts.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		events:   slices.Clone(events),
		handlers: make(map[string][]dispatch.Handler),
		logger:   logger.With("component", "replay"),
	}
}

// Events returns the offered event names.
func (s *Source) Events() []string { return slices.Clone(s.events) }

// Subscribe registers h for event. It reports false when event is not
// offered.
func (s *Source) Subscribe(event string, h dispatch.Handler) bool {
	if !slices.Contains(s.events, event) {
		return false
	}
	s.handlers[event] = append(s.handlers[event], h)
	return true
}

// Emit delivers f to its subscribers. It reports whether anyone received it.
func (s *Source) Emit(f Frame) (bool, error) {
	hs := s.handlers[f.Event]
	if len(hs) == 0 {
		return false, nil
	}
	v, err := f.Value()
	if err != nil {
		return false, err
	}
	for _, h := range hs {
		if err := h(v); err != nil {
			s.logger.Warn("handler returned error", "event", f.Event, "error", err)
		}
	}
	return true, nil
}

// Run reads frames from r and delivers them until EOF or ctx is done.
// Malformed frames are logged and skipped.
func (s *Source) Run(ctx context.Context, r FrameReader) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		f, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformedFrame) {
			stats.Malformed++
			s.logger.Warn("skipping frame", "error", err)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("reading frame: %w", err)
		}

		stats.Frames++
		delivered, err := s.Emit(f)
		switch {
		case err != nil:
			stats.Malformed++
			s.logger.Warn("skipping frame", "event", f.Event, "error", err)
		case delivered:
			stats.Delivered++
		default:
			stats.Skipped++
		}
	}
	s.logger.Info("replay finished",
		"frames", stats.Frames,
		"delivered", stats.Delivered,
		"skipped", stats.Skipped,
		"malformed", stats.Malformed,
	)
	return stats, nil
}
