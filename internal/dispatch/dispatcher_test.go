// ABOUTME: Tests for subscription setup, the dispatch guard and handler fault isolation
// ABOUTME: Uses an in-memory source and a real store

package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/meshwatch/internal/dedupe"
	"github.com/2389/meshwatch/internal/portnum"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/schema"
	"github.com/2389/meshwatch/internal/store"
)

// fakeSource offers a fixed set of events and delivers synchronously.
type fakeSource struct {
	events   []string
	handlers map[string][]Handler
}

func newFakeSource(events ...string) *fakeSource {
	return &fakeSource{events: events, handlers: make(map[string][]Handler)}
}

func (s *fakeSource) Events() []string { return s.events }

func (s *fakeSource) Subscribe(event string, h Handler) bool {
	if !slices.Contains(s.events, event) {
		return false
	}
	s.handlers[event] = append(s.handlers[event], h)
	return true
}

func (s *fakeSource) emit(t *testing.T, event string, evt rawevent.Value) {
	t.Helper()
	for _, h := range s.handlers[event] {
		require.NoError(t, h(evt))
	}
}

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setupTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.Options{Logger: logger})
	opts.Sink = st
	opts.Logger = logger
	opts.Now = func() time.Time { return fixedNow }
	return New(opts), st
}

func logMessages(st *store.Store, level store.LogLevel) []string {
	var out []string
	for _, l := range st.Logs() {
		if l.Level == level {
			out = append(out, l.Message)
		}
	}
	return out
}

func textPacket(text string, from, id int64) rawevent.Value {
	return rawevent.MustFromAny(map[string]any{
		"packet": map[string]any{
			"from": from,
			"to":   0xffffffff,
			"id":   id,
			"decoded": map[string]any{
				"portnum": 1,
				"payload": []byte(text),
			},
		},
	})
}

func TestAttach_AllEventsPresent(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent, "onMessagePacket", "onPositionPacket", "onNodeInfoPacket", "onTelemetryPacket")

	d.Attach(src)

	assert.Equal(t, Guard{Text: true, Position: true, NodeInfo: true, Telemetry: true}, d.Guard())
	info := logMessages(st, store.LevelInfo)
	require.Len(t, info, 1)
	assert.True(t, strings.HasPrefix(info[0], "Available events: onFromRadio, onMessagePacket"))

	debug := logMessages(st, store.LevelDebug)
	assert.Contains(t, debug, "Subscribed onFromRadio")
	assert.Contains(t, debug, "Subscribed onMessagePacket")
	assert.Contains(t, debug, "Event not present: onTextPacket")
	assert.Empty(t, logMessages(st, store.LevelWarn))
}

func TestAttach_MissingTextAndPositionWarn(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	d.Attach(newFakeSource(FirehoseEvent))

	assert.Equal(t, Guard{}, d.Guard())
	warn := logMessages(st, store.LevelWarn)
	require.Len(t, warn, 2)
	assert.Contains(t, warn[1], "No text event found")
	assert.Contains(t, warn[0], "No position event found")
}

func TestFirehose_DecodesWhenUnguarded(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent)
	d.Attach(src)

	src.emit(t, FirehoseEvent, textPacket("hello mesh", 0x10, 1))

	texts := st.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "hello mesh", texts[0].Text)

	n, ok := st.Node(0x10)
	require.True(t, ok, "sender is registered")
	assert.True(t, n.LastHeard.Equal(fixedNow))
}

func TestFirehose_SkipsGuardedCategory(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent, "onMessagePacket")
	d.Attach(src)

	evt := textPacket("once", 0x10, 7)
	src.emit(t, "onMessagePacket", evt)
	src.emit(t, FirehoseEvent, evt)

	assert.Len(t, st.Texts(), 1, "firehose adds nothing for a guarded category")
}

func TestFirehose_UnhandledPort(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent)
	d.Attach(src)

	src.emit(t, FirehoseEvent, rawevent.MustFromAny(map[string]any{
		"packet": map[string]any{"decoded": map[string]any{"portnum": 70, "payload": []byte{1}}},
	}))
	src.emit(t, FirehoseEvent, rawevent.MustFromAny(map[string]any{"myInfo": map[string]any{"myNodeNum": 5}}))
	src.emit(t, FirehoseEvent, rawevent.MustFromAny(map[string]any{
		"packet": map[string]any{"decoded": map[string]any{"portnum": 99999}},
	}))

	debug := logMessages(st, store.LevelDebug)
	assert.Contains(t, debug, "Unhandled port: TRACEROUTE_APP")
	assert.Contains(t, debug, "Unhandled port: UNKNOWN")
	assert.Contains(t, debug, "Unhandled port: PORT_99999")
	assert.Empty(t, st.Texts())
}

func TestFirehose_AllCategories(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent)
	d.Attach(src)

	reg := schema.Default()
	pos, err := reg.Encode("Position", rawevent.MustFromAny(map[string]any{"latitude_i": 377749000}))
	require.NoError(t, err)
	tel, err := reg.Encode("Telemetry", rawevent.MustFromAny(map[string]any{
		"device_metrics": map[string]any{"battery_level": 50},
	}))
	require.NoError(t, err)
	ni, err := reg.Encode("NodeInfo", rawevent.MustFromAny(map[string]any{
		"num":  0x30,
		"user": map[string]any{"short_name": "N3"},
	}))
	require.NoError(t, err)

	frame := func(port string, payload []byte, from int64) rawevent.Value {
		return rawevent.MustFromAny(map[string]any{
			"packet": map[string]any{
				"from":    from,
				"decoded": map[string]any{"portnum": port, "payload": payload},
			},
		})
	}
	src.emit(t, FirehoseEvent, frame("POSITION_APP", pos, 0x10))
	src.emit(t, FirehoseEvent, frame("TELEMETRY_APP", tel, 0x20))
	src.emit(t, FirehoseEvent, frame("NODEINFO_APP", ni, 0x30))

	require.Len(t, st.Positions(), 1)
	assert.Equal(t, 37.7749, *st.Positions()[0].Lat)
	require.Len(t, st.Telemetry(), 1)
	assert.Equal(t, int64(50), *st.Telemetry()[0].BatteryLevel)

	node, ok := st.Node(0x30)
	require.True(t, ok)
	require.NotNil(t, node.ShortName)
	assert.Equal(t, "N3", *node.ShortName)

	assert.Len(t, st.Nodes(), 3, "senders of position and telemetry are registered too")
}

func TestSpecific_NodeInfoMergesIntoRegistry(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent, "onNodeInfoPacket", "onMessagePacket")
	d.Attach(src)

	src.emit(t, "onMessagePacket", textPacket("hi", 0x40, 1))
	ni, err := schema.Default().Encode("NodeInfo", rawevent.MustFromAny(map[string]any{
		"user": map[string]any{"short_name": "FT"},
	}))
	require.NoError(t, err)
	src.emit(t, "onNodeInfoPacket", rawevent.MustFromAny(map[string]any{
		"from": 0x40, "payload": ni,
	}))

	nodes := st.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "FT", *nodes[0].ShortName)
}

func TestHandlerFaultsAreLogged(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource("onBoom", "onFail")
	require.True(t, d.subscribe(src, "onBoom", func(rawevent.Value) error { panic("kaboom") }))
	require.True(t, d.subscribe(src, "onFail", func(rawevent.Value) error { return errors.New("bad frame") }))

	src.emit(t, "onBoom", rawevent.Null())
	src.emit(t, "onFail", rawevent.Null())

	errs := logMessages(st, store.LevelError)
	require.Len(t, errs, 2)
	assert.Equal(t, "handler error in onFail: bad frame", errs[0])
	assert.Equal(t, "handler error in onBoom: panic: kaboom", errs[1])
}

func TestDedupe_DropsSamePacket(t *testing.T) {
	cache := dedupe.New(dedupe.Options{TTL: time.Minute, SweepInterval: -1})
	defer cache.Close()
	d, st := setupTestDispatcher(t, Options{Dedupe: cache})

	evt := textPacket("dup", 0x10, 42)
	require.NoError(t, d.Handle(portnum.CategoryText, evt))
	require.NoError(t, d.HandleFirehose(evt))
	require.NoError(t, d.Handle(portnum.CategoryText, textPacket("other", 0x10, 43)))

	assert.Len(t, st.Texts(), 2)
}

func TestDedupe_FirehoseWrapperIDIgnored(t *testing.T) {
	cache := dedupe.New(dedupe.Options{TTL: time.Minute, SweepInterval: -1})
	defer cache.Close()
	d, st := setupTestDispatcher(t, Options{Dedupe: cache})

	packet := map[string]any{
		"from":    0x10,
		"id":      42,
		"decoded": map[string]any{"portnum": 1, "payload": []byte("dup")},
	}
	fromRadio := rawevent.MustFromAny(map[string]any{"id": 9001, "packet": packet})
	require.NoError(t, d.HandleFirehose(fromRadio))
	require.NoError(t, d.Handle(portnum.CategoryText, rawevent.MustFromAny(packet)))

	assert.Len(t, st.Texts(), 1, "the same packet arrives on both paths")
}

func TestHandle_UnknownCategory(t *testing.T) {
	d, _ := setupTestDispatcher(t, Options{})
	assert.Error(t, d.Handle(portnum.CategoryUnknown, rawevent.Null()))
}

func TestGuard(t *testing.T) {
	var g Guard
	for _, c := range portnum.Categories {
		assert.False(t, g.Covers(c))
		g.Set(c)
		assert.True(t, g.Covers(c))
	}
	g.Set(portnum.CategoryUnknown)
	assert.False(t, g.Covers(portnum.CategoryUnknown))
}

func TestMyNodeInfo(t *testing.T) {
	d, st := setupTestDispatcher(t, Options{})
	src := newFakeSource(FirehoseEvent, MyNodeInfoEvent)
	d.Attach(src)

	src.emit(t, MyNodeInfoEvent, rawevent.MustFromAny(map[string]any{"myNodeNum": 0xbeef}))

	num, ok := st.MyNode()
	require.True(t, ok)
	assert.Equal(t, uint32(0xbeef), num)
	assert.Contains(t, logMessages(st, store.LevelInfo), "My node: 0xbeef")

	src.emit(t, MyNodeInfoEvent, rawevent.MustFromAny(map[string]any{"other": 1}))
	errs := logMessages(st, store.LevelError)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "handler error in onMyNodeInfo: no node number"))
}
