// ABOUTME: Wires an event source to the locate/classify/decode pipeline and the store
// ABOUTME: Specific subscriptions set guard flags; the firehose handles the rest

package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/meshwatch/internal/decode"
	"github.com/2389/meshwatch/internal/dedupe"
	"github.com/2389/meshwatch/internal/locate"
	"github.com/2389/meshwatch/internal/portnum"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/store"
)

// FirehoseEvent carries every frame received from the radio.
const FirehoseEvent = "onFromRadio"

// MyNodeInfoEvent announces the number of the locally attached radio.
const MyNodeInfoEvent = "onMyNodeInfo"

// Handler processes one event. Returned errors and panics are logged and do
// not stop the stream.
type Handler func(evt rawevent.Value) error

// Source offers named events. Subscribe reports false when the source does
// not provide the event.
type Source interface {
	Events() []string
	Subscribe(event string, h Handler) bool
}

// Sink receives decoded records. *store.Store satisfies it.
type Sink interface {
	PushText(r store.TextRecord)
	PushPosition(r store.PositionRecord)
	PushTelemetry(r store.TelemetryRecord)
	PushNode(r store.NodeRecord)
	SeeNode(num uint32, patch store.NodePatch)
	SetMyNode(num *uint32)
	Log(level store.LogLevel, message string)
}

// subscription lists the specific events tried for a category, in order.
type subscription struct {
	category portnum.Category
	events   []string
	// warn is logged when none of the events exist.
	warn string
}

var subscriptions = []subscription{
	{portnum.CategoryText, []string{"onUserPacket", "onMessagePacket", "onTextPacket"},
		"No text event found; relying on generic FromRadio decode"},
	{portnum.CategoryPosition, []string{"onPositionPacket", "onPosition"},
		"No position event found; relying on generic FromRadio decode"},
	{portnum.CategoryNodeInfo, []string{"onNodePacket", "onNodeInfoPacket", "onNodeInfo"}, ""},
	{portnum.CategoryTelemetry, []string{"onTelemetryPacket", "onTelemetry"}, ""},
}

// errPanic wraps a recovered handler panic.
var errPanic = errors.New("panic")

// Options configures a Dispatcher.
type Options struct {
	Sink       Sink
	Decoder    *decode.Decoder
	Classifier *portnum.Classifier
	// Dedupe, when set, drops a packet already decoded by the other path.
	Dedupe *dedupe.Cache
	Logger *slog.Logger
	Now    func() time.Time
}

// Dispatcher routes events from a source into the sink. Events are expected
// one at a time; the dispatcher keeps no locks of its own.
type Dispatcher struct {
	sink       Sink
	decoder    *decode.Decoder
	classifier *portnum.Classifier
	dedupe     *dedupe.Cache
	logger     *slog.Logger
	now        func() time.Time
	guard      Guard
}

// New creates a dispatcher. A nil Decoder or Classifier uses the bundled
// definitions.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		sink:       opts.Sink,
		decoder:    opts.Decoder,
		classifier: opts.Classifier,
		dedupe:     opts.Dedupe,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatch")
	if d.now == nil {
		d.now = time.Now
	}
	if d.decoder == nil {
		d.decoder = decode.New(decode.Options{Diagnostics: d.sink, Now: d.now})
	}
	if d.classifier == nil {
		d.classifier = portnum.Default()
	}
	return d
}

// Guard returns a copy of the current guard flags.
func (d *Dispatcher) Guard() Guard { return d.guard }

// Attach subscribes the firehose and every specific event src offers.
func (d *Dispatcher) Attach(src Source) {
	d.sink.Log(store.LevelInfo, "Available events: "+strings.Join(src.Events(), ", "))

	d.subscribe(src, FirehoseEvent, d.HandleFirehose)
	d.subscribe(src, MyNodeInfoEvent, d.HandleMyNodeInfo)

	for _, sub := range subscriptions {
		handler := d.categoryHandler(sub.category)
		subscribed := false
		for _, name := range sub.events {
			if d.subscribe(src, name, handler) {
				subscribed = true
			}
		}
		if subscribed {
			d.guard.Set(sub.category)
		} else if sub.warn != "" {
			d.sink.Log(store.LevelWarn, sub.warn)
		}
	}

	d.logger.Info("attached to source",
		"text", d.guard.Text,
		"position", d.guard.Position,
		"nodeinfo", d.guard.NodeInfo,
		"telemetry", d.guard.Telemetry,
	)
}

func (d *Dispatcher) subscribe(src Source, name string, h Handler) bool {
	if !src.Subscribe(name, d.safe(name, h)) {
		d.sink.Log(store.LevelDebug, "Event not present: "+name)
		return false
	}
	d.sink.Log(store.LevelDebug, "Subscribed "+name)
	return true
}

// safe converts errors and panics from h into ERROR log entries.
func (d *Dispatcher) safe(name string, h Handler) Handler {
	return func(evt rawevent.Value) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", errPanic, r)
			}
			if err != nil {
				d.sink.Log(store.LevelError, fmt.Sprintf("handler error in %s: %v", name, err))
			}
			err = nil
		}()
		return h(evt)
	}
}

func (d *Dispatcher) categoryHandler(cat portnum.Category) Handler {
	return func(evt rawevent.Value) error {
		return d.Handle(cat, evt)
	}
}

// HandleFirehose classifies evt and decodes it unless a specific
// subscription covers its category.
func (d *Dispatcher) HandleFirehose(evt rawevent.Value) error {
	env := locate.Locate(evt)
	label := d.classifier.Classify(env.Port)
	cat := portnum.CategoryOf(label)

	if cat == portnum.CategoryUnknown {
		d.sink.Log(store.LevelDebug, "Unhandled port: "+label)
		return nil
	}
	if d.guard.Covers(cat) {
		return nil
	}
	return d.decodeInto(cat, evt, env)
}

// HandleMyNodeInfo records the local radio number from a my-node-info event.
func (d *Dispatcher) HandleMyNodeInfo(evt rawevent.Value) error {
	for _, path := range myNodePaths {
		v, ok := evt.Path(path...)
		if !ok {
			continue
		}
		n, ok := v.AsInt()
		if !ok {
			continue
		}
		if num := decode.NodeNum(&n); num != nil {
			d.sink.SetMyNode(num)
			d.sink.Log(store.LevelInfo, "My node: "+store.FormatNodeNum(*num))
			return nil
		}
	}
	return fmt.Errorf("no node number in %s", evt)
}

var myNodePaths = [][]string{
	{"myNodeNum"},
	{"my_node_num"},
	{"myInfo", "myNodeNum"},
	{"myInfo", "my_node_num"},
}

// Handle decodes evt as cat and records the result.
func (d *Dispatcher) Handle(cat portnum.Category, evt rawevent.Value) error {
	return d.decodeInto(cat, evt, locate.Locate(evt))
}

func (d *Dispatcher) decodeInto(cat portnum.Category, evt rawevent.Value, env locate.Envelope) error {
	if d.duplicate(env) {
		d.logger.Debug("duplicate packet dropped", "category", cat)
		return nil
	}

	switch cat {
	case portnum.CategoryText:
		rec := d.decoder.Text(evt, env)
		d.sink.PushText(rec)
		d.heard(rec.From)
	case portnum.CategoryPosition:
		rec := d.decoder.Position(evt, env)
		d.sink.PushPosition(rec)
		d.heard(rec.From)
	case portnum.CategoryTelemetry:
		rec := d.decoder.Telemetry(evt, env)
		d.sink.PushTelemetry(rec)
		d.heard(rec.From)
	case portnum.CategoryNodeInfo:
		d.sink.PushNode(d.decoder.Node(evt, env))
	default:
		return fmt.Errorf("no decoder for category %s", cat)
	}
	return nil
}

// duplicate reports whether the packet in env was already decoded. Packets
// without a sender and id are never duplicates.
func (d *Dispatcher) duplicate(env locate.Envelope) bool {
	if d.dedupe == nil {
		return false
	}
	key, ok := dedupe.PacketKey(env.From, env.PacketID)
	if !ok {
		return false
	}
	return d.dedupe.CheckAndMark(key)
}

// heard refreshes the sender's registry entry.
func (d *Dispatcher) heard(from *uint32) {
	if from == nil {
		return
	}
	now := d.now()
	d.sink.SeeNode(*from, store.NodePatch{LastHeard: &now})
}
