// ABOUTME: Category decoders that turn payloads into text, position, telemetry and node records
// ABOUTME: Text tries an ordered strategy chain; structured decode misses are silent

package decode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/2389/meshwatch/internal/locate"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/schema"
	"github.com/2389/meshwatch/internal/store"
)

const (
	previewBytes   = 64
	previewStrings = 16
)

// TextSchemas are the schema names tried, in order, for text payloads.
// Names the registry does not define are skipped.
var TextSchemas = []string{"Data", "Message", "User", "Text", "TextMessage", "MessagePacket", "UserPacket", "DataPacket"}

var (
	// eventTextPaths are the historical layouts carrying a text field on the
	// event itself.
	eventTextPaths = [][]string{
		{"text"},
		{"data", "text"},
		{"packet", "decoded", "text"},
		{"packet", "decoded", "data", "text"},
		{"decoded", "text"},
		{"decoded", "data", "text"},
	}
	// schemaTextPaths locate text inside a decoded candidate schema.
	schemaTextPaths = [][]string{
		{"text"},
		{"message"},
		{"content"},
		{"data", "text"},
		{"payload_variant", "text"},
		{"decoded", "text"},
	}
	// eventDataPaths are layouts where data itself is the string body.
	eventDataPaths = [][]string{
		{"data"},
		{"packet", "decoded", "data"},
		{"decoded", "data"},
	}
)

// Diagnostics receives decoder log entries.
type Diagnostics interface {
	Log(level store.LogLevel, message string)
}

// Options configures a Decoder. Zero values take the bundled definitions and
// the wall clock.
type Options struct {
	Registry       *schema.Registry
	HardwareModels protoreflect.EnumDescriptor
	Diagnostics    Diagnostics
	Now            func() time.Time
}

// Decoder converts located payloads into records. It holds no mutable state.
type Decoder struct {
	registry *schema.Registry
	hwModels protoreflect.EnumDescriptor
	diag     Diagnostics
	now      func() time.Time
}

// New creates a decoder.
func New(opts Options) *Decoder {
	d := &Decoder{
		registry: opts.Registry,
		hwModels: opts.HardwareModels,
		diag:     opts.Diagnostics,
		now:      opts.Now,
	}
	if d.registry == nil {
		d.registry = schema.Default()
	}
	if d.hwModels == nil {
		d.hwModels = d.registry.Enum("HardwareModel")
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// textStrategy is one way of recovering a text body.
type textStrategy func(d *Decoder, evt rawevent.Value, payload []byte) (string, bool)

var textChain = []textStrategy{
	func(_ *Decoder, evt rawevent.Value, _ []byte) (string, bool) {
		return firstString(evt, eventTextPaths)
	},
	(*Decoder).textFromSchemas,
	func(_ *Decoder, evt rawevent.Value, _ []byte) (string, bool) {
		return firstString(evt, eventDataPaths)
	},
	func(_ *Decoder, _ rawevent.Value, payload []byte) (string, bool) {
		return textFromBytes(payload)
	},
}

// Text decodes a text message. The body is always populated.
func (d *Decoder) Text(evt rawevent.Value, env locate.Envelope) store.TextRecord {
	text, ok := d.text(evt, env.Payload)
	if !ok {
		d.logTextFallback(evt, env.Payload)
		text = store.TextSentinel
	}
	return store.TextRecord{
		From:    NodeNum(env.From),
		To:      NodeNum(env.To),
		Channel: channelIndex(env.Channel),
		Text:    text,
		RxRssi:  env.RxRssi,
		RxSnr:   env.RxSnr,
		At:      d.now(),
	}
}

func (d *Decoder) text(evt rawevent.Value, payload []byte) (string, bool) {
	for _, try := range textChain {
		if s, ok := try(d, evt, payload); ok {
			return s, true
		}
	}
	return "", false
}

func (d *Decoder) textFromSchemas(_ rawevent.Value, payload []byte) (string, bool) {
	if payload == nil {
		return "", false
	}
	for _, name := range TextSchemas {
		if !d.registry.Has(name) {
			continue
		}
		obj, err := d.registry.Decode(name, payload)
		if err != nil {
			continue
		}
		if s, ok := firstString(obj, schemaTextPaths); ok {
			return s, true
		}
	}
	return "", false
}

func textFromBytes(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	s := strings.ReplaceAll(string(payload), "\x00", "")
	if !IsMostlyText(s) {
		return "", false
	}
	return strings.ToValidUTF8(s, "�"), true
}

func (d *Decoder) logTextFallback(evt rawevent.Value, payload []byte) {
	if d.diag == nil {
		return
	}
	msg := "text fallback: payload " + HexPreview(payload, previewBytes)
	if strs := rawevent.CollectStrings(evt, previewStrings); len(strs) > 0 {
		msg += "; strings: " + strings.Join(strs, " | ")
	}
	d.diag.Log(store.LevelDebug, msg)
}

// Position decodes a position report.
func (d *Decoder) Position(_ rawevent.Value, env locate.Envelope) store.PositionRecord {
	pos := d.decodeOrEmpty("Position", env.Payload)
	rec := store.PositionRecord{From: NodeNum(env.From), At: d.now()}
	if n, ok := pos.Get("latitude_i").AsInt(); ok {
		rec.Lat = ptr(ToDegrees(n))
	}
	if n, ok := pos.Get("longitude_i").AsInt(); ok {
		rec.Lon = ptr(ToDegrees(n))
	}
	rec.Alt = intField(pos, "altitude")
	rec.Sats = intField(pos, "sats_in_view")
	rec.Speed = intField(pos, "ground_speed")
	rec.Heading = intField(pos, "ground_track")
	rec.DOP = intField(pos, "PDOP")
	return rec
}

// Telemetry decodes a device metrics sample.
func (d *Decoder) Telemetry(_ rawevent.Value, env locate.Envelope) store.TelemetryRecord {
	tel := d.decodeOrEmpty("Telemetry", env.Payload)
	metrics := tel.Get("device_metrics")
	rec := store.TelemetryRecord{From: NodeNum(env.From), At: d.now()}
	rec.Voltage = floatField(metrics, "voltage")
	rec.BatteryLevel = intField(metrics, "battery_level")
	rec.UptimeSec = intField(metrics, "uptime_seconds")
	rec.AirUtilTx = floatField(metrics, "air_util_tx")
	if rec.AirUtilTx == nil {
		rec.AirUtilTx = floatField(tel, "air_util_tx")
	}
	return rec
}

// Node decodes a node identity. The number comes from the envelope sender,
// else from the decoded struct; LastHeard defaults to now. Radios broadcast
// a bare User on the node info port, so that layout is tried when the
// NodeInfo decode carries no user.
func (d *Decoder) Node(_ rawevent.Value, env locate.Envelope) store.NodeRecord {
	ni := d.decodeOrEmpty("NodeInfo", env.Payload)
	user := ni.Get("user")
	if user.IsNull() {
		user = d.decodeOrEmpty("User", env.Payload)
	}
	now := d.now()

	rec := store.NodeRecord{At: now}
	rec.Num = NodeNum(env.From)
	if rec.Num == nil {
		rec.Num = NodeNum(intField(ni, "num"))
	}
	rec.Name = stringField(user, "long_name")
	rec.ShortName = stringField(user, "short_name")

	code := intField(user, "hw_model")
	if code == nil {
		code = intField(ni, "hw_model")
	}
	if code != nil {
		label, ok := schema.EnumName(d.hwModels, *code)
		if !ok {
			label = strconv.FormatInt(*code, 10)
		}
		rec.HwModel = &label
	}

	if secs := intField(ni, "last_heard"); secs != nil && *secs > 0 {
		rec.LastHeard = ptr(time.Unix(*secs, 0))
	} else {
		rec.LastHeard = &now
	}
	return rec
}

// decodeOrEmpty decodes payload as the named schema, or returns null when the
// payload is missing or does not parse.
func (d *Decoder) decodeOrEmpty(name string, payload []byte) rawevent.Value {
	if payload == nil {
		return rawevent.Null()
	}
	v, err := d.registry.Decode(name, payload)
	if err != nil {
		return rawevent.Null()
	}
	return v
}

// NodeNum narrows an envelope integer to a node number. Values outside the
// uint32 range are dropped.
func NodeNum(p *int64) *uint32 { return narrowUint32(p) }

// channelIndex narrows an envelope channel. Radios number channels from 0 in
// a uint32 field, so the same range applies.
func channelIndex(p *int64) *uint32 { return narrowUint32(p) }

func narrowUint32(p *int64) *uint32 {
	if p == nil || *p < 0 || *p > math.MaxUint32 {
		return nil
	}
	n := uint32(*p)
	return &n
}

func firstString(v rawevent.Value, paths [][]string) (string, bool) {
	for _, path := range paths {
		found, ok := v.Path(path...)
		if !ok {
			continue
		}
		if s, ok := found.AsString(); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func intField(v rawevent.Value, key string) *int64 {
	if n, ok := v.Get(key).AsInt(); ok {
		return &n
	}
	return nil
}

// floatField drops NaN and infinities, which cannot be encoded as JSON.
func floatField(v rawevent.Value, key string) *float64 {
	f, ok := v.Get(key).AsFloat()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func stringField(v rawevent.Value, key string) *string {
	if s, ok := v.Get(key).AsString(); ok && s != "" {
		return &s
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// Describe renders a record for log lines.
func Describe(rec any) string {
	switch r := rec.(type) {
	case store.TextRecord:
		return fmt.Sprintf("text from %s: %q", formatNum(r.From), r.Text)
	case store.PositionRecord:
		return fmt.Sprintf("position from %s", formatNum(r.From))
	case store.TelemetryRecord:
		return fmt.Sprintf("telemetry from %s", formatNum(r.From))
	case store.NodeRecord:
		return fmt.Sprintf("node %s", formatNum(r.Num))
	}
	return fmt.Sprintf("%T", rec)
}

func formatNum(n *uint32) string {
	if n == nil {
		return "?"
	}
	return store.FormatNodeNum(*n)
}
