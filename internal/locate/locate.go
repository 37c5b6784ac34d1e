// ABOUTME: Breadth-first payload and routing metadata extraction from raw events
// ABOUTME: Cycle safe; first match in queue order wins, packet id comes from the sender map

// Package locate finds the binary payload and routing fields of a radio event
// without assuming where in the event they live.
//
// The walk is breadth first over map and list nodes, visiting each node once.
// Shallower and earlier-sibling fields therefore take precedence over deeper
// ones. That precedence is a heuristic: the protocol does not promise that the
// first payload found is the application payload.
//
// PacketID is the exception. It is taken from the map that supplied From,
// because wrapper frames carry their own sequence id one level above the
// packet. Only when no map carries a sender does the first id win.
package locate

import (
	"math"

	"github.com/2389/meshwatch/internal/portnum"
	"github.com/2389/meshwatch/internal/rawevent"
)

// Envelope is the payload plus routing metadata extracted from one event.
// Every field is optional.
type Envelope struct {
	Payload  []byte
	Port     portnum.Port
	From     *int64
	To       *int64
	Channel  *int64
	PacketID *int64
	RxRssi   *float64
	RxSnr    *float64
}

// Empty reports whether nothing at all was found.
func (e Envelope) Empty() bool {
	return e.Payload == nil && !e.Port.IsSet() && e.From == nil && e.To == nil &&
		e.Channel == nil && e.PacketID == nil && e.RxRssi == nil && e.RxSnr == nil
}

var (
	portKeys = []string{"portnum", "portNum"}
	rssiKeys = []string{"rxRssi", "rx_rssi"}
	snrKeys  = []string{"rxSnr", "rx_snr"}
)

// Locate walks v and returns its envelope. It never panics and returns an
// empty envelope when nothing is recognised.
func Locate(v rawevent.Value) Envelope {
	var env Envelope
	var w walk
	seen := make(map[any]struct{})
	queue := []rawevent.Value{v}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !cur.IsContainer() {
			continue
		}
		if _, ok := seen[cur.Ref()]; ok {
			continue
		}
		seen[cur.Ref()] = struct{}{}

		if m, ok := cur.AsMap(); ok {
			w.capture(&env, m)
		}
		for _, child := range cur.Children() {
			if child.IsContainer() {
				queue = append(queue, child)
			}
		}
	}
	return env
}

// walk holds state that spans maps during one Locate.
type walk struct {
	// senderFound is set once From is taken; PacketID is then fixed.
	senderFound bool
}

func (w *walk) capture(env *Envelope, m *rawevent.Map) {
	if env.Payload == nil {
		if val, ok := m.Get("payload"); ok {
			if b, ok := val.AsBytes(); ok {
				env.Payload = b
			}
		}
	}
	if !env.Port.IsSet() {
		env.Port = port(m)
	}
	if !w.senderFound {
		intField(&env.From, m, "from")
		if env.From != nil {
			w.senderFound = true
			env.PacketID = nil
		}
		intField(&env.PacketID, m, "id")
	}
	intField(&env.To, m, "to")
	intField(&env.Channel, m, "channel")
	floatField(&env.RxRssi, m, rssiKeys...)
	floatField(&env.RxSnr, m, snrKeys...)
}

func port(m *rawevent.Map) portnum.Port {
	for _, k := range portKeys {
		val, ok := m.Get(k)
		if !ok {
			continue
		}
		if n, ok := val.AsInt(); ok {
			return portnum.Number(n)
		}
		if s, ok := val.AsString(); ok {
			return portnum.Symbol(s)
		}
	}
	return portnum.Port{}
}

func intField(dst **int64, m *rawevent.Map, key string) {
	if *dst != nil {
		return
	}
	val, ok := m.Get(key)
	if !ok {
		return
	}
	if n, ok := val.AsInt(); ok {
		*dst = &n
	}
}

func floatField(dst **float64, m *rawevent.Map, keys ...string) {
	if *dst != nil {
		return
	}
	for _, k := range keys {
		val, ok := m.Get(k)
		if !ok {
			continue
		}
		if f, ok := val.AsFloat(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*dst = &f
			return
		}
	}
}
