// ABOUTME: Domain records produced by payload decoding
// ABOUTME: Optional fields are pointers; node numbers render as 0x-prefixed hex

package store

import (
	"strconv"
	"time"
)

// Collection names used in change notifications and the HTTP API.
const (
	CollectionTexts     = "texts"
	CollectionPositions = "positions"
	CollectionTelemetry = "telemetry"
	CollectionNodes     = "nodes"
	CollectionLogs      = "logs"
)

// LogLevel is the severity of a diagnostic log record.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// TextSentinel replaces the body of a text message that could not be decoded.
const TextSentinel = "(binary)"

// TextRecord is one received text message.
type TextRecord struct {
	ID      string    `json:"id"`
	From    *uint32   `json:"from,omitempty"`
	To      *uint32   `json:"to,omitempty"`
	Channel *uint32   `json:"channel,omitempty"`
	Text    string    `json:"text"`
	RxRssi  *float64  `json:"rx_rssi,omitempty"`
	RxSnr   *float64  `json:"rx_snr,omitempty"`
	At      time.Time `json:"at"`
}

// PositionRecord is one position report. Lat and Lon are decimal degrees.
type PositionRecord struct {
	ID      string    `json:"id"`
	From    *uint32   `json:"from,omitempty"`
	Lat     *float64  `json:"lat,omitempty"`
	Lon     *float64  `json:"lon,omitempty"`
	Alt     *int64    `json:"alt,omitempty"`
	Sats    *int64    `json:"sats,omitempty"`
	Speed   *int64    `json:"speed,omitempty"`
	Heading *int64    `json:"heading,omitempty"`
	DOP     *int64    `json:"dop,omitempty"`
	At      time.Time `json:"at"`
}

// TelemetryRecord is one device metrics sample.
type TelemetryRecord struct {
	ID           string    `json:"id"`
	From         *uint32   `json:"from,omitempty"`
	Voltage      *float64  `json:"voltage,omitempty"`
	BatteryLevel *int64    `json:"battery_level,omitempty"`
	UptimeSec    *int64    `json:"uptime_sec,omitempty"`
	AirUtilTx    *float64  `json:"air_util_tx,omitempty"`
	At           time.Time `json:"at"`
}

// NodeRecord is a node identity. Num is the registry key; records without it
// are standalone sightings.
type NodeRecord struct {
	ID        string     `json:"id"`
	Num       *uint32    `json:"num,omitempty"`
	Name      *string    `json:"name,omitempty"`
	ShortName *string    `json:"short_name,omitempty"`
	HwModel   *string    `json:"hw_model,omitempty"`
	LastHeard *time.Time `json:"last_heard,omitempty"`
	At        time.Time  `json:"at"`
}

// Recency is LastHeard, or At when LastHeard is unknown.
func (n NodeRecord) Recency() time.Time {
	if n.LastHeard != nil {
		return *n.LastHeard
	}
	return n.At
}

// NodePatch holds node fields to merge into the registry. Nil fields leave
// the existing value alone.
type NodePatch struct {
	Name      *string
	ShortName *string
	HwModel   *string
	LastHeard *time.Time
}

func (p NodePatch) applyTo(n *NodeRecord) {
	if p.Name != nil {
		n.Name = p.Name
	}
	if p.ShortName != nil {
		n.ShortName = p.ShortName
	}
	if p.HwModel != nil {
		n.HwModel = p.HwModel
	}
	if p.LastHeard != nil {
		n.LastHeard = p.LastHeard
	}
}

// PatchOf returns the mergeable fields of n.
func PatchOf(n NodeRecord) NodePatch {
	return NodePatch{Name: n.Name, ShortName: n.ShortName, HwModel: n.HwModel, LastHeard: n.LastHeard}
}

// LogRecord is an operational diagnostic.
type LogRecord struct {
	ID      string    `json:"id"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// FormatNodeNum renders a node number for humans: lowercase hex, 0x prefix,
// no padding.
func FormatNodeNum(num uint32) string {
	return "0x" + strconv.FormatUint(uint64(num), 16)
}

// SyntheticNodeID is the record ID of a registry entry created from a bare
// node number.
func SyntheticNodeID(num uint32) string {
	return "num-" + strconv.FormatUint(uint64(num), 16)
}
