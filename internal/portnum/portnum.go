// ABOUTME: Maps numeric or symbolic port identifiers to canonical labels
// ABOUTME: Reverse enum lookup first, then a static table, then PORT_<n>

package portnum

import (
	"regexp"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/2389/meshwatch/internal/schema"
)

// Well-known labels.
const (
	LabelText      = "TEXT_MESSAGE_APP"
	LabelPosition  = "POSITION_APP"
	LabelNodeInfo  = "NODEINFO_APP"
	LabelTelemetry = "TELEMETRY_APP"
	LabelUnknown   = "UNKNOWN"
)

// Category is the coarse record kind a port decodes into.
type Category string

const (
	CategoryText      Category = "TEXT"
	CategoryPosition  Category = "POSITION"
	CategoryNodeInfo  Category = "NODEINFO"
	CategoryTelemetry Category = "TELEMETRY"
	CategoryUnknown   Category = "UNKNOWN"
)

// Categories lists the decodable categories in dispatch order.
var Categories = []Category{CategoryText, CategoryPosition, CategoryNodeInfo, CategoryTelemetry}

var fallback = map[int64]string{
	1:  LabelText,
	3:  LabelPosition,
	4:  LabelNodeInfo,
	67: LabelTelemetry,
}

var (
	symbolicPort = regexp.MustCompile(`^PORT_(\d+)$`)
	enumName     = regexp.MustCompile(`^[A-Z_]+$`)
)

type portKind uint8

const (
	portUnset portKind = iota
	portNumber
	portSymbol
)

// Port is a numeric or symbolic port identifier. The zero Port is unset.
type Port struct {
	kind portKind
	num  int64
	name string
}

// Number returns a numeric port.
func Number(n int64) Port { return Port{kind: portNumber, num: n} }

// Symbol returns a symbolic port.
func Symbol(s string) Port { return Port{kind: portSymbol, name: s} }

// IsSet reports whether p carries a value.
func (p Port) IsSet() bool { return p.kind != portUnset }

// Num returns the numeric value of a numeric port.
func (p Port) Num() (int64, bool) { return p.num, p.kind == portNumber }

// Name returns the symbol of a symbolic port.
func (p Port) Name() (string, bool) { return p.name, p.kind == portSymbol }

func (p Port) String() string {
	switch p.kind {
	case portNumber:
		return strconv.FormatInt(p.num, 10)
	case portSymbol:
		return p.name
	}
	return "unset"
}

// Classifier turns ports into labels using a number to name table built once
// from enum descriptors.
type Classifier struct {
	names map[int64]string
}

// NewClassifier builds a classifier from the given enums. For each number the
// first value name in UPPER_SNAKE form wins; earlier enums take precedence.
func NewClassifier(enums ...protoreflect.EnumDescriptor) *Classifier {
	names := make(map[int64]string)
	for _, e := range enums {
		if e == nil {
			continue
		}
		values := e.Values()
		for i := 0; i < values.Len(); i++ {
			v := values.Get(i)
			name := string(v.Name())
			if !enumName.MatchString(name) {
				continue
			}
			if _, taken := names[int64(v.Number())]; !taken {
				names[int64(v.Number())] = name
			}
		}
	}
	return &Classifier{names: names}
}

// Default returns a classifier over the bundled PortNum enum.
func Default() *Classifier {
	return NewClassifier(schema.PortNum())
}

// Classify returns the canonical label for p. It never fails: unset ports
// are UNKNOWN and unmapped numbers become PORT_<n>.
func (c *Classifier) Classify(p Port) string {
	switch p.kind {
	case portSymbol:
		if m := symbolicPort.FindStringSubmatch(p.name); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return c.classifyNumber(n)
			}
		}
		if p.name == "" {
			return LabelUnknown
		}
		return p.name
	case portNumber:
		return c.classifyNumber(p.num)
	}
	return LabelUnknown
}

func (c *Classifier) classifyNumber(n int64) string {
	if c != nil {
		if name, ok := c.names[n]; ok {
			return name
		}
	}
	if name, ok := fallback[n]; ok {
		return name
	}
	return "PORT_" + strconv.FormatInt(n, 10)
}

// CategoryOf maps a label to its category.
func CategoryOf(label string) Category {
	switch label {
	case LabelText:
		return CategoryText
	case LabelPosition:
		return CategoryPosition
	case LabelNodeInfo:
		return CategoryNodeInfo
	case LabelTelemetry:
		return CategoryTelemetry
	}
	return CategoryUnknown
}
