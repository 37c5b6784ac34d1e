// ABOUTME: Per-category flags recording which categories have a specific subscription
// ABOUTME: The firehose consults them to avoid decoding a category twice

package dispatch

import "github.com/2389/meshwatch/internal/portnum"

// Guard holds one flag per decodable category. The zero value has every
// flag clear, so the firehose handles everything.
type Guard struct {
	Text      bool
	Position  bool
	NodeInfo  bool
	Telemetry bool
}

// Set marks cat as covered by a specific subscription.
func (g *Guard) Set(cat portnum.Category) {
	switch cat {
	case portnum.CategoryText:
		g.Text = true
	case portnum.CategoryPosition:
		g.Position = true
	case portnum.CategoryNodeInfo:
		g.NodeInfo = true
	case portnum.CategoryTelemetry:
		g.Telemetry = true
	}
}

// Covers reports whether the firehose should leave cat to a specific
// subscription. UNKNOWN is never covered.
func (g Guard) Covers(cat portnum.Category) bool {
	switch cat {
	case portnum.CategoryText:
		return g.Text
	case portnum.CategoryPosition:
		return g.Position
	case portnum.CategoryNodeInfo:
		return g.NodeInfo
	case portnum.CategoryTelemetry:
		return g.Telemetry
	}
	return false
}
