// Package store holds every record decoded from the mesh in memory.
//
// # Collections
//
// The store keeps five collections, each newest first and capped:
//
//   - texts: TextRecord, one per received text message
//   - positions: PositionRecord, one per position report
//   - telemetry: TelemetryRecord, one per device metrics sample
//   - nodes: NodeRecord, one per node number, merged and sorted by recency
//   - logs: LogRecord, operational diagnostics from the decoder and dispatcher
//
// Caps come from Limits; zero values take DefaultEventLimit,
// DefaultLogLimit and DefaultNodeLimit.
//
// # Node registry
//
// PushNode and SeeNode merge into an existing entry with the same Num;
// fields missing from the update leave the stored value alone. SeeNode
// creates a synthetic entry (SyntheticNodeID) the first time a number is
// heard. Records without a Num are kept as standalone sightings.
//
// # Concurrency
//
// A single RWMutex guards all state. Read accessors and Snapshot return
// copies, so callers never observe later mutation.
//
// # Change notifications
//
// When Options.Publisher is set, every mutation publishes a
// broadcast.Change naming the collection and record ID. The HTTP change
// stream is built on this.
//
// # Testing
//
// Options.Now overrides the clock:
//
//	st := store.New(store.Options{Now: clock.Now})
package store
