// Package rawevent models the loosely typed, arbitrarily nested messages a
// radio transport hands to the decoder.
//
// # Values
//
// A Value is a tagged union:
//
//   - scalars: null, bool, int, float, string
//   - byte buffers
//   - ordered maps (*Map)
//   - sequences (*List)
//
// Maps and lists are reference nodes. A graph may contain cycles, so walkers
// track visited nodes by pointer identity (see Value.Ref).
//
// # Construction
//
//   - FromAny converts plain Go values (map[string]any, []any, []byte, ...)
//   - FromJSON parses JSON preserving key order; an object of the form
//     {"@bytes": "<base64>"} becomes a byte buffer
//   - schema.Registry.Decode produces Values from protobuf payloads
package rawevent
