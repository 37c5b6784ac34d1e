// Package decode turns a located payload into domain records.
//
// Each category has its own entry point: Text, Position, Telemetry and Node.
// Text runs an ordered chain of strategies and the first one that yields a
// non-empty string wins:
//
//  1. known field paths on the event itself (text, data.text,
//     packet.decoded.text, ...)
//  2. structured decode of the payload against candidate schemas
//  3. string-valued data fields
//  4. UTF-8 decode of the payload, accepted only if it looks like text
//
// When every strategy misses, the record carries TextSentinel and a single
// DEBUG diagnostic with a hex preview of the payload is emitted.
//
// Structured decode failures are never errors here: the other categories
// return a record with whatever fields could be recovered, possibly none.
package decode
