// Package dispatch subscribes the decoders to an event source.
//
// A source offers named events. The dispatcher always subscribes the
// firehose event, which carries every radio frame, and then each specific
// event it knows for the text, position, node info and telemetry categories.
// The Guard remembers which categories have a specific subscription; the
// firehose handler skips those categories so that one logical packet is
// decoded by exactly one path.
package dispatch
