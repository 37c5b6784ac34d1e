// Package api exposes the store read accessors as JSON and streams
// broadcast.Change notifications to browsers as server-sent events. It is a
// read-only presentation surface; nothing here mutates the store.
package api
