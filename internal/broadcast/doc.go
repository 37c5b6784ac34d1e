// Package broadcast fans out store change notifications to live subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses the change
// and is expected to re-read the store. Subscriptions end when their context
// is cancelled or on Unsubscribe.
package broadcast
