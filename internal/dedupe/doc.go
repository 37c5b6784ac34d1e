// Package dedupe remembers recently seen packet keys so that a packet which
// reaches the dispatcher through more than one subscription is decoded once.
package dedupe
