// Package capture stores raw radio frames in a SQLite database so that a
// session can be replayed later. Only the frames are kept; decoded records
// are always rebuilt by replaying through the dispatcher.
package capture
