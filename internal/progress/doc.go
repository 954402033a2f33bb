// Package progress tracks run counters and fans run, session, and attempt
// events out to pluggable sinks. The Tracker is the source of truth for the
// success/not-found/failure counts; the Hub batches events on a background
// goroutine so workers never block on logging, metrics, or publishing.
package progress
