// Package engine runs computations in batch and streaming mode.
//
// Batch runs accumulate a process's stdout, parse it as one JSON document on
// exit and persist it in the result store. Streaming runs frame stdout into
// newline-delimited JSON events and publish each one to the Hub as it
// arrives, ending with a single terminal event. Streaming runs execute in
// goroutines tracked by the Engine; callers never block on them.
package engine
