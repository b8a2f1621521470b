// Package journal keeps a local record of every control message the agent
// receives and the outcome of handling it.
//
// Writes go through a Recorder so that the dispatch path never blocks on
// SQLite: entries are queued on a bounded channel and flushed by a single
// worker goroutine. When the queue is full the entry is dropped and counted.
package journal
