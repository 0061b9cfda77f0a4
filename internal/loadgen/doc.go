// Package loadgen drives the probe workload. Run submits a fixed number of
// probe requests at a target rate through a Submitter and averages the
// round-trip latency of the ones that succeed. Loop repeats Run and hands
// each outcome to a Sink.
//
// Two submitters exist: QueueSubmitter calls the queue-backed rpc.Client
// directly, HTTPSubmitter posts to the HTTP front end.
package loadgen
