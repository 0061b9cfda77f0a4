// Package client provides the `courier` command-line client.
//
// Commands resolve their configuration from defaults, an optional --config
// JSON file, COURIER_* environment variables and the persistent flags, then
// open the configured transport. Use --transport grpc to talk to a running
// broker (`courier broker start`); the pebble transport opens the data
// directory directly and cannot share it with a running broker.
//
// Usage
//
//	courier worker run --transport grpc --count 4
//
//	courier submit --transport grpc --data '{"requestNumber":1,"startTime":"2024-05-01T10:00:00Z"}'
//
//	# Five rounds of 200 requests at 100 TPS through the queues
//	courier bench --transport grpc --requests 200 --tps 100 --rounds 5
//
//	# Self-contained: in-memory queues with in-process workers
//	courier bench --transport memory --workers 4 --requests 1000 --tps 0
//
//	# Through the HTTP front end, recording rounds locally
//	courier bench --via http --requests 50 --results-dir ./bench-results
//
//	courier stats --transport grpc --queue request-queue
//	courier peek --transport grpc --filter 'deliveries > 1' --limit 10
//	courier results --limit 5
//
// Notes
//
//   - results reads GET /v1/results from the broker's HTTP front end, whose
//     address comes from COURIER_HTTP (default http://127.0.0.1:7080).
//   - peek prints each body as payload_json, payload_text or payload_b64.
package client
