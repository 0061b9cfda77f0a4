// Package broker implements durable lease queues on Pebble.
//
// Each queue lives under its own key prefix:
//
//	q/{name}/seq                         last assigned sequence (8B BE)
//	q/{name}/msg/{seq}                   message record (see record.go)
//	q/{name}/ready/{seq}                 visible messages, in sequence order
//	q/{name}/lease/{seq}                 expiry ms (8B BE) | receipt (16B)
//	q/{name}/lease_idx/{expiry}/{seq}    leases ordered by expiry
//	qmeta/{name}                         queue registry record (JSON)
//
// Leasing moves a message from ready to lease, bumps its delivery count and
// mints a fresh receipt. The handle given to the caller embeds the receipt,
// so a handle from a lease that expired and was handed to someone else no
// longer deletes the message. Expired leases are reclaimed at the start of
// every lease call and by the background sweeper.
package broker
