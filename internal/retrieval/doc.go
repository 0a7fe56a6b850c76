// Package retrieval implements the item-retrieval coordinator: when a
// fetch handler needs part bytes that aren't cached, it calls the
// Coordinator, which coalesces concurrent requests for the same
// (itemID, sorted part names) key into a single upstream call to the
// owning resource over internal/gateway, and blocks every waiter until
// that call completes or a per-request timeout elapses.
//
// Coalescing rides golang.org/x/sync/singleflight, which is exactly the
// "one flight per key, latecomers join it" primitive the coordinator
// needs.
package retrieval
