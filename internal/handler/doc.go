// Package handler implements the server's command handlers: one file
// per command family — fetch, modify, create, move, copy, delete, link,
// tag, relation, transaction, subscription, search — each parsing an
// internal/wire command, performing the transactional store work,
// registering notifications, and producing the response(s)
// internal/server writes back on the connection.
//
// Dispatch is table-driven: each family's init() registers its handlers
// in a discriminator-keyed map, one function per operation, operating
// against the storage façade inside a single transaction. The server is
// single-writer, so handlers apply directly with no consensus log.
package handler
