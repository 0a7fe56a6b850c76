// Package resourceclient is the library a resource agent process (an
// IMAP, CalDAV, or similar connector) links against to join the
// resource gateway in internal/gateway.
//
// A resource agent calls Connect to dial the itemstored server's gateway
// over mTLS and Register itself, then calls Serve to host its own
// ResourceGateway implementation (RetrieveItems, RetrieveCollections,
// ChangeCommitted) so the server can call back into it.
package resourceclient
