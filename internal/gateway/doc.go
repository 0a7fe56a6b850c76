// Package gateway implements the out-of-band RPC channel resource agents
// (IMAP, CalDAV, and similar connector processes) register on at
// startup; item/collection retrieval from a resource's backing store
// happens over this channel, separate from the client-facing wire
// protocol in internal/server.
//
// A resource agent dials in and implements ResourceGateway; internal/
// retrieval calls RetrieveItems/RetrieveCollections on the gateway
// currently registered for a resource, and the server calls
// ChangeCommitted after a local write so the agent can push it upstream.
// The process that spawns and supervises resource agents is out of scope
// — this package only sees a resource as a registry entry plus a live
// RPC connection.
//
// The transport is a grpc.Server behind mTLS (certificates from a
// CertAuthority, TLS 1.3, client cert verification), with generated
// protobuf stubs replaced by a hand-written JSON codec (codec.go) and a
// manually built grpc.ServiceDesc (service.go): no .proto definition
// exists for this domain and introducing one is out of proportion to
// three RPCs.
package gateway
