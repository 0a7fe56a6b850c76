package model

// Resource is an external system that owns some collections/items and
// synchronizes them through the server. Every
// collection roots transitively in one resource.
type Resource struct {
	ID        int64
	Name      string
	SessionID string

	// HasLocalStorage is true when the resource keeps its own durable
	// copy of item payloads (e.g. a local maildir) rather than relying
	// entirely on the server's cache. A cacheOnly fetch still triggers
	// retrieval against such a resource, since asking it is cheap and
	// never reaches an external network.
	HasLocalStorage bool
}
