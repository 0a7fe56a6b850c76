package search

import "context"

// Hit is one match the engine found for a query, scoped to a collection.
type Hit struct {
	CollectionID int64
	ItemIDs      []int64
}

// Engine is implemented by a pluggable full-text/index backend. Engine
// is expected to scope its search to the given collection ids (expanded
// to the whole subtree when recursive is true) and report results
// incrementally over the returned channel, closing it when the search
// completes or ctx is cancelled.
type Engine interface {
	Search(ctx context.Context, query string, collectionIDs []int64, recursive bool) (<-chan Hit, error)
}
