package search

import (
	"context"
	"strings"
)

// Document is one indexed item as the in-memory engine sees it: just
// enough to match a substring query against.
type Document struct {
	ItemID       int64
	CollectionID int64
	Text         string
}

// MemoryEngine is a trivial substring-matching Engine for tests; it is
// not meant to back a real deployment.
type MemoryEngine struct {
	Documents []Document
}

// Search matches query as a case-insensitive substring of each
// document's Text, restricted to collectionIDs (or all documents when
// collectionIDs is empty). recursive has no effect here since the
// in-memory engine has no collection hierarchy of its own; callers that
// need subtree expansion do it before building collectionIDs.
func (e *MemoryEngine) Search(ctx context.Context, query string, collectionIDs []int64, recursive bool) (<-chan Hit, error) {
	allowed := make(map[int64]bool, len(collectionIDs))
	for _, id := range collectionIDs {
		allowed[id] = true
	}

	byCollection := make(map[int64][]int64)
	q := strings.ToLower(query)
	for _, d := range e.Documents {
		if len(allowed) > 0 && !allowed[d.CollectionID] {
			continue
		}
		if !strings.Contains(strings.ToLower(d.Text), q) {
			continue
		}
		byCollection[d.CollectionID] = append(byCollection[d.CollectionID], d.ItemID)
	}

	out := make(chan Hit, len(byCollection))
	for cid, ids := range byCollection {
		select {
		case <-ctx.Done():
			close(out)
			return out, ctx.Err()
		default:
		}
		out <- Hit{CollectionID: cid, ItemIDs: ids}
	}
	close(out)
	return out, nil
}
