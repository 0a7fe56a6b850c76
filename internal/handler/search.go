package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscSearch, handleSearch)
	registerHandler(wire.DiscStoreSearch, handleStoreSearch)
}

// handleSearch streams one SearchResultResponse per collection the
// configured search engine reports a hit in, then a terminal response
// closes the exchange.
func handleSearch(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.SearchCommand)
	if !ok {
		return nil, fmt.Errorf("handler: search: unexpected command type %T", cmd)
	}
	if env.Search == nil {
		return nil, fmt.Errorf("handler: search: no search engine configured")
	}

	hits, err := env.Search.Search(ctx, c.Query, c.CollectionIDs, c.Recursive)
	if err != nil {
		return nil, fmt.Errorf("handler: search: %w", err)
	}

	for hit := range hits {
		if err := resp.SendIntermediate(&wire.SearchResultResponse{
			SearchID:     c.SearchID,
			CollectionID: hit.CollectionID,
			ItemIDs:      hit.ItemIDs,
		}); err != nil {
			return nil, fmt.Errorf("handler: search: stream result: %w", err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// handleStoreSearch persists Query as a virtual PersistentSearch
// collection.
func handleStoreSearch(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.StoreSearchCommand)
	if !ok {
		return nil, fmt.Errorf("handler: store search: unexpected command type %T", cmd)
	}

	col := &model.Collection{
		ParentID: c.ParentID,
		Name:     c.Name,
		Virtual:  true,
		Enabled:  true,
		Search: &model.PersistentSearch{
			Query:             c.Query,
			SourceCollections: c.SourceCollections,
			Remote:            c.Remote,
			Recursive:         c.Recursive,
		},
	}
	if err := env.Store.CreateCollection(ctx, env.Tx, col); err != nil {
		return nil, fmt.Errorf("handler: store search: %w", err)
	}

	env.Collector.Record(model.Notification{
		Type:             model.NotifyCollection,
		Operation:        model.OpAdd,
		SessionID:        env.SessionID,
		Entities:         []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
		ParentCollection: col.ParentID,
	})

	return &wire.CreateCollectionResponse{ID: col.ID}, nil
}
