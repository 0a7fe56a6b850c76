package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscDeleteItem, handleDeleteItem)
	registerHandler(wire.DiscDeleteCollection, handleDeleteCollection)
}

func handleDeleteItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.DeleteItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: delete item: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: delete item: %w", err)
	}

	var touched []int64
	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: delete item: %w", err)
		}
		var resourceID int64
		if parent, err := env.Store.GetCollection(ctx, env.Tx, it.ParentID); err == nil {
			resourceID = parent.ResourceID
		}

		if err := env.Store.DeleteItem(ctx, env.Tx, id); err != nil {
			return nil, fmt.Errorf("handler: delete item %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpRemove,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection: it.ParentID,
			ResourceID:       resourceID,
		})
		touched = append(touched, it.ParentID)
	}
	recordStatisticsChanged(env, touched...)

	return &wire.TerminalResponse{OK: true}, nil
}

// handleDeleteCollection removes the scoped collection(s). A non-virtual
// collection's delete cascades to its subtree; a virtual collection's
// delete only removes the collection and its links, leaving the real
// items untouched.
func handleDeleteCollection(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.DeleteCollectionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: delete collection: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveCollectionScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: delete collection: %w", err)
	}

	for _, id := range ids {
		col, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: delete collection: %w", err)
		}
		if err := recursiveDeleteCollection(ctx, env, col); err != nil {
			return nil, fmt.Errorf("handler: delete collection %d: %w", id, err)
		}
		if env.Scheduler != nil {
			env.Scheduler.Cancel(col.ID)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func recursiveDeleteCollection(ctx context.Context, env *Env, col *model.Collection) error {
	if col.Virtual {
		unlinked, err := env.Store.UnlinkAllFromCollection(ctx, env.Tx, col.ID)
		if err != nil {
			return err
		}
		for _, itemID := range unlinked {
			env.Collector.Record(model.Notification{
				Type:             model.NotifyItem,
				Operation:        model.OpUnlink,
				SessionID:        env.SessionID,
				Entities:         []model.EntityRef{{ID: itemID}},
				ParentCollection: col.ID,
				ResourceID:       col.ResourceID,
			})
		}
		env.Collector.Record(model.Notification{
			Type:             model.NotifyCollection,
			Operation:        model.OpRemove,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
			ParentCollection: col.ParentID,
			ResourceID:       col.ResourceID,
		})
		return env.Store.DeleteCollection(ctx, env.Tx, col.ID)
	}

	children, err := env.Store.ListCollections(ctx, env.Tx)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ParentID != col.ID {
			continue
		}
		if err := recursiveDeleteCollection(ctx, env, child); err != nil {
			return err
		}
	}

	items, err := env.Store.ListItemsByParent(ctx, env.Tx, col.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := env.Store.DeleteItem(ctx, env.Tx, it.ID); err != nil {
			return err
		}
		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpRemove,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection: col.ID,
			ResourceID:       col.ResourceID,
		})
	}

	env.Collector.Record(model.Notification{
		Type:             model.NotifyCollection,
		Operation:        model.OpRemove,
		SessionID:        env.SessionID,
		Entities:         []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
		ParentCollection: col.ParentID,
		ResourceID:       col.ResourceID,
	})
	return env.Store.DeleteCollection(ctx, env.Tx, col.ID)
}
