package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscMoveItem, handleMoveItem)
	registerHandler(wire.DiscMoveCollection, handleMoveCollection)
}

// handleMoveItem reparents every scoped item to c.DestinationCollectionID,
// queuing a ChangeCommitted replay when the move crosses resources and
// the item has a remoteId.
func handleMoveItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.MoveItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: move item: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: move item: destination: %w", err)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: move item: %w", err)
	}

	var touched []int64
	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: move item: %w", err)
		}
		source, err := env.Store.GetCollection(ctx, env.Tx, it.ParentID)
		if err != nil {
			return nil, fmt.Errorf("handler: move item: source: %w", err)
		}

		oldParent := it.ParentID
		it.ParentID = dest.ID
		it.Revision++
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return nil, fmt.Errorf("handler: move item %d: %w", id, err)
		}

		if source.ResourceID != dest.ResourceID && it.RemoteID != "" && env.Retrieval != nil {
			if err := replayChangeCommitted(ctx, env, dest.ResourceID, it, nil); err != nil {
				return nil, fmt.Errorf("handler: move item %d: %w", id, err)
			}
		}

		env.Collector.Record(model.Notification{
			Type:                 model.NotifyItem,
			Operation:            model.OpMove,
			SessionID:            env.SessionID,
			Entities:             []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection:     oldParent,
			ParentDestCollection: dest.ID,
			ResourceID:           source.ResourceID,
			DestResourceID:       dest.ResourceID,
		})
		touched = append(touched, oldParent, dest.ID)
	}
	recordStatisticsChanged(env, touched...)

	return &wire.TerminalResponse{OK: true}, nil
}

// replayChangeCommitted notifies the destination resource's agent that
// itemID landed under its tree, resolving the resource's registered name
// from destResourceID.
func replayChangeCommitted(ctx context.Context, env *Env, destResourceID int64, it *model.Item, changedParts []string) error {
	resource, err := env.Store.GetResource(ctx, env.Tx, destResourceID)
	if err != nil {
		return fmt.Errorf("resolve destination resource: %w", err)
	}
	return env.Retrieval.ChangeCommitted(ctx, resource.Name, it.ID, it.RemoteID, changedParts)
}

// replayCollectionChangeCommitted notifies newCol's resource that the
// collection's remoteId now lives under its tree, the collection-level
// analogue of replayChangeCommitted. A collection with an empty remoteId
// has no upstream identity yet, so the move silently acks without
// queuing upstream work.
func replayCollectionChangeCommitted(ctx context.Context, env *Env, newCol *model.Collection) error {
	if newCol.RemoteID == "" || env.Retrieval == nil {
		return nil
	}
	resource, err := env.Store.GetResource(ctx, env.Tx, newCol.ResourceID)
	if err != nil {
		return fmt.Errorf("resolve destination resource: %w", err)
	}
	return env.Retrieval.ChangeCommittedCollection(ctx, resource.Name, newCol.ID, newCol.RemoteID)
}

// handleMoveCollection reparents the scoped collection(s). An
// inter-resource collection move is represented as remove-in-source +
// create-in-destination via recursiveMoveCollection, which replays the
// subtree top-down rather than rewriting ResourceID in place.
func handleMoveCollection(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.MoveCollectionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: move collection: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: move collection: destination: %w", err)
	}

	ids, err := env.Store.ResolveCollectionScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: move collection: %w", err)
	}

	for _, id := range ids {
		col, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: move collection: %w", err)
		}

		if col.ResourceID == dest.ResourceID {
			oldParent := col.ParentID
			col.ParentID = dest.ID
			if err := env.Store.UpdateCollection(ctx, env.Tx, col); err != nil {
				return nil, fmt.Errorf("handler: move collection %d: %w", id, err)
			}
			env.Collector.Record(model.Notification{
				Type:                 model.NotifyCollection,
				Operation:            model.OpMove,
				SessionID:            env.SessionID,
				Entities:             []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
				ParentCollection:     oldParent,
				ParentDestCollection: dest.ID,
				ResourceID:           col.ResourceID,
			})
			continue
		}

		if err := recursiveMoveCollection(ctx, env, col, dest); err != nil {
			return nil, fmt.Errorf("handler: move collection %d: %w", id, err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// recursiveMoveCollection walks col's subtree top-down, recreating each
// collection under dest's resource, moving its items onto the copy, and
// removing the original collections;
// an inter-resource collection move is a remove-in-source plus
// create-in-destination, never a ResourceID rewrite in place.
func recursiveMoveCollection(ctx context.Context, env *Env, col *model.Collection, dest *model.Collection) error {
	newCol := &model.Collection{
		ParentID:       dest.ID,
		Name:           col.Name,
		MimeTypes:      col.MimeTypes,
		ResourceID:     dest.ResourceID,
		Attributes:     col.Attributes,
		Enabled:        col.Enabled,
		SyncPref:       col.SyncPref,
		DisplayPref:    col.DisplayPref,
		IndexPref:      col.IndexPref,
		CachePolicy:    col.CachePolicy,
		Virtual:        col.Virtual,
		Referenced:     col.Referenced,
		RemoteID:       col.RemoteID,
		RemoteRevision: col.RemoteRevision,
	}
	if err := env.Store.CreateCollection(ctx, env.Tx, newCol); err != nil {
		return err
	}
	env.Collector.Record(model.Notification{
		Type:                 model.NotifyCollection,
		Operation:            model.OpMove,
		SessionID:            env.SessionID,
		Entities:             []model.EntityRef{{ID: newCol.ID, MimeType: "collection"}},
		ParentCollection:     col.ParentID,
		ParentDestCollection: newCol.ParentID,
		ResourceID:           col.ResourceID,
		DestResourceID:       newCol.ResourceID,
	})

	if err := replayCollectionChangeCommitted(ctx, env, newCol); err != nil {
		return err
	}

	items, err := env.Store.ListItemsByParent(ctx, env.Tx, col.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		it.ParentID = newCol.ID
		it.Revision++
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return err
		}
		if it.RemoteID != "" && env.Retrieval != nil {
			if err := replayChangeCommitted(ctx, env, dest.ResourceID, it, nil); err != nil {
				return err
			}
		}
	}

	children, err := env.Store.ListCollections(ctx, env.Tx)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ParentID != col.ID {
			continue
		}
		if err := recursiveMoveCollection(ctx, env, child, newCol); err != nil {
			return err
		}
	}

	return env.Store.DeleteCollection(ctx, env.Tx, col.ID)
}
