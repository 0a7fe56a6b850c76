package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscCopyItem, handleCopyItem)
	registerHandler(wire.DiscCopyCollection, handleCopyCollection)
}

// handleCopyItem duplicates every scoped item under
// c.DestinationCollectionID, assigning a fresh id and revision 0. A copy
// never inherits the source's remoteId, so it
// never queues a ChangeCommitted replay regardless of resource crossing.
func handleCopyItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CopyItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: copy item: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: copy item: destination: %w", err)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: copy item: %w", err)
	}

	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: copy item: %w", err)
		}

		copyIt := &model.Item{
			ParentID: dest.ID,
			MimeType: it.MimeType,
			GID:      it.GID,
			Flags:    append([]string(nil), it.Flags...),
			Tags:     append([]int64(nil), it.Tags...),
			Parts:    append([]model.Part(nil), it.Parts...),
		}
		if err := env.Store.CreateItem(ctx, env.Tx, copyIt); err != nil {
			return nil, fmt.Errorf("handler: copy item %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpAdd,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: copyIt.ID, MimeType: copyIt.MimeType}},
			ParentCollection: dest.ID,
			ResourceID:       dest.ResourceID,
		})
	}
	if len(ids) > 0 {
		recordStatisticsChanged(env, dest.ID)
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// handleCopyCollection duplicates the scoped collection(s) and their
// subtrees under c.DestinationCollectionID.
func handleCopyCollection(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CopyCollectionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: copy collection: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: copy collection: destination: %w", err)
	}

	ids, err := env.Store.ResolveCollectionScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: copy collection: %w", err)
	}

	for _, id := range ids {
		col, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: copy collection: %w", err)
		}
		if _, err := recursiveCopyCollection(ctx, env, col, dest); err != nil {
			return nil, fmt.Errorf("handler: copy collection %d: %w", id, err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func recursiveCopyCollection(ctx context.Context, env *Env, col, dest *model.Collection) (*model.Collection, error) {
	newCol := &model.Collection{
		ParentID:    dest.ID,
		Name:        col.Name,
		MimeTypes:   col.MimeTypes,
		ResourceID:  dest.ResourceID,
		Attributes:  col.Attributes,
		Enabled:     col.Enabled,
		SyncPref:    col.SyncPref,
		DisplayPref: col.DisplayPref,
		IndexPref:   col.IndexPref,
		CachePolicy: col.CachePolicy,
		Virtual:     col.Virtual,
		Referenced:  col.Referenced,
	}
	if err := env.Store.CreateCollection(ctx, env.Tx, newCol); err != nil {
		return nil, err
	}
	env.Collector.Record(model.Notification{
		Type:             model.NotifyCollection,
		Operation:        model.OpAdd,
		SessionID:        env.SessionID,
		Entities:         []model.EntityRef{{ID: newCol.ID, MimeType: "collection"}},
		ParentCollection: newCol.ParentID,
		ResourceID:       newCol.ResourceID,
	})

	items, err := env.Store.ListItemsByParent(ctx, env.Tx, col.ID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		copyIt := &model.Item{
			ParentID: newCol.ID,
			MimeType: it.MimeType,
			GID:      it.GID,
			Flags:    append([]string(nil), it.Flags...),
			Tags:     append([]int64(nil), it.Tags...),
			Parts:    append([]model.Part(nil), it.Parts...),
		}
		if err := env.Store.CreateItem(ctx, env.Tx, copyIt); err != nil {
			return nil, err
		}
		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpAdd,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: copyIt.ID, MimeType: copyIt.MimeType}},
			ParentCollection: newCol.ID,
			ResourceID:       newCol.ResourceID,
		})
	}

	children, err := env.Store.ListCollections(ctx, env.Tx)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.ParentID != col.ID {
			continue
		}
		if _, err := recursiveCopyCollection(ctx, env, child, newCol); err != nil {
			return nil, err
		}
	}

	return newCol, nil
}
