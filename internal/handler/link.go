package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscLinkItem, handleLinkItem)
	registerHandler(wire.DiscUnlinkItem, handleUnlinkItem)
}

// handleLinkItem adds every scoped item as a virtual member of
// c.DestinationCollectionID without changing its real ParentID.
func handleLinkItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.LinkItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: link item: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: link item: destination: %w", err)
	}
	if !dest.Virtual {
		return nil, fmt.Errorf("handler: link item: destination %d is not virtual: %w", dest.ID, model.ErrConstraintViolation)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: link item: %w", err)
	}

	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: link item: %w", err)
		}
		if containsInt(it.VirtualParentIDs, dest.ID) {
			continue
		}
		it.VirtualParentIDs = append(it.VirtualParentIDs, dest.ID)
		it.Revision++
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return nil, fmt.Errorf("handler: link item %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpLink,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection: dest.ID,
			ResourceID:       dest.ResourceID,
		})
		recordStatisticsChanged(env, dest.ID)
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// handleUnlinkItem removes every scoped item as a virtual member of
// c.DestinationCollectionID.
func handleUnlinkItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.UnlinkItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: unlink item: unexpected command type %T", cmd)
	}

	dest, err := env.Store.GetCollection(ctx, env.Tx, c.DestinationCollectionID)
	if err != nil {
		return nil, fmt.Errorf("handler: unlink item: destination: %w", err)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: unlink item: %w", err)
	}

	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: unlink item: %w", err)
		}
		if !containsInt(it.VirtualParentIDs, dest.ID) {
			continue
		}
		it.VirtualParentIDs = subtractInts(it.VirtualParentIDs, []int64{dest.ID})
		it.Revision++
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return nil, fmt.Errorf("handler: unlink item %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpUnlink,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection: dest.ID,
			ResourceID:       dest.ResourceID,
		})
		recordStatisticsChanged(env, dest.ID)
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func containsInt(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
