package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscCreateItem, handleCreateItem)
	registerHandler(wire.DiscCreateCollection, handleCreateCollection)
}

func handleCreateItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CreateItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: create item: unexpected command type %T", cmd)
	}

	it := &model.Item{
		ParentID: c.ParentID,
		MimeType: c.MimeType,
		RemoteID: c.RemoteID,
		GID:      c.GID,
		Flags:    c.Flags,
		Parts:    c.Parts,
	}
	if err := env.Store.CreateItem(ctx, env.Tx, it); err != nil {
		return nil, fmt.Errorf("handler: create item: %w", err)
	}

	parent, err := env.Store.GetCollection(ctx, env.Tx, it.ParentID)
	if err != nil {
		return nil, fmt.Errorf("handler: create item: fetch parent: %w", err)
	}

	env.Collector.Record(model.Notification{
		Type:             model.NotifyItem,
		Operation:        model.OpAdd,
		SessionID:        env.SessionID,
		Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
		ParentCollection: it.ParentID,
		ResourceID:       parent.ResourceID,
	})
	recordStatisticsChanged(env, it.ParentID)

	return &wire.CreateItemResponse{ID: it.ID, Revision: it.Revision}, nil
}

func handleCreateCollection(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CreateCollectionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: create collection: unexpected command type %T", cmd)
	}

	col := &model.Collection{
		ParentID:    c.ParentID,
		Name:        c.Name,
		MimeTypes:   c.MimeTypes,
		ResourceID:  c.ResourceID,
		Enabled:     c.Enabled,
		SyncPref:    c.SyncPref,
		DisplayPref: c.DisplayPref,
		IndexPref:   c.IndexPref,
		CachePolicy: c.CachePolicy,
		Virtual:     c.Virtual,
		Referenced:  c.Referenced,
		RemoteID:    c.RemoteID,
	}
	if err := env.Store.CreateCollection(ctx, env.Tx, col); err != nil {
		return nil, fmt.Errorf("handler: create collection: %w", err)
	}

	if env.Scheduler != nil && col.EffectiveSyncPref() {
		policy, err := env.Store.EffectiveCachePolicy(ctx, env.Tx, col.ID)
		if err == nil {
			env.Scheduler.Schedule(col.ID, schedulerInterval(policy))
		}
	}

	env.Collector.Record(model.Notification{
		Type:             model.NotifyCollection,
		Operation:        model.OpAdd,
		SessionID:        env.SessionID,
		Entities:         []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
		ParentCollection: col.ParentID,
		ResourceID:       col.ResourceID,
	})

	return &wire.CreateCollectionResponse{ID: col.ID}, nil
}
