package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscCreateTag, handleCreateTag)
	registerHandler(wire.DiscFetchTags, handleFetchTags)
	registerHandler(wire.DiscModifyTag, handleModifyTag)
	registerHandler(wire.DiscDeleteTag, handleDeleteTag)
}

func handleCreateTag(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CreateTagCommand)
	if !ok {
		return nil, fmt.Errorf("handler: create tag: unexpected command type %T", cmd)
	}

	t := &model.Tag{
		GID:        c.GID,
		Type:       c.Type,
		RemoteID:   c.RemoteID,
		ParentID:   c.ParentID,
		Attributes: c.Attributes,
	}
	if err := env.Store.CreateTag(ctx, env.Tx, t); err != nil {
		return nil, fmt.Errorf("handler: create tag: %w", err)
	}

	env.Collector.Record(model.Notification{
		Type:      model.NotifyTag,
		Operation: model.OpAdd,
		SessionID: env.SessionID,
		Entities:  []model.EntityRef{{ID: t.ID, RemoteID: t.RemoteID}},
	})

	return &wire.CreateTagResponse{ID: t.ID}, nil
}

func handleFetchTags(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.FetchTagsCommand)
	if !ok {
		return nil, fmt.Errorf("handler: fetch tags: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveTagScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: fetch tags: %w", err)
	}

	for _, id := range ids {
		t, err := env.Store.GetTag(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: fetch tags: %w", err)
		}
		r := &wire.FetchTagsResponse{
			ID:         t.ID,
			GID:        t.GID,
			Type:       t.Type,
			RemoteID:   t.RemoteID,
			ParentID:   t.ParentID,
			Attributes: t.Attributes,
		}
		if err := resp.SendIntermediate(r); err != nil {
			return nil, fmt.Errorf("handler: fetch tags: send: %w", err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func handleModifyTag(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.ModifyTagCommand)
	if !ok {
		return nil, fmt.Errorf("handler: modify tag: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveTagScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: modify tag: %w", err)
	}

	for _, id := range ids {
		t, err := env.Store.GetTag(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: modify tag: %w", err)
		}

		if c.Present.Has(wire.ModifyTagParentID) {
			t.ParentID = c.ParentID
		}
		if c.Present.Has(wire.ModifyTagRemoteID) {
			t.RemoteID = c.RemoteID
		}
		if c.Present.Has(wire.ModifyTagAttributes) {
			if t.Attributes == nil {
				t.Attributes = make(map[string][]byte, len(c.Attributes))
			}
			for k, v := range c.Attributes {
				t.Attributes[k] = v
			}
		}
		if c.Present.Has(wire.ModifyTagRemovedAttributes) {
			for _, k := range c.RemovedAttributes {
				delete(t.Attributes, k)
			}
		}

		if err := env.Store.UpdateTag(ctx, env.Tx, t); err != nil {
			return nil, fmt.Errorf("handler: modify tag %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:      model.NotifyTag,
			Operation: model.OpModify,
			SessionID: env.SessionID,
			Entities:  []model.EntityRef{{ID: t.ID, RemoteID: t.RemoteID}},
		})
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// handleDeleteTag removes the scoped tag(s), detaching them from every
// item that referenced them.
func handleDeleteTag(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.DeleteTagCommand)
	if !ok {
		return nil, fmt.Errorf("handler: delete tag: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveTagScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: delete tag: %w", err)
	}

	for _, id := range ids {
		if err := detachTagFromItems(ctx, env, id); err != nil {
			return nil, fmt.Errorf("handler: delete tag %d: %w", id, err)
		}
		if err := env.Store.DeleteTag(ctx, env.Tx, id); err != nil {
			return nil, fmt.Errorf("handler: delete tag %d: %w", id, err)
		}

		env.Collector.Record(model.Notification{
			Type:      model.NotifyTag,
			Operation: model.OpRemove,
			SessionID: env.SessionID,
			Entities:  []model.EntityRef{{ID: id}},
		})
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func detachTagFromItems(ctx context.Context, env *Env, tagID int64) error {
	items, err := allItemsTagged(ctx, env, tagID)
	if err != nil {
		return err
	}
	for _, it := range items {
		it.Tags = subtractInts(it.Tags, []int64{tagID})
		it.Revision++
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return err
		}
	}
	return nil
}

func allItemsTagged(ctx context.Context, env *Env, tagID int64) ([]*model.Item, error) {
	roots, err := env.Store.ListCollections(ctx, env.Tx)
	if err != nil {
		return nil, err
	}
	var tagged []*model.Item
	for _, col := range roots {
		items, err := env.Store.ListItemsByParent(ctx, env.Tx, col.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			for _, t := range it.Tags {
				if t == tagID {
					tagged = append(tagged, it)
					break
				}
			}
		}
	}
	return tagged, nil
}
