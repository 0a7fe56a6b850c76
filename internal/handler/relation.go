package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscCreateRelation, handleCreateRelation)
	registerHandler(wire.DiscFetchRelations, handleFetchRelations)
	registerHandler(wire.DiscDeleteRelation, handleDeleteRelation)
}

func handleCreateRelation(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CreateRelationCommand)
	if !ok {
		return nil, fmt.Errorf("handler: create relation: unexpected command type %T", cmd)
	}

	r := &model.Relation{LeftID: c.LeftID, RightID: c.RightID, Type: c.Type, RemoteID: c.RemoteID}
	if err := env.Store.CreateRelation(ctx, env.Tx, r); err != nil {
		return nil, fmt.Errorf("handler: create relation: %w", err)
	}

	env.Collector.Record(model.Notification{
		Type:      model.NotifyRelation,
		Operation: model.OpAdd,
		SessionID: env.SessionID,
		Entities: []model.EntityRef{
			{ID: r.LeftID, RemoteID: r.RemoteID},
			{ID: r.RightID, RemoteID: r.RemoteID},
		},
	})

	return &wire.TerminalResponse{OK: true}, nil
}

func handleFetchRelations(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.FetchRelationsCommand)
	if !ok {
		return nil, fmt.Errorf("handler: fetch relations: unexpected command type %T", cmd)
	}

	relations, err := env.Store.ListRelationsForItem(ctx, env.Tx, c.ItemID)
	if err != nil {
		return nil, fmt.Errorf("handler: fetch relations: %w", err)
	}

	for _, r := range relations {
		if c.Type != "" && r.Type != c.Type {
			continue
		}
		resp2 := &wire.FetchRelationsResponse{LeftID: r.LeftID, RightID: r.RightID, Type: r.Type, RemoteID: r.RemoteID}
		if err := resp.SendIntermediate(resp2); err != nil {
			return nil, fmt.Errorf("handler: fetch relations: send: %w", err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

func handleDeleteRelation(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.DeleteRelationCommand)
	if !ok {
		return nil, fmt.Errorf("handler: delete relation: unexpected command type %T", cmd)
	}

	r := model.Relation{LeftID: c.LeftID, RightID: c.RightID, Type: c.Type}
	if err := env.Store.DeleteRelation(ctx, env.Tx, r); err != nil {
		return nil, fmt.Errorf("handler: delete relation: %w", err)
	}

	env.Collector.Record(model.Notification{
		Type:      model.NotifyRelation,
		Operation: model.OpRemove,
		SessionID: env.SessionID,
		Entities: []model.EntityRef{
			{ID: c.LeftID},
			{ID: c.RightID},
		},
	})

	return &wire.TerminalResponse{OK: true}, nil
}
