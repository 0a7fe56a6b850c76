package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscModifyItem, handleModifyItem)
	registerHandler(wire.DiscModifyCollection, handleModifyCollection)
}

// handleModifyItem applies the fields c.Present flags onto every item in
// scope, honoring the optimistic-concurrency OldRevision check and the
// Dirty/InvalidateCache/NoResponse/SuppressNotify flags.
func handleModifyItem(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.ModifyItemCommand)
	if !ok {
		return nil, fmt.Errorf("handler: modify item: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: modify item: %w", err)
	}

	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: modify item: %w", err)
		}

		if c.OldRevision != nil && *c.OldRevision != it.Revision {
			return nil, fmt.Errorf("handler: modify item %d: %w", id, &model.ConflictError{CurrentRevision: it.Revision})
		}

		n := model.Notification{
			Type:             model.NotifyItem,
			Operation:        model.OpModify,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: it.ID, RemoteID: it.RemoteID, MimeType: it.MimeType}},
			ParentCollection: it.ParentID,
		}
		if parent, err := env.Store.GetCollection(ctx, env.Tx, it.ParentID); err == nil {
			n.ResourceID = parent.ResourceID
		}

		applyItemFields(it, c, &n)

		it.Revision++
		if c.Dirty {
			it.Dirty = true
		}
		if c.InvalidateCache {
			it.Parts = dropCachedPayloadParts(it.Parts)
		}
		if err := env.Store.UpdateItem(ctx, env.Tx, it); err != nil {
			return nil, fmt.Errorf("handler: modify item %d: %w", id, err)
		}

		if !c.SuppressNotify {
			env.Collector.Record(n)
		}
	}

	if c.NoResponse {
		return nil, nil
	}
	return &wire.TerminalResponse{OK: true}, nil
}

func applyItemFields(it *model.Item, c *wire.ModifyItemCommand, n *model.Notification) {
	if c.Present.Has(wire.ModifyItemFlags) {
		it.Flags = c.Flags
		n.Operation = model.OpModifyFlags
	}
	if c.Present.Has(wire.ModifyItemAddedFlags) {
		it.Flags = unionStrings(it.Flags, c.AddedFlags)
		n.AddedFlags = c.AddedFlags
		n.Operation = model.OpModifyFlags
	}
	if c.Present.Has(wire.ModifyItemRemovedFlags) {
		it.Flags = subtractStrings(it.Flags, c.RemovedFlags)
		n.RemovedFlags = c.RemovedFlags
		n.Operation = model.OpModifyFlags
	}

	if c.Present.Has(wire.ModifyItemTags) {
		it.Tags = c.Tags
		n.Operation = model.OpModifyTags
	}
	if c.Present.Has(wire.ModifyItemAddedTags) {
		it.Tags = unionInts(it.Tags, c.AddedTags)
		n.AddedTags = c.AddedTags
		n.Operation = model.OpModifyTags
	}
	if c.Present.Has(wire.ModifyItemRemovedTags) {
		it.Tags = subtractInts(it.Tags, c.RemovedTags)
		n.RemovedTags = c.RemovedTags
		n.Operation = model.OpModifyTags
	}

	if c.Present.Has(wire.ModifyItemRemoteID) {
		it.RemoteID = c.RemoteID
	}
	if c.Present.Has(wire.ModifyItemRemoteRevision) {
		it.RemoteRevision = c.RemoteRevision
	}
	if c.Present.Has(wire.ModifyItemGID) {
		it.GID = c.GID
	}
	if c.Present.Has(wire.ModifyItemSize) {
		it.Size = c.Size
	}
	if c.Present.Has(wire.ModifyItemParts) {
		it.Parts = mergeParts(it.Parts, c.Parts)
		n.ChangedParts = partNames(c.Parts)
	}
	if c.Present.Has(wire.ModifyItemRemovedParts) {
		it.Parts = removeParts(it.Parts, c.RemovedParts)
		n.ChangedParts = append(n.ChangedParts, c.RemovedParts...)
	}
}

// dropCachedPayloadParts removes payload parts sourced from upstream
// retrieval (Storage == StorageExternal) so the next Fetch re-requests
// them from the resource. Inline parts, including ones
// this same modify just set, are authoritative local content and are
// never dropped.
func dropCachedPayloadParts(parts []model.Part) []model.Part {
	var out []model.Part
	for _, p := range parts {
		if p.IsPayload() && p.Storage == model.StorageExternal {
			continue
		}
		out = append(out, p)
	}
	return out
}

func partNames(parts []model.Part) []string {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name
	}
	return names
}

func removeParts(parts []model.Part, names []string) []model.Part {
	var out []model.Part
	for _, p := range parts {
		if !containsName(names, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

func subtractStrings(a, b []string) []string {
	drop := make(map[string]bool, len(b))
	for _, s := range b {
		drop[s] = true
	}
	var out []string
	for _, s := range a {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}

func unionInts(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a))
	out := append([]int64(nil), a...)
	for _, v := range out {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

func subtractInts(a, b []int64) []int64 {
	drop := make(map[int64]bool, len(b))
	for _, v := range b {
		drop[v] = true
	}
	var out []int64
	for _, v := range a {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

// handleModifyCollection applies the fields c.Present flags onto every
// collection in scope, rescheduling the sync scheduler when CachePolicy
// changes.
func handleModifyCollection(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.ModifyCollectionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: modify collection: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveCollectionScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: modify collection: %w", err)
	}

	for _, id := range ids {
		col, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: modify collection: %w", err)
		}

		policyChanged := false
		if c.Present.Has(wire.ModifyCollectionName) {
			col.Name = c.Name
		}
		if c.Present.Has(wire.ModifyCollectionParentID) {
			col.ParentID = c.ParentID
		}
		if c.Present.Has(wire.ModifyCollectionMimeTypes) {
			col.MimeTypes = c.MimeTypes
		}
		if c.Present.Has(wire.ModifyCollectionCachePolicy) {
			col.CachePolicy = c.CachePolicy
			policyChanged = true
		}
		if c.Present.Has(wire.ModifyCollectionPersistentSearch) {
			col.Search = &c.Search
		}
		if c.Present.Has(wire.ModifyCollectionAttributes) {
			if col.Attributes == nil {
				col.Attributes = make(map[string][]byte, len(c.Attributes))
			}
			for k, v := range c.Attributes {
				col.Attributes[k] = v
			}
		}
		if c.Present.Has(wire.ModifyCollectionRemovedAttributes) {
			for _, k := range c.RemovedAttributes {
				delete(col.Attributes, k)
			}
		}
		if c.Present.Has(wire.ModifyCollectionPreferences) {
			col.Enabled = c.Enabled
			col.SyncPref = c.SyncPref
			col.DisplayPref = c.DisplayPref
			col.IndexPref = c.IndexPref
			policyChanged = true
		}
		if c.Present.Has(wire.ModifyCollectionReferenced) {
			col.Referenced = c.Referenced
		}
		if c.Present.Has(wire.ModifyCollectionRemoteID) {
			col.RemoteID = c.RemoteID
		}
		if c.Present.Has(wire.ModifyCollectionRemoteRevision) {
			col.RemoteRevision = c.RemoteRevision
		}

		if err := env.Store.UpdateCollection(ctx, env.Tx, col); err != nil {
			return nil, fmt.Errorf("handler: modify collection %d: %w", id, err)
		}

		if policyChanged && env.Scheduler != nil {
			if col.EffectiveSyncPref() {
				policy, err := env.Store.EffectiveCachePolicy(ctx, env.Tx, col.ID)
				if err == nil {
					env.Scheduler.Schedule(col.ID, schedulerInterval(policy))
				}
			} else {
				env.Scheduler.Cancel(col.ID)
			}
		}

		env.Collector.Record(model.Notification{
			Type:             model.NotifyCollection,
			Operation:        model.OpModify,
			SessionID:        env.SessionID,
			Entities:         []model.EntityRef{{ID: col.ID, MimeType: "collection"}},
			ParentCollection: col.ParentID,
			ResourceID:       col.ResourceID,
		})
	}

	return &wire.TerminalResponse{OK: true}, nil
}
