package handler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscFetchItems, handleFetchItems)
	registerHandler(wire.DiscFetchCollections, handleFetchCollections)
}

// handleFetchItems resolves the scoped items, streams one
// FetchItemsResponse per match (descending id order), dispatching to
// internal/retrieval for parts the store doesn't already cache, then
// batches the atime bump for every item whose response carried payload
// bytes.
func handleFetchItems(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.FetchItemsCommand)
	if !ok {
		return nil, fmt.Errorf("handler: fetch items: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveItemScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: fetch items: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var touched []int64
	for _, id := range ids {
		it, err := env.Store.GetItem(ctx, env.Tx, id)
		if err != nil {
			if c.FetchScope.IgnoreErrors {
				continue
			}
			return nil, fmt.Errorf("handler: fetch items: %w", err)
		}

		if c.FetchScope.ChangedSince != nil && it.Mtime.UnixNano() < *c.FetchScope.ChangedSince {
			continue
		}

		gotPayload, err := fillItemParts(ctx, env, it, c.FetchScope)
		if err != nil {
			if c.FetchScope.IgnoreErrors {
				continue
			}
			return nil, fmt.Errorf("handler: fetch items: %w", err)
		}
		if gotPayload {
			touched = append(touched, it.ID)
		}

		r := &wire.FetchItemsResponse{
			ID:             it.ID,
			ParentID:       it.ParentID,
			MimeType:       it.MimeType,
			RemoteID:       it.RemoteID,
			RemoteRevision: it.RemoteRevision,
			GID:            it.GID,
			Size:           it.Size,
			MtimeUnixNano:  it.Mtime.UnixNano(),
			AtimeUnixNano:  it.Atime.UnixNano(),
			Revision:       it.Revision,
			Flags:          it.Flags,
			Tags:           it.Tags,
		}
		if c.FetchScope.CheckCachedPayloadPartsOnly {
			r.CachedPartNames = cachedPartNames(it, c.FetchScope.Parts)
		} else {
			parts, err := env.Store.HydrateParts(selectParts(it, c.FetchScope.Parts))
			if err != nil {
				if c.FetchScope.IgnoreErrors {
					continue
				}
				return nil, fmt.Errorf("handler: fetch items: hydrate parts: %w", err)
			}
			r.Parts = parts
		}
		if c.FetchScope.AncestorDepth != model.AncestorNone {
			chain, err := ancestorChain(ctx, env, it.ParentID, c.FetchScope.AncestorDepth)
			if err != nil {
				return nil, fmt.Errorf("handler: fetch items: ancestors: %w", err)
			}
			r.AncestorIDs = chain
		}

		if err := resp.SendIntermediate(r); err != nil {
			return nil, fmt.Errorf("handler: fetch items: send: %w", err)
		}

		// A TagFetchScope asking for full records gets one
		// FetchTagsResponse per tag, streamed right after the item it
		// belongs to, so the client needs no second round-trip.
		if c.FetchScope.TagScope.FullTags {
			for _, tagID := range it.Tags {
				t, err := env.Store.GetTag(ctx, env.Tx, tagID)
				if err != nil {
					continue
				}
				tr := &wire.FetchTagsResponse{
					ID:         t.ID,
					GID:        t.GID,
					Type:       t.Type,
					RemoteID:   t.RemoteID,
					ParentID:   t.ParentID,
					Attributes: t.Attributes,
				}
				if err := resp.SendIntermediate(tr); err != nil {
					return nil, fmt.Errorf("handler: fetch items: send tag: %w", err)
				}
			}
		}
	}

	now := time.Now()
	for _, id := range touched {
		if err := env.Store.BumpAtime(ctx, env.Tx, id, now); err != nil {
			return nil, fmt.Errorf("handler: fetch items: bump atime: %w", err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}

// fillItemParts retrieves any requested parts missing from it's cache
// through env.Retrieval, merging them into the store. A CacheOnly fetch
// normally skips retrieval and returns whatever is already cached, with
// one override: a trusted indexer session, or a resource with its own
// local storage, still triggers retrieval even when CacheOnly is set,
// since neither case reaches across the network the way retrieval from
// a purely remote resource would. It reports whether the response for
// it will carry payload bytes, which gates the batched atime bump.
func fillItemParts(ctx context.Context, env *Env, it *model.Item, fs model.FetchScope) (bool, error) {
	wanted := fs.Parts
	havePayload := false
	for _, p := range it.Parts {
		if p.IsPayload() && !partUncached(p) {
			havePayload = true
		}
	}

	if fs.CheckCachedPayloadPartsOnly {
		return havePayload && (len(wanted) == 0 || len(selectParts(it, wanted)) > 0), nil
	}

	missing := missingParts(it, wanted, fs.FullPayload)
	if env.Retrieval != nil && env.Retrieval.VerifyCache() {
		// Cache verification: even cached bytes go back to the resource,
		// which may replace them with a newer part version.
		missing = unionStrings(missing, cachedPayloadNames(it, wanted))
	}
	if len(missing) == 0 {
		return havePayload, nil
	}

	parent, err := env.Store.GetCollection(ctx, env.Tx, it.ParentID)
	if err != nil {
		return false, fmt.Errorf("fetch parent: %w", err)
	}
	resource, err := env.Store.GetResource(ctx, env.Tx, parent.ResourceID)
	if err != nil {
		return false, fmt.Errorf("fetch resource: %w", err)
	}

	if fs.CacheOnly && !fs.Trusted && !resource.HasLocalStorage {
		return havePayload && (len(wanted) == 0 || len(selectParts(it, wanted)) > 0), nil
	}

	if env.Retrieval == nil {
		return havePayload, nil
	}
	fetched, err := env.Retrieval.RetrieveItems(ctx, resource.Name, it.ID, it.RemoteID, missing)
	if err != nil {
		return false, err
	}
	if len(fetched) == 0 {
		return havePayload, nil
	}
	if err := env.Store.StoreCachedParts(ctx, env.Tx, it.ID, fetched); err != nil {
		return false, fmt.Errorf("store cached parts: %w", err)
	}
	it.Parts = mergeParts(it.Parts, fetched)
	for _, p := range fetched {
		if p.IsPayload() {
			havePayload = true
		}
	}
	return havePayload, nil
}

// missingParts returns the subset of wanted (or, when wanted is empty
// and fullPayload is set, every payload part name already on it) that
// it does not currently cache. An external part that references a local
// payload file counts as cached; one with neither bytes nor a file is a
// placeholder still awaiting retrieval from its resource.
func missingParts(it *model.Item, wanted []string, fullPayload bool) []string {
	if len(wanted) == 0 {
		if !fullPayload {
			return nil
		}
		var missing []string
		havePayload := false
		for _, p := range it.Parts {
			if !p.IsPayload() {
				continue
			}
			if partUncached(p) {
				missing = append(missing, p.Name)
			} else {
				havePayload = true
			}
		}
		// An item with no payload part at all still has one upstream;
		// ask for the canonical full-payload part.
		if !havePayload && len(missing) == 0 {
			missing = append(missing, model.PartPayloadFull)
		}
		return missing
	}
	var missing []string
	for _, name := range wanted {
		p, ok := it.Part(name)
		if !ok || partUncached(p) {
			missing = append(missing, name)
		}
	}
	return missing
}

func partUncached(p model.Part) bool {
	return p.Storage == model.StorageExternal && len(p.Data) == 0 && p.ExternalFile == ""
}

// cachedPayloadNames lists the cached payload parts a verify pass should
// re-request, restricted to wanted when non-empty.
func cachedPayloadNames(it *model.Item, wanted []string) []string {
	var names []string
	for _, p := range it.Parts {
		if !p.IsPayload() || partUncached(p) {
			continue
		}
		if len(wanted) > 0 && !containsName(wanted, p.Name) {
			continue
		}
		names = append(names, p.Name)
	}
	return names
}

func selectParts(it *model.Item, wanted []string) []model.Part {
	if len(wanted) == 0 {
		return it.Parts
	}
	var out []model.Part
	for _, name := range wanted {
		if p, ok := it.Part(name); ok {
			out = append(out, p)
		}
	}
	return out
}

func cachedPartNames(it *model.Item, wanted []string) []string {
	var names []string
	for _, p := range it.Parts {
		if len(wanted) > 0 && !containsName(wanted, p.Name) {
			continue
		}
		if !partUncached(p) {
			names = append(names, p.Name)
		}
	}
	return names
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func mergeParts(existing, fresh []model.Part) []model.Part {
	out := append([]model.Part(nil), existing...)
	for _, p := range fresh {
		replaced := false
		for i, e := range out {
			if e.Name == p.Name {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// ancestorChain walks parent ids nearest-first, stopping at the root or
// at AncestorParent depth.
func ancestorChain(ctx context.Context, env *Env, parentID int64, depth model.AncestorDepth) ([]int64, error) {
	var chain []int64
	id := parentID
	for id != 0 {
		chain = append(chain, id)
		if depth == model.AncestorParent {
			break
		}
		c, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, err
		}
		id = c.ParentID
	}
	return chain, nil
}

// handleFetchCollections resolves the scoped collections and streams one
// FetchCollectionsResponse per match.
func handleFetchCollections(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.FetchCollectionsCommand)
	if !ok {
		return nil, fmt.Errorf("handler: fetch collections: unexpected command type %T", cmd)
	}

	ids, err := env.Store.ResolveCollectionScope(ctx, env.Tx, c.Scope)
	if err != nil {
		return nil, fmt.Errorf("handler: fetch collections: %w", err)
	}

	for _, id := range ids {
		col, err := env.Store.GetCollection(ctx, env.Tx, id)
		if err != nil {
			return nil, fmt.Errorf("handler: fetch collections: %w", err)
		}
		r := &wire.FetchCollectionsResponse{
			ID:             col.ID,
			ParentID:       col.ParentID,
			Name:           col.Name,
			MimeTypes:      col.MimeTypes,
			ResourceID:     col.ResourceID,
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
		if err := resp.SendIntermediate(r); err != nil {
			return nil, fmt.Errorf("handler: fetch collections: send: %w", err)
		}
	}

	return &wire.TerminalResponse{OK: true}, nil
}
