package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/itemstored/internal/model"
)

// CreateItem inserts an item under its (non-virtual) parent collection,
// assigning its ID. Size is derived from the authoritative payload part
// when one is present.
func (s *Store) CreateItem(ctx context.Context, tx *Tx, it *model.Item) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		cb := t.btx.Bucket(bucketCollections)
		var parent model.Collection
		ok, err := getJSON(cb, idKey(it.ParentID), &parent)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("create item: parent collection %d: %w", it.ParentID, model.ErrNotFound)
		}
		if parent.Virtual {
			return fmt.Errorf("create item: parent %d is virtual: %w", it.ParentID, model.ErrConstraintViolation)
		}

		b := t.btx.Bucket(bucketItems)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		it.ID = id
		it.Revision = 0
		it.Mtime = now()
		if err := s.spillParts(t, it); err != nil {
			return err
		}
		syncSize(it)
		return putJSON(b, idKey(it.ID), it)
	})
}

// GetItem fetches an item by id.
func (s *Store) GetItem(ctx context.Context, tx *Tx, id int64) (*model.Item, error) {
	var out model.Item
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		ok, err := getJSON(b, idKey(id), &out)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("get item %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListItemsByParent returns every item directly owned by parentID.
func (s *Store) ListItemsByParent(ctx context.Context, tx *Tx, parentID int64) ([]*model.Item, error) {
	var out []*model.Item
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		return b.ForEach(func(k, v []byte) error {
			var it model.Item
			if err := jsonUnmarshalInto(v, &it); err != nil {
				return err
			}
			if it.ParentID == parentID {
				out = append(out, &it)
			}
			return nil
		})
	})
	return out, err
}

// UpdateItem persists it, enforcing the monotonic-revision invariant:
// callers must have set it.Revision = previousRevision+1 (handlers check
// oldRevision against the stored value before calling UpdateItem when
// optimistic concurrency was requested; see internal/handler/modify.go).
func (s *Store) UpdateItem(ctx context.Context, tx *Tx, it *model.Item) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		var existing model.Item
		ok, err := getJSON(b, idKey(it.ID), &existing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("update item %d: %w", it.ID, model.ErrNotFound)
		}
		if it.Revision != existing.Revision+1 {
			return fmt.Errorf("update item %d: %w", it.ID, &model.ConflictError{CurrentRevision: existing.Revision})
		}
		it.Mtime = now()
		if err := s.spillParts(t, it); err != nil {
			return err
		}
		syncSize(it)
		return putJSON(b, idKey(it.ID), it)
	})
}

// BumpAtime updates an item's last-payload-access time without touching
// its revision. Callers batch it: internal/handler/fetch.go collects
// ids and calls this once per id after assembling the response, only
// for fetches that actually returned payload bytes.
func (s *Store) BumpAtime(ctx context.Context, tx *Tx, id int64, at time.Time) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		var it model.Item
		ok, err := getJSON(b, idKey(id), &it)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bump atime %d: %w", id, model.ErrNotFound)
		}
		it.Atime = at
		return putJSON(b, idKey(id), &it)
	})
}

// StoreCachedParts merges freshly retrieved parts into an item's cache
// without bumping Revision: a retrieval is a local cache fill, not a
// user-visible modification.
func (s *Store) StoreCachedParts(ctx context.Context, tx *Tx, id int64, parts []model.Part) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		var it model.Item
		ok, err := getJSON(b, idKey(id), &it)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("store cached parts %d: %w", id, model.ErrNotFound)
		}
		for _, p := range parts {
			replaced := false
			for i, existing := range it.Parts {
				if existing.Name == p.Name {
					it.Parts[i] = p
					replaced = true
					break
				}
			}
			if !replaced {
				it.Parts = append(it.Parts, p)
			}
		}
		if err := s.spillParts(t, &it); err != nil {
			return err
		}
		syncSize(&it)
		return putJSON(b, idKey(id), &it)
	})
}

// UnlinkAllFromCollection drops collectionID from every item's virtual
// parent list, used when a virtual collection is deleted so items don't
// keep dangling links. Each unlinked item's revision is bumped since its
// persisted state changed.
func (s *Store) UnlinkAllFromCollection(ctx context.Context, tx *Tx, collectionID int64) ([]int64, error) {
	var unlinked []int64
	err := s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		// Collect first: bbolt forbids writes to a bucket mid-ForEach.
		var changed []*model.Item
		if err := b.ForEach(func(k, v []byte) error {
			var it model.Item
			if err := jsonUnmarshalInto(v, &it); err != nil {
				return err
			}
			kept := it.VirtualParentIDs[:0]
			found := false
			for _, id := range it.VirtualParentIDs {
				if id == collectionID {
					found = true
					continue
				}
				kept = append(kept, id)
			}
			if !found {
				return nil
			}
			it.VirtualParentIDs = kept
			changed = append(changed, &it)
			return nil
		}); err != nil {
			return err
		}
		for _, it := range changed {
			it.Revision++
			it.Mtime = now()
			if err := putJSON(b, idKey(it.ID), it); err != nil {
				return err
			}
			unlinked = append(unlinked, it.ID)
		}
		return nil
	})
	return unlinked, err
}

// DeleteItem removes an item outright, along with any external payload
// files its parts reference.
func (s *Store) DeleteItem(ctx context.Context, tx *Tx, id int64) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		var it model.Item
		ok, err := getJSON(b, idKey(id), &it)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("delete item %d: %w", id, model.ErrNotFound)
		}
		s.removePartFiles(&it)
		return b.Delete(idKey(id))
	})
}

func syncSize(it *model.Item) {
	for _, p := range it.Parts {
		if p.IsPayload() {
			if p.Storage == model.StorageInline {
				it.Size = int64(len(p.Data))
			} else {
				it.Size = p.Size
			}
			return
		}
	}
}

// now is a var so tests can stub it; production code never needs to.
var now = time.Now
