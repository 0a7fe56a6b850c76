package store

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
)

// CreateCollection inserts c, assigning its ID, and checks the parent
// invariant: the parent must belong to the same resource, unless c is
// virtual.
func (s *Store) CreateCollection(ctx context.Context, tx *Tx, c *model.Collection) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)

		if c.ParentID != 0 && !c.Virtual {
			var parent model.Collection
			ok, err := getJSON(b, idKey(c.ParentID), &parent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("create collection: parent %d: %w", c.ParentID, model.ErrNotFound)
			}
			if parent.ResourceID != c.ResourceID {
				return fmt.Errorf("create collection: parent belongs to a different resource: %w", model.ErrConstraintViolation)
			}
		}

		id, err := nextID(b)
		if err != nil {
			return err
		}
		c.ID = id
		return putJSON(b, idKey(c.ID), c)
	})
}

// GetCollection fetches a collection by id.
func (s *Store) GetCollection(ctx context.Context, tx *Tx, id int64) (*model.Collection, error) {
	var out model.Collection
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)
		ok, err := getJSON(b, idKey(id), &out)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("get collection %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollections returns every collection. Callers needing a subtree
// should filter on ParentID/ResourceID themselves; the bucket is small
// enough in practice (one row per mailbox/folder) that a full scan is
// cheap.
func (s *Store) ListCollections(ctx context.Context, tx *Tx) ([]*model.Collection, error) {
	var out []*model.Collection
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)
		return b.ForEach(func(k, v []byte) error {
			var c model.Collection
			if err := jsonUnmarshalInto(v, &c); err != nil {
				return err
			}
			out = append(out, &c)
			return nil
		})
	})
	return out, err
}

// UpdateCollection overwrites an existing collection record. The caller
// is responsible for bumping an effective-cache-policy re-evaluation via
// the scheduler when CachePolicy changes.
func (s *Store) UpdateCollection(ctx context.Context, tx *Tx, c *model.Collection) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)
		var existing model.Collection
		ok, err := getJSON(b, idKey(c.ID), &existing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("update collection %d: %w", c.ID, model.ErrNotFound)
		}
		if c.ParentID == c.ID {
			return fmt.Errorf("update collection %d: cannot be its own parent: %w", c.ID, model.ErrConstraintViolation)
		}
		return putJSON(b, idKey(c.ID), c)
	})
}

// DeleteCollection removes a collection. Recursive cascade to child
// collections/items (or link-only removal for virtual collections) is
// orchestrated by the delete handler, which walks the tree using
// ListCollections/ListItemsByParent and calls DeleteCollection/DeleteItem
// bottom-up; the store layer only enforces the single-entity invariant.
func (s *Store) DeleteCollection(ctx context.Context, tx *Tx, id int64) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)
		if b.Get(idKey(id)) == nil {
			return fmt.Errorf("delete collection %d: %w", id, model.ErrNotFound)
		}
		return b.Delete(idKey(id))
	})
}

// EffectiveCachePolicy walks ancestors until one has Inherit == false, or
// the root is reached.
func (s *Store) EffectiveCachePolicy(ctx context.Context, tx *Tx, collectionID int64) (model.CachePolicy, error) {
	var policy model.CachePolicy
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketCollections)
		id := collectionID
		for depth := 0; depth < 128; depth++ { // cycle guard
			var c model.Collection
			ok, err := getJSON(b, idKey(id), &c)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("effective cache policy: collection %d: %w", id, model.ErrNotFound)
			}
			if !c.CachePolicy.Inherit || c.ParentID == 0 {
				policy = c.CachePolicy
				return nil
			}
			id = c.ParentID
		}
		return fmt.Errorf("effective cache policy: ancestor chain too deep for collection %d: %w", collectionID, model.ErrConstraintViolation)
	})
	return policy, err
}
