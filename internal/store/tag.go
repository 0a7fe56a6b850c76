package store

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
)

// CreateTag inserts t, assigning its ID.
func (s *Store) CreateTag(ctx context.Context, tx *Tx, t *model.Tag) error {
	return s.withTx(ctx, tx, true, func(tr *Tx) error {
		b := tr.btx.Bucket(bucketTags)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		t.ID = id
		return putJSON(b, idKey(t.ID), t)
	})
}

// GetTag fetches a tag by id.
func (s *Store) GetTag(ctx context.Context, tx *Tx, id int64) (*model.Tag, error) {
	var out model.Tag
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketTags)
		ok, err := getJSON(b, idKey(id), &out)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("get tag %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTags returns every tag.
func (s *Store) ListTags(ctx context.Context, tx *Tx) ([]*model.Tag, error) {
	var out []*model.Tag
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketTags)
		return b.ForEach(func(k, v []byte) error {
			var tag model.Tag
			if err := jsonUnmarshalInto(v, &tag); err != nil {
				return err
			}
			out = append(out, &tag)
			return nil
		})
	})
	return out, err
}

// UpdateTag overwrites an existing tag record in place, preserving its id.
func (s *Store) UpdateTag(ctx context.Context, tx *Tx, t *model.Tag) error {
	return s.withTx(ctx, tx, true, func(tr *Tx) error {
		b := tr.btx.Bucket(bucketTags)
		if b.Get(idKey(t.ID)) == nil {
			return fmt.Errorf("update tag %d: %w", t.ID, model.ErrNotFound)
		}
		return putJSON(b, idKey(t.ID), t)
	})
}

// DeleteTag removes a tag record. Detaching it from items that reference
// it is the handler's responsibility (it rewrites each affected item's
// Tags slice via UpdateItem).
func (s *Store) DeleteTag(ctx context.Context, tx *Tx, id int64) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketTags)
		if b.Get(idKey(id)) == nil {
			return fmt.Errorf("delete tag %d: %w", id, model.ErrNotFound)
		}
		return b.Delete(idKey(id))
	})
}
