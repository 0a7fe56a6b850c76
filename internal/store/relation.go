package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
)

func relationKey(r model.Relation) []byte {
	l, rr, t := r.Key()
	return []byte(fmt.Sprintf("%d:%d:%s", l, rr, t))
}

// CreateRelation inserts r, enforcing the (left, right, type) uniqueness
// invariant.
func (s *Store) CreateRelation(ctx context.Context, tx *Tx, r *model.Relation) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketRelations)
		key := relationKey(*r)
		if b.Get(key) != nil {
			return fmt.Errorf("create relation: %w", model.ErrConstraintViolation)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// ListRelationsForItem returns every relation where id is either side.
func (s *Store) ListRelationsForItem(ctx context.Context, tx *Tx, id int64) ([]*model.Relation, error) {
	var out []*model.Relation
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketRelations)
		return b.ForEach(func(k, v []byte) error {
			var r model.Relation
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.LeftID == id || r.RightID == id {
				out = append(out, &r)
			}
			return nil
		})
	})
	return out, err
}

// DeleteRelation removes a relation matching r's (left, right, type) key.
func (s *Store) DeleteRelation(ctx context.Context, tx *Tx, r model.Relation) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketRelations)
		key := relationKey(r)
		if b.Get(key) == nil {
			return fmt.Errorf("delete relation: %w", model.ErrNotFound)
		}
		return b.Delete(key)
	})
}
