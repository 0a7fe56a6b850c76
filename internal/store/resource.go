package store

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
)

// CreateResource inserts a resource record, assigning its ID.
func (s *Store) CreateResource(ctx context.Context, tx *Tx, r *model.Resource) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketResources)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		r.ID = id
		return putJSON(b, idKey(r.ID), r)
	})
}

// GetResource fetches a resource by id.
func (s *Store) GetResource(ctx context.Context, tx *Tx, id int64) (*model.Resource, error) {
	var out model.Resource
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketResources)
		ok, err := getJSON(b, idKey(id), &out)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("get resource %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResourceByName fetches a resource by its unique name.
func (s *Store) GetResourceByName(ctx context.Context, tx *Tx, name string) (*model.Resource, error) {
	var out *model.Resource
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketResources)
		return b.ForEach(func(k, v []byte) error {
			var r model.Resource
			if err := jsonUnmarshalInto(v, &r); err != nil {
				return err
			}
			if r.Name == name {
				out = &r
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("get resource %q: %w", name, model.ErrNotFound)
	}
	return out, nil
}

// ListResources returns every registered resource.
func (s *Store) ListResources(ctx context.Context, tx *Tx) ([]*model.Resource, error) {
	var out []*model.Resource
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketResources)
		return b.ForEach(func(k, v []byte) error {
			var r model.Resource
			if err := jsonUnmarshalInto(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	return out, err
}

// SettingsGet/SettingsPut implement the legacy key/value settings store
// the change-recorder migration reads from: a plain key/value bucket that
// also holds the gateway CA's persisted state.
func (s *Store) SettingsGet(ctx context.Context, tx *Tx, key string) ([]byte, error) {
	var data []byte
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketSettings)
		v := b.Get([]byte(key))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

func (s *Store) SettingsPut(ctx context.Context, tx *Tx, key string, value []byte) error {
	return s.withTx(ctx, tx, true, func(t *Tx) error {
		b := t.btx.Bucket(bucketSettings)
		return b.Put([]byte(key), value)
	})
}
