package store

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
)

// ResolveItemScope resolves a Scope to a set of item ids.
func (s *Store) ResolveItemScope(ctx context.Context, tx *Tx, scope model.Scope) ([]int64, error) {
	switch scope.Kind {
	case model.ScopeUid:
		return scope.IDs, nil

	case model.ScopeRid:
		return s.resolveByPredicate(ctx, tx, func(it *model.Item) bool {
			return containsStr(scope.Rids, it.RemoteID) && matchesCollectionContext(it, scope.Context)
		})

	case model.ScopeGid:
		return s.resolveByPredicate(ctx, tx, func(it *model.Item) bool {
			return containsStr(scope.Gids, it.GID)
		})

	case model.ScopeHierarchicalRid:
		return s.resolveHierarchicalRid(ctx, tx, scope.Chain)

	default:
		return nil, fmt.Errorf("resolve item scope: unknown kind %d: %w", scope.Kind, model.ErrConstraintViolation)
	}
}

// ResolveCollectionScope resolves a Scope to a set of collection ids.
// Rid scopes match against Collection.RemoteID, falling back to Name for
// collections the owning resource has not assigned a remote id yet (the
// same fallback the startup reconciler uses when matching remote
// children to local ones).
func (s *Store) ResolveCollectionScope(ctx context.Context, tx *Tx, scope model.Scope) ([]int64, error) {
	switch scope.Kind {
	case model.ScopeUid:
		return scope.IDs, nil

	case model.ScopeRid:
		collections, err := s.ListCollections(ctx, tx)
		if err != nil {
			return nil, err
		}
		var ids []int64
		for _, c := range collections {
			if containsStr(scope.Rids, c.RemoteID) || (c.RemoteID == "" && containsStr(scope.Rids, c.Name)) {
				ids = append(ids, c.ID)
			}
		}
		return ids, nil

	case model.ScopeHierarchicalRid:
		return s.resolveCollectionChain(ctx, tx, scope.Chain)

	default:
		return nil, fmt.Errorf("resolve collection scope: unsupported kind %d: %w", scope.Kind, model.ErrConstraintViolation)
	}
}

func (s *Store) resolveCollectionChain(ctx context.Context, tx *Tx, chain []string) ([]int64, error) {
	collections, err := s.ListCollections(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("resolve collection chain: empty chain: %w", model.ErrConstraintViolation)
	}
	cur, err := walkRidChain(collections, chain)
	if err != nil {
		return nil, err
	}
	return []int64{cur}, nil
}

// walkRidChain follows a root-to-leaf chain of remote ids through the
// collection tree, matching each segment against RemoteID with Name as
// the fallback for collections that have no upstream identity yet.
func walkRidChain(collections []*model.Collection, chain []string) (int64, error) {
	var cur int64 // 0 = root
	for _, rid := range chain {
		found := false
		for _, c := range collections {
			if c.ParentID != cur {
				continue
			}
			if c.RemoteID == rid || (c.RemoteID == "" && c.Name == rid) {
				cur = c.ID
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("resolve collection chain %v: %w", chain, model.ErrNotFound)
		}
	}
	return cur, nil
}

// ResolveTagScope resolves a Scope to a set of tag ids. Rid scopes match
// against Tag.RemoteID; Gid scopes have no tag analogue and are rejected.
func (s *Store) ResolveTagScope(ctx context.Context, tx *Tx, scope model.Scope) ([]int64, error) {
	switch scope.Kind {
	case model.ScopeUid:
		return scope.IDs, nil

	case model.ScopeRid:
		tags, err := s.ListTags(ctx, tx)
		if err != nil {
			return nil, err
		}
		var ids []int64
		for _, t := range tags {
			if containsStr(scope.Rids, t.RemoteID) {
				ids = append(ids, t.ID)
			}
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("resolve tag scope: unsupported kind %d: %w", scope.Kind, model.ErrConstraintViolation)
	}
}

func (s *Store) resolveByPredicate(ctx context.Context, tx *Tx, match func(*model.Item) bool) ([]int64, error) {
	items, err := s.allItems(ctx, tx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, it := range items {
		if match(it) {
			ids = append(ids, it.ID)
		}
	}
	return ids, nil
}

// resolveHierarchicalRid walks a root-to-leaf chain of remote ids through
// the collection tree and resolves to the items directly owned by the
// collection at the end of the chain.
func (s *Store) resolveHierarchicalRid(ctx context.Context, tx *Tx, chain []string) ([]int64, error) {
	collections, err := s.ListCollections(ctx, tx)
	if err != nil {
		return nil, err
	}
	cur, err := walkRidChain(collections, chain)
	if err != nil {
		return nil, err
	}

	return s.resolveByPredicate(ctx, tx, func(it *model.Item) bool {
		return it.ParentID == cur
	})
}

func (s *Store) allItems(ctx context.Context, tx *Tx) ([]*model.Item, error) {
	var out []*model.Item
	err := s.withTx(ctx, tx, false, func(t *Tx) error {
		b := t.btx.Bucket(bucketItems)
		return b.ForEach(func(k, v []byte) error {
			var it model.Item
			if err := jsonUnmarshalInto(v, &it); err != nil {
				return err
			}
			out = append(out, &it)
			return nil
		})
	})
	return out, err
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func matchesCollectionContext(it *model.Item, ctx model.ScopeContext) bool {
	if ctx.CollectionID == 0 {
		return true
	}
	return it.ParentID == ctx.CollectionID
}
