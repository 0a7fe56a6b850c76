package main

import (
	"context"
	"time"

	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/retrieval"
	"github.com/cuemby/itemstored/internal/scheduler"
	"github.com/cuemby/itemstored/internal/store"
)

// seedScheduler scans every collection at startup and inserts the
// eligible ones into sched. Eligibility mirrors handler.create/modify's own
// check: the effective sync preference, resolved against the Enabled
// flag, must be true.
func seedScheduler(ctx context.Context, st *store.Store, sched *scheduler.Scheduler, minInterval time.Duration) error {
	cols, err := st.ListCollections(ctx, nil)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if !col.EffectiveSyncPref() {
			continue
		}
		policy, err := st.EffectiveCachePolicy(ctx, nil, col.ID)
		if err != nil {
			log.Errorf("itemstored: resolve cache policy for collection", err)
			continue
		}
		interval := minInterval
		if policy.CheckInterval > minInterval {
			interval = policy.CheckInterval
		}
		sched.Schedule(col.ID, interval)
	}
	return nil
}

// syncer is the scheduler.FireFunc glue: for each due collection it
// pulls a fresh child listing from the owning resource through the
// retrieval coordinator and reconciles it against the store, then tells
// the scheduler when to check again.
type syncer struct {
	store       *store.Store
	retrieval   *retrieval.Coordinator
	bus         *notify.Bus
	minInterval time.Duration
}

// fire implements scheduler.FireFunc. A failed recheck still reschedules
// at the configured minimum rather than giving up on the collection.
func (s *syncer) fire(collectionID int64) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), s.minInterval)
	defer cancel()

	interval, err := s.reconcile(ctx, collectionID)
	if err != nil {
		collLogger := log.WithCollectionID(collectionID)
		collLogger.Error().Err(err).Msg("syncer: reconcile collection")
		return s.minInterval
	}
	return interval
}

func (s *syncer) reconcile(ctx context.Context, collectionID int64) (time.Duration, error) {
	col, err := s.store.GetCollection(ctx, nil, collectionID)
	if err != nil {
		return s.minInterval, err
	}

	resource, err := s.store.GetResource(ctx, nil, col.ResourceID)
	if err != nil {
		return s.minInterval, err
	}

	remote, err := s.retrieval.RetrieveCollections(ctx, resource.Name, col.ID)
	if err != nil {
		resLogger := log.WithResourceID(resource.ID)
		resLogger.Warn().Err(err).Msg("syncer: retrieve collections")
		return s.minInterval, err
	}

	if err := s.reconcileChildren(ctx, col, remote); err != nil {
		return s.minInterval, err
	}

	policy, err := s.store.EffectiveCachePolicy(ctx, nil, col.ID)
	if err != nil {
		return s.minInterval, err
	}
	if policy.CheckInterval > s.minInterval {
		return policy.CheckInterval, nil
	}
	return s.minInterval, nil
}

// reconcileChildren upserts remote's children under parent: a child is
// matched to its local counterpart by RemoteID when the resource
// assigns one, falling back to Name for resources that don't. A child
// not already present locally is created, one already present has its
// mime types, enabled flag, and remote revision refreshed.
func (s *syncer) reconcileChildren(ctx context.Context, parent *model.Collection, remote []model.Collection) error {
	existing, err := s.store.ListCollections(ctx, nil)
	if err != nil {
		return err
	}
	byRemoteID := make(map[string]*model.Collection, len(existing))
	byName := make(map[string]*model.Collection, len(existing))
	for _, c := range existing {
		if c.ParentID != parent.ID {
			continue
		}
		if c.RemoteID != "" {
			byRemoteID[c.RemoteID] = c
		}
		byName[c.Name] = c
	}

	var batch []model.Notification
	for _, rc := range remote {
		local, ok := byRemoteID[rc.RemoteID]
		if !ok && rc.RemoteID == "" {
			local, ok = byName[rc.Name]
		}
		if ok {
			if collectionUnchanged(local, &rc) {
				continue
			}
			local.MimeTypes = rc.MimeTypes
			local.Enabled = rc.Enabled
			local.RemoteRevision = rc.RemoteRevision
			if err := s.store.UpdateCollection(ctx, nil, local); err != nil {
				return err
			}
			batch = append(batch, model.Notification{
				Type:             model.NotifyCollection,
				Operation:        model.OpModify,
				Entities:         []model.EntityRef{{ID: local.ID, MimeType: "collection"}},
				ParentCollection: parent.ID,
				ResourceID:       parent.ResourceID,
			})
			continue
		}

		created := &model.Collection{
			ParentID:       parent.ID,
			Name:           rc.Name,
			MimeTypes:      rc.MimeTypes,
			ResourceID:     parent.ResourceID,
			Enabled:        rc.Enabled,
			RemoteID:       rc.RemoteID,
			RemoteRevision: rc.RemoteRevision,
		}
		if err := s.store.CreateCollection(ctx, nil, created); err != nil {
			return err
		}
		batch = append(batch, model.Notification{
			Type:             model.NotifyCollection,
			Operation:        model.OpAdd,
			Entities:         []model.EntityRef{{ID: created.ID, MimeType: "collection"}},
			ParentCollection: parent.ID,
			ResourceID:       parent.ResourceID,
		})
	}

	if len(batch) > 0 {
		s.bus.Publish(batch)
	}
	return nil
}

func collectionUnchanged(local, remote *model.Collection) bool {
	if local.Enabled != remote.Enabled {
		return false
	}
	if local.RemoteRevision != remote.RemoteRevision {
		return false
	}
	if len(local.MimeTypes) != len(remote.MimeTypes) {
		return false
	}
	for i := range local.MimeTypes {
		if local.MimeTypes[i] != remote.MimeTypes[i] {
			return false
		}
	}
	return true
}
