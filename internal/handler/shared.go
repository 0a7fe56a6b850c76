package handler

import (
	"time"

	"github.com/cuemby/itemstored/internal/model"
)

// DefaultSchedulerMinimum is the minimum recheck interval handlers apply
// when scheduling a collection. It is a fixed value equal to config's
// default SchedulerMinInterval and does not follow a configured override.
const DefaultSchedulerMinimum = 5 * time.Minute

// schedulerInterval resolves a collection's effective cache policy to
// the interval the scheduler should wait before its next recheck.
func schedulerInterval(policy model.CachePolicy) time.Duration {
	if policy.CheckInterval > DefaultSchedulerMinimum {
		return policy.CheckInterval
	}
	return DefaultSchedulerMinimum
}

// recordStatisticsChanged emits one statistics-changed collection
// notification per distinct collection whose effective item count the
// current command touched, so monitors of those collections can refresh
// their counts without a fetch. Zero ids are skipped.
func recordStatisticsChanged(env *Env, collectionIDs ...int64) {
	seen := make(map[int64]bool, len(collectionIDs))
	for _, id := range collectionIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		env.Collector.Record(model.Notification{
			Type:      model.NotifyCollection,
			Operation: model.OpStatisticsChanged,
			SessionID: env.SessionID,
			Entities:  []model.EntityRef{{ID: id, MimeType: "collection"}},
		})
	}
}
