package notify

import "github.com/cuemby/itemstored/internal/model"

// Collector accumulates notifications produced while a single command or
// transaction runs, then compresses them into the smallest equivalent
// batch before they reach the Bus.
//
// A Collector is not safe for concurrent use; each connection owns one for
// the duration of a command.
type Collector struct {
	pending []model.Notification
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends n to the pending batch.
func (c *Collector) Record(n model.Notification) {
	c.pending = append(c.pending, n)
}

// Len reports how many notifications are pending.
func (c *Collector) Len() int {
	return len(c.pending)
}

// Drain returns the compressed batch and resets the collector.
func (c *Collector) Drain() []model.Notification {
	compressed := Compress(c.pending)
	c.pending = nil
	return compressed
}

// entityKey identifies the (type, entity id) pair compression merges on.
type entityKey struct {
	typ model.NotificationType
	id  int64
}

func keyOf(n model.Notification) (entityKey, bool) {
	// Only collection notifications are eligible for merging; item,
	// tag, relation, subscription, and debug notifications pass through
	// unchanged.
	if n.Type != model.NotifyCollection {
		return entityKey{}, false
	}
	if len(n.Entities) != 1 {
		return entityKey{}, false
	}
	return entityKey{typ: n.Type, id: n.Entities[0].ID}, true
}

// Compress applies the batch merge rules:
//
//	[Modify(c,{P1}), Modify(c,{P2})] -> [Modify(c,{P1,P2})]
//	[Add(c), Modify(c,{P})]          -> [Add(c)]
//
// to consecutive collection notifications against the same collection:
// Modify-family notifications merge their changed-parts/flags/tags deltas,
// and an Add absorbs any Modify that follows it for the same collection
// within the batch. Item notifications, and notifications with more than
// one entity or with no matching predecessor, pass through unchanged.
// Order is preserved.
func Compress(in []model.Notification) []model.Notification {
	if len(in) < 2 {
		out := make([]model.Notification, len(in))
		copy(out, in)
		return out
	}

	out := make([]model.Notification, 0, len(in))
	// last index in out for each entity key seen so far
	lastIdx := make(map[entityKey]int)

	for _, n := range in {
		key, mergeable := keyOf(n)
		if !mergeable {
			out = append(out, n)
			continue
		}

		if idx, ok := lastIdx[key]; ok {
			prev := &out[idx]
			if merged, ok := merge(*prev, n); ok {
				*prev = merged
				continue
			}
		}

		out = append(out, n)
		lastIdx[key] = len(out) - 1
	}

	return out
}

// merge folds n into prev when both describe the same entity and the pair
// is one of the mergeable shapes; it reports false when they must stay
// separate. A Remove never merges with anything before it: a subscriber
// may have already been told about the Add or Modify, so both events are
// delivered as recorded.
func merge(prev, n model.Notification) (model.Notification, bool) {
	switch {
	case prev.Operation == model.OpStatisticsChanged && n.Operation == model.OpStatisticsChanged:
		// Two count changes on the same collection within one batch say
		// the same thing once delivered.
		return prev, true

	case isModifyLike(prev.Operation) && isModifyLike(n.Operation):
		prev.ChangedParts = mergeStrings(prev.ChangedParts, n.ChangedParts)
		prev.AddedFlags = mergeStrings(prev.AddedFlags, n.AddedFlags)
		prev.RemovedFlags = mergeStrings(prev.RemovedFlags, n.RemovedFlags)
		prev.AddedTags = mergeInts(prev.AddedTags, n.AddedTags)
		prev.RemovedTags = mergeInts(prev.RemovedTags, n.RemovedTags)
		return prev, true

	case prev.Operation == model.OpAdd && isModifyLike(n.Operation):
		// The entity didn't exist for any subscriber before this batch;
		// a subsequent modify carries no information an Add doesn't
		// already imply once the addition is delivered.
		return prev, true

	default:
		return model.Notification{}, false
	}
}

func isModifyLike(op model.NotificationOp) bool {
	switch op {
	case model.OpModify, model.OpModifyFlags, model.OpModifyTags, model.OpModifyRelations:
		return true
	default:
		return false
	}
}

func mergeStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
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

func mergeInts(a, b []int64) []int64 {
	if len(b) == 0 {
		return a
	}
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
