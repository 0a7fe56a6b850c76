package notify

import (
	"sort"
	"sync"

	"github.com/cuemby/itemstored/internal/model"
)

// Subscription describes one client's interest in the notification stream
//. It is built up by a sequence of incremental deltas the
// same way the wire protocol's MODIFY subscription command works: a client
// starts broad or narrow and then adds or removes individual ids rather
// than resending the whole filter.
//
// Mutators run on the owning connection's dispatch goroutine while
// Matches runs on the bus's dispatch loop, so every access to the filter
// state takes mu.
type Subscription struct {
	ID        string
	SessionID string

	mu sync.RWMutex

	monitoredCollections map[int64]bool
	monitoredItems       map[int64]bool
	monitoredTags        map[int64]bool
	monitoredTypes       map[model.NotificationType]bool
	monitoredResources   map[int64]bool
	monitoredMimeTypes   map[string]bool
	ignoredSessions      map[string]bool

	allMonitored bool
	exclusive    bool
	wantDebug    bool
	streamingAck bool

	out chan []model.Notification
}

// subscriptionOutBuffer bounds how many delivered batches a subscription
// holds before the owning connection must read them.
const subscriptionOutBuffer = 32

// streamingAckOutBuffer is the deeper bound used for a streamingAck
// subscription: a client that opted into lazy, pull-as-you-go
// delivery is expected to lag further behind the bus between reads than
// one holding the default buffer, so it gets more room before the bus
// disconnects it as a slow subscriber.
const streamingAckOutBuffer = 256

// NewSubscription returns an empty Subscription for the given session.
// streamingAck widens the subscription's delivery buffer for a client
// that requested lazy, pull-as-you-go notification delivery instead of
// the default eagerly-buffered stream.
func NewSubscription(id, sessionID string, streamingAck bool) *Subscription {
	buf := subscriptionOutBuffer
	if streamingAck {
		buf = streamingAckOutBuffer
	}
	return &Subscription{
		ID:                   id,
		SessionID:            sessionID,
		monitoredCollections: make(map[int64]bool),
		monitoredItems:       make(map[int64]bool),
		monitoredTags:        make(map[int64]bool),
		monitoredTypes:       make(map[model.NotificationType]bool),
		monitoredResources:   make(map[int64]bool),
		monitoredMimeTypes:   make(map[string]bool),
		ignoredSessions:      make(map[string]bool),
		streamingAck:         streamingAck,
		out:                  make(chan []model.Notification, buf),
	}
}

// StreamingAck reports whether this subscription requested lazy,
// pull-as-you-go delivery.
func (s *Subscription) StreamingAck() bool { return s.streamingAck }

// Out returns the channel the owning connection reads delivered batches
// from.
func (s *Subscription) Out() <-chan []model.Notification { return s.out }

func (s *Subscription) StartMonitoringCollection(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredCollections[id] = true
}

func (s *Subscription) StopMonitoringCollection(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredCollections, id)
}

func (s *Subscription) StartMonitoringItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredItems[id] = true
}

func (s *Subscription) StopMonitoringItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredItems, id)
}

func (s *Subscription) StartMonitoringTag(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredTags[id] = true
}

func (s *Subscription) StopMonitoringTag(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredTags, id)
}

func (s *Subscription) StartMonitoringType(t model.NotificationType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredTypes[t] = true
}

func (s *Subscription) StopMonitoringType(t model.NotificationType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredTypes, t)
}

// StartMonitoringResource adds a resource id to the filter; the handler
// layer resolves the wire protocol's resource names to ids before
// calling this, since notifications identify resources by id.
func (s *Subscription) StartMonitoringResource(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredResources[id] = true
}

func (s *Subscription) StopMonitoringResource(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredResources, id)
}

func (s *Subscription) StartMonitoringMimeType(mt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoredMimeTypes[mt] = true
}

func (s *Subscription) StopMonitoringMimeType(mt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitoredMimeTypes, mt)
}

func (s *Subscription) StartIgnoringSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoredSessions[id] = true
}

func (s *Subscription) StopIgnoringSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ignoredSessions, id)
}

// SetAllMonitored makes the subscription match every notification subject
// only to its ignored-session and monitored-type filters.
func (s *Subscription) SetAllMonitored(all bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allMonitored = all
}

// SetExclusive marks the subscription as exclusive: it also receives
// notifications from sessions it would otherwise ignore.
func (s *Subscription) SetExclusive(exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusive = exclusive
}

// SetWantDebug opts the subscription into NotifyDebug notifications, which
// are otherwise suppressed.
func (s *Subscription) SetWantDebug(want bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantDebug = want
}

// WantDebug reports whether the subscription opted into the debug stream.
func (s *Subscription) WantDebug() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wantDebug
}

// AllMonitored reports the catch-all flag's current value.
func (s *Subscription) AllMonitored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allMonitored
}

// MonitoredCollections returns the currently monitored collection ids in
// ascending order, for SubscriptionChangeNotification frames reporting
// the resulting subscribed set.
func (s *Subscription) MonitoredCollections() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.monitoredCollections))
	for id := range s.monitoredCollections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Matches reports whether n should be delivered to this subscription.
func (s *Subscription) Matches(n model.Notification) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ignoredSessions[n.SessionID] && !s.exclusive {
		return false
	}
	if n.Type == model.NotifyDebug {
		return s.wantDebug
	}
	// Subscription lifecycle events always reach the stream so a
	// subscriber can observe its own (and peers') filter changes.
	if n.Type == model.NotifySubscription {
		return true
	}
	if len(s.monitoredTypes) > 0 && !s.monitoredTypes[n.Type] {
		return false
	}

	if s.allMonitored {
		return true
	}

	if s.monitoredCollections[n.ParentCollection] || s.monitoredCollections[n.ParentDestCollection] {
		return true
	}
	if s.monitoredResources[n.ResourceID] || s.monitoredResources[n.DestResourceID] {
		return true
	}
	for _, e := range n.Entities {
		switch n.Type {
		case model.NotifyItem:
			if s.monitoredItems[e.ID] {
				return true
			}
			if e.MimeType != "" && s.monitoredMimeTypes[e.MimeType] {
				return true
			}
		case model.NotifyCollection:
			if s.monitoredCollections[e.ID] {
				return true
			}
		case model.NotifyTag:
			if s.monitoredTags[e.ID] {
				return true
			}
		}
	}

	return false
}
