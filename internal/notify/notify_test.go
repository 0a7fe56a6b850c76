package notify

import (
	"testing"
	"time"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressMergesConsecutiveModifies(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 7}}, ChangedParts: []string{"PLD:RFC822"}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 7}}, ChangedParts: []string{"ATR:FLAGS"}})

	out := c.Drain()
	require.Len(t, out, 1)
	assert.ElementsMatch(t, []string{"PLD:RFC822", "ATR:FLAGS"}, out[0].ChangedParts)
}

func TestCompressAddAbsorbsFollowingModify(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpAdd, Entities: []model.EntityRef{{ID: 3}}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 3}}, ChangedParts: []string{"PLD:RFC822"}})

	out := c.Drain()
	require.Len(t, out, 1)
	assert.Equal(t, model.OpAdd, out[0].Operation)
}

func TestCompressLeavesRemoveAfterModifySeparate(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 7}}, ChangedParts: []string{"ATR:FLAGS"}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpRemove, Entities: []model.EntityRef{{ID: 7}}})

	out := c.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, model.OpModify, out[0].Operation)
	assert.Equal(t, model.OpRemove, out[1].Operation)
}

func TestCompressLeavesUnrelatedEntitiesSeparate(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 1}}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 2}}})

	out := c.Drain()
	assert.Len(t, out, 2)
}

func TestCompressLeavesItemNotificationsUncompressed(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyItem, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 7}}, ChangedParts: []string{"PLD:RFC822"}})
	c.Record(model.Notification{Type: model.NotifyItem, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 7}}, ChangedParts: []string{"ATR:FLAGS"}})

	out := c.Drain()
	require.Len(t, out, 2)
}

func TestNewSubscriptionStreamingAckWidensBuffer(t *testing.T) {
	plain := NewSubscription("sub-1", "session-1", false)
	assert.False(t, plain.StreamingAck())
	assert.Equal(t, subscriptionOutBuffer, cap(plain.out))

	ack := NewSubscription("sub-2", "session-1", true)
	assert.True(t, ack.StreamingAck())
	assert.Equal(t, streamingAckOutBuffer, cap(ack.out))
}

func TestSubscriptionMatchesMonitoredCollection(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)
	sub.StartMonitoringCollection(42)

	n := model.Notification{Type: model.NotifyItem, Operation: model.OpAdd, ParentCollection: 42, Entities: []model.EntityRef{{ID: 1}}}
	assert.True(t, sub.Matches(n))

	other := model.Notification{Type: model.NotifyItem, Operation: model.OpAdd, ParentCollection: 99, Entities: []model.EntityRef{{ID: 1}}}
	assert.False(t, sub.Matches(other))
}

func TestSubscriptionIgnoresOwnSession(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)
	sub.SetAllMonitored(true)
	sub.StartIgnoringSession("session-1")

	n := model.Notification{Type: model.NotifyItem, Operation: model.OpAdd, SessionID: "session-1", Entities: []model.EntityRef{{ID: 1}}}
	assert.False(t, sub.Matches(n))
}

func TestSubscriptionSuppressesDebugUnlessRequested(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)
	sub.SetAllMonitored(true)

	n := model.Notification{Type: model.NotifyDebug, Operation: model.OpModify}
	assert.False(t, sub.Matches(n))

	sub.SetWantDebug(true)
	assert.True(t, sub.Matches(n))
}

func TestBusDeliversMatchingBatchToSubscriber(t *testing.T) {
	bus := NewBus(4)
	bus.Start()
	defer bus.Stop()

	sub := NewSubscription("sub-1", "session-1", false)
	sub.StartMonitoringCollection(5)
	bus.Subscribe(sub)
	defer bus.Unsubscribe(sub.ID)

	bus.Publish([]model.Notification{{
		Type: model.NotifyItem, Operation: model.OpAdd, ParentCollection: 5,
		Entities: []model.EntityRef{{ID: 1}},
	}})

	select {
	case batch := <-sub.Out():
		require.Len(t, batch, 1)
		assert.Equal(t, int64(5), batch[0].ParentCollection)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivered batch")
	}
}

func TestBusSkipsSubscribersWithoutMatch(t *testing.T) {
	bus := NewBus(4)
	bus.Start()
	defer bus.Stop()

	sub := NewSubscription("sub-1", "session-1", false)
	sub.StartMonitoringCollection(999)
	bus.Subscribe(sub)
	defer bus.Unsubscribe(sub.ID)

	bus.Publish([]model.Notification{{
		Type: model.NotifyItem, Operation: model.OpAdd, ParentCollection: 5,
		Entities: []model.EntityRef{{ID: 1}},
	}})

	select {
	case batch := <-sub.Out():
		t.Fatalf("did not expect a delivery, got %v", batch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSubscriptionExclusiveOverridesIgnoredSession(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)
	sub.SetAllMonitored(true)
	sub.StartIgnoringSession("session-1")
	sub.SetExclusive(true)

	n := model.Notification{Type: model.NotifyItem, Operation: model.OpAdd, SessionID: "session-1", Entities: []model.EntityRef{{ID: 1}}}
	assert.True(t, sub.Matches(n))
}

func TestSubscriptionMatchesMonitoredResource(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)
	sub.StartMonitoringResource(3)

	n := model.Notification{Type: model.NotifyItem, Operation: model.OpAdd, ResourceID: 3, Entities: []model.EntityRef{{ID: 1}}}
	assert.True(t, sub.Matches(n))

	sub.StopMonitoringResource(3)
	assert.False(t, sub.Matches(n))
}

func TestSubscriptionAlwaysMatchesSubscriptionEvents(t *testing.T) {
	sub := NewSubscription("sub-1", "session-1", false)

	n := model.Notification{Type: model.NotifySubscription, Operation: model.OpModify, SessionID: "session-2"}
	assert.True(t, sub.Matches(n))
}

func TestBusDeliversDebugWrapsToOptedInSubscriber(t *testing.T) {
	bus := NewBus(4)
	bus.Start()
	defer bus.Stop()

	watcher := NewSubscription("watcher", "session-w", false)
	watcher.StartMonitoringCollection(5)
	bus.Subscribe(watcher)
	defer bus.Unsubscribe(watcher.ID)

	debugger := NewSubscription("debugger", "session-d", false)
	debugger.SetWantDebug(true)
	bus.Subscribe(debugger)
	defer bus.Unsubscribe(debugger.ID)

	bus.Publish([]model.Notification{{
		Type: model.NotifyItem, Operation: model.OpAdd, ParentCollection: 5,
		Entities: []model.EntityRef{{ID: 1}},
	}})

	select {
	case batch := <-debugger.Out():
		require.Len(t, batch, 1)
		wrap := batch[0]
		assert.Equal(t, model.NotifyDebug, wrap.Type)
		require.NotNil(t, wrap.Wrapped)
		assert.Equal(t, model.NotifyItem, wrap.Wrapped.Type)
		assert.Equal(t, []string{"watcher"}, wrap.DeliveredTo)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debug wrap delivery")
	}
}

func TestCompressMergesDuplicateStatisticsChanges(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpStatisticsChanged, Entities: []model.EntityRef{{ID: 5}}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpStatisticsChanged, Entities: []model.EntityRef{{ID: 8}}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpStatisticsChanged, Entities: []model.EntityRef{{ID: 5}}})

	out := c.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, model.OpStatisticsChanged, out[0].Operation)
	assert.Equal(t, int64(5), out[0].Entities[0].ID)
	assert.Equal(t, int64(8), out[1].Entities[0].ID)
}

func TestCompressKeepsStatisticsSeparateFromModify(t *testing.T) {
	c := NewCollector()
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpModify, Entities: []model.EntityRef{{ID: 5}}})
	c.Record(model.Notification{Type: model.NotifyCollection, Operation: model.OpStatisticsChanged, Entities: []model.EntityRef{{ID: 5}}})

	out := c.Drain()
	require.Len(t, out, 2)
}
