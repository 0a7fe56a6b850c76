package server

import (
	"testing"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedLogoutFromEveryState(t *testing.T) {
	for _, s := range []State{NonAuthenticated, Authenticated, Selected} {
		assert.True(t, allowed[s][wire.DiscLogout], "logout should be allowed in state %s", s)
	}
}

func TestAllowedRejectsUnauthenticatedCommands(t *testing.T) {
	assert.False(t, allowed[NonAuthenticated][wire.DiscCreateItem])
	assert.True(t, allowed[Authenticated][wire.DiscCreateItem])
}

func TestAllowedNothingOnceLoggingOut(t *testing.T) {
	assert.Empty(t, allowed[LoggingOut])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NonAuthenticated", NonAuthenticated.String())
	assert.Equal(t, "Authenticated", Authenticated.String())
	assert.Equal(t, "Selected", Selected.String())
	assert.Equal(t, "LoggingOut", LoggingOut.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "TerminalResponse", commandName(&wire.TerminalResponse{}))
}

func TestNotificationFrameWrapsByType(t *testing.T) {
	c := &Connection{}
	sub := notify.NewSubscription("sub-1", "session-1", false)

	item := c.notificationFrame(sub, model.Notification{Type: model.NotifyItem})
	assert.IsType(t, &wire.ItemChangeNotification{}, item)

	col := c.notificationFrame(sub, model.Notification{Type: model.NotifyCollection})
	assert.IsType(t, &wire.CollectionChangeNotification{}, col)

	tag := c.notificationFrame(sub, model.Notification{Type: model.NotifyTag})
	assert.IsType(t, &wire.TagChangeNotification{}, tag)

	rel := c.notificationFrame(sub, model.Notification{Type: model.NotifyRelation})
	assert.IsType(t, &wire.RelationChangeNotification{}, rel)
}

func TestNotificationFrameReportsSubscriptionState(t *testing.T) {
	c := &Connection{}
	sub := notify.NewSubscription("sub-1", "session-1", false)
	sub.StartMonitoringCollection(9)
	sub.StartMonitoringCollection(4)

	frame := c.notificationFrame(sub, model.Notification{Type: model.NotifySubscription, Operation: model.OpModify})
	sc, ok := frame.(*wire.SubscriptionChangeNotification)
	require.True(t, ok)
	assert.Equal(t, "sub-1", sc.SubscriberName)
	assert.Equal(t, []int64{4, 9}, sc.MonitoredCollections)
}

func TestNotificationFrameEncodesDebugWrap(t *testing.T) {
	c := &Connection{}
	sub := notify.NewSubscription("sub-1", "session-1", false)

	inner := model.Notification{
		Type:      model.NotifyItem,
		Operation: model.OpAdd,
		Entities:  []model.EntityRef{{ID: 42, MimeType: "application/octet-stream"}},
	}
	frame := c.notificationFrame(sub, model.Notification{
		Type:        model.NotifyDebug,
		Wrapped:     &inner,
		DeliveredTo: []string{"sub-1", "sub-2"},
	})
	dbg, ok := frame.(*wire.DebugChangeNotification)
	require.True(t, ok)
	assert.Equal(t, wire.DiscItemChangeNotification, dbg.Inner)
	assert.Equal(t, []string{"sub-1", "sub-2"}, dbg.DeliveredTo)

	decoded, err := wire.DecodeCommandBody(dbg.Inner, dbg.Payload)
	require.NoError(t, err)
	in, ok := decoded.(*wire.ItemChangeNotification)
	require.True(t, ok)
	assert.Equal(t, int64(42), in.Entities[0].ID)
}
