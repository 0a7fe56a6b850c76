package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, tag int64, cmd Command) Command {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteFrame(w, tag, cmd))

	frame, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, tag, frame.Tag)
	assert.Equal(t, cmd.Discriminator(), frame.Command.Discriminator())
	return frame.Command
}

func TestCreateItemRoundTrip(t *testing.T) {
	cmd := &CreateItemCommand{
		ParentID: 5,
		MimeType: "application/octet-stream",
		RemoteID: "r-1",
		GID:      "g-1",
		Flags:    []string{"\\Seen"},
		Parts: []model.Part{
			{Name: "PLD:RFC822", Storage: model.StorageInline, Data: []byte("hello")},
		},
	}
	got := roundTrip(t, 1, cmd).(*CreateItemCommand)
	assert.Equal(t, cmd, got)
}

func TestFetchItemsRoundTrip(t *testing.T) {
	changedSince := int64(1234)
	cmd := &FetchItemsCommand{
		Scope: model.UidScope(42, 43),
		FetchScope: model.FetchScope{
			Parts:         []string{"PLD:RFC822"},
			AncestorDepth: model.AncestorAll,
			FullPayload:   true,
			ChangedSince:  &changedSince,
			TagScope:      model.TagFetchScope{FullTags: true},
		},
	}
	got := roundTrip(t, 2, cmd).(*FetchItemsCommand)
	assert.Equal(t, cmd.Scope, got.Scope)
	require.NotNil(t, got.FetchScope.ChangedSince)
	assert.Equal(t, changedSince, *got.FetchScope.ChangedSince)
	assert.True(t, got.FetchScope.FullPayload)
	assert.Equal(t, model.AncestorAll, got.FetchScope.AncestorDepth)
}

func TestModifyItemRoundTrip(t *testing.T) {
	oldRev := int64(0)
	cmd := &ModifyItemCommand{
		Scope:        model.UidScope(42),
		Present:      ModifyItemAddedFlags | ModifyItemRemovedFlags,
		AddedFlags:   []string{"\\Seen"},
		RemovedFlags: []string{"\\Flagged"},
		OldRevision:  &oldRev,
	}
	got := roundTrip(t, 3, cmd).(*ModifyItemCommand)
	assert.True(t, got.Present.Has(ModifyItemAddedFlags))
	assert.True(t, got.Present.Has(ModifyItemRemovedFlags))
	assert.False(t, got.Present.Has(ModifyItemTags))
	assert.Equal(t, []string{"\\Seen"}, got.AddedFlags)
	require.NotNil(t, got.OldRevision)
	assert.Equal(t, int64(0), *got.OldRevision)
}

func TestMoveItemRoundTrip(t *testing.T) {
	cmd := &MoveItemCommand{Scope: model.UidScope(42), DestinationCollectionID: 8}
	got := roundTrip(t, 4, cmd).(*MoveItemCommand)
	assert.Equal(t, cmd, got)
}

func TestItemChangeNotificationRoundTrip(t *testing.T) {
	n := &ItemChangeNotification{Notification: model.Notification{
		Type:             model.NotifyItem,
		Operation:        model.OpAdd,
		SessionID:        "S1",
		Entities:         []model.EntityRef{{ID: 42, MimeType: "application/octet-stream"}},
		ParentCollection: 5,
	}}
	got := roundTrip(t, 0, n).(*ItemChangeNotification)
	assert.Equal(t, n.Notification, got.Notification)
}

func TestTerminalResponseRoundTrip(t *testing.T) {
	resp := &TerminalResponse{OK: false, ErrorMessage: "conflict", ConflictRevision: 7}
	got := roundTrip(t, 9, resp).(*TerminalResponse)
	assert.Equal(t, resp, got)
}

func TestModifySubscriptionRoundTrip(t *testing.T) {
	allMonitored := true
	cmd := &ModifySubscriptionCommand{
		StopMonitoringCollections:  []int64{9},
		StartMonitoringCollections: []int64{9},
		SetAllMonitored:            &allMonitored,
	}
	got := roundTrip(t, 10, cmd).(*ModifySubscriptionCommand)
	assert.Equal(t, cmd.StopMonitoringCollections, got.StopMonitoringCollections)
	assert.Equal(t, cmd.StartMonitoringCollections, got.StartMonitoringCollections)
	require.NotNil(t, got.SetAllMonitored)
	assert.True(t, *got.SetAllMonitored)
	assert.Nil(t, got.SetExclusive)
}

func TestReadFrameUnknownDiscriminator(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	_, err := buf.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0xFF})
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	_, err = ReadFrame(bufio.NewReader(&buf))
	require.Error(t, err)
	var protoErr *ErrProtocol
	assert.ErrorAs(t, err, &protoErr)
}

func TestDebugChangeNotificationWrapsInner(t *testing.T) {
	inner := &ItemChangeNotification{Notification: model.Notification{
		Type: model.NotifyItem, Operation: model.OpAdd, SessionID: "S1",
	}}
	body, err := EncodeCommandBody(inner)
	require.NoError(t, err)

	dbg := &DebugChangeNotification{
		Inner:          inner.Discriminator(),
		Payload:        body,
		DeliveredTo:    []string{"Sub1"},
		ServerUnixNano: 99,
	}
	got := roundTrip(t, 0, dbg).(*DebugChangeNotification)
	assert.Equal(t, dbg.DeliveredTo, got.DeliveredTo)

	decoded, err := DecodeCommandBody(got.Inner, got.Payload)
	require.NoError(t, err)
	decodedNotif, ok := decoded.(*ItemChangeNotification)
	require.True(t, ok)
	assert.Equal(t, inner.Notification, decodedNotif.Notification)
}
