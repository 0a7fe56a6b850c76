package handler

import (
	"context"
	"testing"

	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/retrieval"
	"github.com/cuemby/itemstored/internal/store"
	"github.com/cuemby/itemstored/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a minimal retrieval.GatewayCaller recording every
// ChangeCommitted(Collection) call a move handler issues.
type fakeGateway struct {
	changeCalls []*gateway.ChangeCommittedRequest
}

func (f *fakeGateway) RetrieveItems(context.Context, *gateway.RetrieveItemsRequest) (*gateway.RetrieveItemsResponse, error) {
	return &gateway.RetrieveItemsResponse{}, nil
}

func (f *fakeGateway) RetrieveCollections(context.Context, *gateway.RetrieveCollectionsRequest) (*gateway.RetrieveCollectionsResponse, error) {
	return &gateway.RetrieveCollectionsResponse{}, nil
}

func (f *fakeGateway) ChangeCommitted(ctx context.Context, req *gateway.ChangeCommittedRequest) (*gateway.ChangeCommittedResponse, error) {
	f.changeCalls = append(f.changeCalls, req)
	return &gateway.ChangeCommittedResponse{Accepted: true}, nil
}

// fakeRetrieveGateway is a retrieval.GatewayCaller that always returns a
// fixed set of parts from RetrieveItems, counting how many times it was
// called.
type fakeRetrieveGateway struct {
	calls int
	parts []model.Part
}

func (f *fakeRetrieveGateway) RetrieveItems(ctx context.Context, req *gateway.RetrieveItemsRequest) (*gateway.RetrieveItemsResponse, error) {
	f.calls++
	id := int64(0)
	if len(req.ItemIDs) > 0 {
		id = req.ItemIDs[0]
	}
	return &gateway.RetrieveItemsResponse{Items: []model.Item{{ID: id, Parts: f.parts}}}, nil
}

func (f *fakeRetrieveGateway) RetrieveCollections(context.Context, *gateway.RetrieveCollectionsRequest) (*gateway.RetrieveCollectionsResponse, error) {
	return &gateway.RetrieveCollectionsResponse{}, nil
}

func (f *fakeRetrieveGateway) ChangeCommitted(context.Context, *gateway.ChangeCommittedRequest) (*gateway.ChangeCommittedResponse, error) {
	return &gateway.ChangeCommittedResponse{Accepted: true}, nil
}

// fakeResponder collects every intermediate response a handler sends
// ahead of its terminal response, the way the real connection loop
// would deliver them to the socket.
type fakeResponder struct {
	sent []wire.Command
}

func (r *fakeResponder) SendIntermediate(cmd wire.Command) error {
	r.sent = append(r.sent, cmd)
	return nil
}

func newTestEnv(t *testing.T) (*Env, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	res := &model.Resource{Name: "imap"}
	require.NoError(t, st.CreateResource(context.Background(), nil, res))

	env := &Env{
		Store:     st,
		Collector: notify.NewCollector(),
		SessionID: "S1",
	}
	return env, st
}

func createTestCollection(t *testing.T, st *store.Store, resourceID, parentID int64, name string) *model.Collection {
	t.Helper()
	col := &model.Collection{Name: name, ParentID: parentID, ResourceID: resourceID}
	require.NoError(t, st.CreateCollection(context.Background(), nil, col))
	return col
}

// TestCreateThenFetchRoundTripsPayload checks that after CreateItem, a
// FetchItems with fullPayload returns exactly the payload bytes
// streamed in.
func TestCreateThenFetchRoundTripsPayload(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "application/octet-stream",
		Parts:    []model.Part{{Name: "PLD:RFC822", Storage: model.StorageInline, Data: []byte("hello")}},
	})
	require.NoError(t, err)
	created := createResp.(*wire.CreateItemResponse)
	assert.Equal(t, int64(0), created.Revision)

	resp := &fakeResponder{}
	_, err = handleFetchItems(ctx, env, resp, &wire.FetchItemsCommand{
		Scope:      model.UidScope(created.ID),
		FetchScope: model.FetchScope{FullPayload: true},
	})
	require.NoError(t, err)
	require.Len(t, resp.sent, 1)

	fetched := resp.sent[0].(*wire.FetchItemsResponse)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, col.ID, fetched.ParentID)
	require.Len(t, fetched.Parts, 1)
	assert.Equal(t, "PLD:RFC822", fetched.Parts[0].Name)
	assert.Equal(t, []byte("hello"), fetched.Parts[0].Data)
	assert.Equal(t, int64(0), fetched.Revision)

	it, err := st.GetItem(ctx, nil, created.ID)
	require.NoError(t, err)
	assert.False(t, it.Atime.IsZero(), "a full-payload fetch should bump atime")
}

// TestModifyIncrementsRevisionByOne checks the revision rule: after
// every successful Modify, revision = previous revision + 1.
func TestModifyIncrementsRevisionByOne(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	before, err := st.GetItem(ctx, nil, id)
	require.NoError(t, err)

	_, err = handleModifyItem(ctx, env, &fakeResponder{}, &wire.ModifyItemCommand{
		Scope:      model.UidScope(id),
		Present:    wire.ModifyItemAddedFlags | wire.ModifyItemRemovedFlags,
		AddedFlags: []string{`\Seen`},
	})
	require.NoError(t, err)

	after, err := st.GetItem(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, before.Revision+1, after.Revision)
	assert.Contains(t, after.Flags, `\Seen`)
}

// TestModifyFlagsDeltaMatchesNotification checks a flag-delta modify:
// addedFlags={"\Seen"},
// removedFlags={"\Flagged"} yields a ModifyFlags notification with
// exactly those deltas, and the item ends up \Seen and not \Flagged.
func TestModifyFlagsDeltaMatchesNotification(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
		Flags:    []string{`\Flagged`},
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID
	env.Collector.Drain() // discard the Add notification from create

	_, err = handleModifyItem(ctx, env, &fakeResponder{}, &wire.ModifyItemCommand{
		Scope:        model.UidScope(id),
		Present:      wire.ModifyItemAddedFlags | wire.ModifyItemRemovedFlags,
		AddedFlags:   []string{`\Seen`},
		RemovedFlags: []string{`\Flagged`},
	})
	require.NoError(t, err)

	batch := env.Collector.Drain()
	require.Len(t, batch, 1)
	assert.Equal(t, model.OpModifyFlags, batch[0].Operation)
	assert.Equal(t, []string{`\Seen`}, batch[0].AddedFlags)
	assert.Equal(t, []string{`\Flagged`}, batch[0].RemovedFlags)

	it, err := st.GetItem(ctx, nil, id)
	require.NoError(t, err)
	assert.Contains(t, it.Flags, `\Seen`)
	assert.NotContains(t, it.Flags, `\Flagged`)
	assert.Equal(t, int64(1), it.Revision)
}

// TestModifyConflictOnStaleRevision checks the optimistic-concurrency
// path: a stale OldRevision fails with a conflict error carrying the
// current revision.
func TestModifyConflictOnStaleRevision(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	stale := int64(41)
	_, err = handleModifyItem(ctx, env, &fakeResponder{}, &wire.ModifyItemCommand{
		Scope:       model.UidScope(id),
		Present:     wire.ModifyItemAddedFlags,
		AddedFlags:  []string{`\Seen`},
		OldRevision: &stale,
	})
	require.Error(t, err)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(0), conflict.CurrentRevision)
}

// TestFetchCacheOnlyTrustedSessionStillRetrieves covers the two-sided
// cacheOnly rule: a trusted indexer session still triggers
// retrieval of missing parts even when CacheOnly is set.
func TestFetchCacheOnlyTrustedSessionStillRetrieves(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
		RemoteID: "remote-1",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	fg2 := &fakeRetrieveGateway{parts: []model.Part{{Name: "PLD:RFC822", Storage: model.StorageExternal, Data: []byte("remote-bytes")}}}
	env.Retrieval = retrieval.NewCoordinator(fg2, 0)

	resp := &fakeResponder{}
	_, err = handleFetchItems(ctx, env, resp, &wire.FetchItemsCommand{
		Scope:      model.UidScope(id),
		FetchScope: model.FetchScope{FullPayload: true, CacheOnly: true, Trusted: true},
	})
	require.NoError(t, err)
	require.Len(t, resp.sent, 1)
	fetched := resp.sent[0].(*wire.FetchItemsResponse)
	require.Len(t, fetched.Parts, 1)
	assert.Equal(t, []byte("remote-bytes"), fetched.Parts[0].Data)
}

// TestFetchCacheOnlyUntrustedSkipsRetrieval covers the converse: a plain
// CacheOnly fetch from an untrusted session against a resource with no
// local storage returns only what's already cached.
func TestFetchCacheOnlyUntrustedSkipsRetrieval(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
		RemoteID: "remote-1",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	fg2 := &fakeRetrieveGateway{parts: []model.Part{{Name: "PLD:RFC822", Storage: model.StorageExternal, Data: []byte("remote-bytes")}}}
	env.Retrieval = retrieval.NewCoordinator(fg2, 0)

	resp := &fakeResponder{}
	_, err = handleFetchItems(ctx, env, resp, &wire.FetchItemsCommand{
		Scope:      model.UidScope(id),
		FetchScope: model.FetchScope{FullPayload: true, CacheOnly: true},
	})
	require.NoError(t, err)
	require.Len(t, resp.sent, 1)
	fetched := resp.sent[0].(*wire.FetchItemsResponse)
	assert.Empty(t, fetched.Parts)
	assert.Equal(t, 0, fg2.calls)
}

// TestModifyInvalidateCacheDropsCachedExternalParts checks that
// InvalidateCache drops cached payload parts after the modify commits:
// a cached (externally-sourced) payload part is removed, while an inline
// part the client owns directly survives.
func TestModifyInvalidateCacheDropsCachedExternalParts(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
		Parts: []model.Part{
			{Name: "PLD:RFC822", Storage: model.StorageInline, Data: []byte("hello")},
		},
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	require.NoError(t, st.StoreCachedParts(ctx, nil, id, []model.Part{
		{Name: "PLD:ATTACHMENT", Storage: model.StorageExternal, Data: []byte("cached-bytes")},
	}))

	_, err = handleModifyItem(ctx, env, &fakeResponder{}, &wire.ModifyItemCommand{
		Scope:           model.UidScope(id),
		Present:         wire.ModifyItemAddedFlags,
		AddedFlags:      []string{`\Seen`},
		InvalidateCache: true,
	})
	require.NoError(t, err)

	it, err := st.GetItem(ctx, nil, id)
	require.NoError(t, err)
	_, hasCached := it.Part("PLD:ATTACHMENT")
	assert.False(t, hasCached, "cached external payload part should be dropped")
	inline, hasInline := it.Part("PLD:RFC822")
	require.True(t, hasInline, "inline payload part set by the client should survive")
	assert.Equal(t, []byte("hello"), inline.Data)
}

// TestModifySuppressNotifySuppressesNotification checks that
// SuppressNotify swallows the notification, independent of NoResponse.
func TestModifySuppressNotifySuppressesNotification(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID
	env.Collector.Drain()

	_, err = handleModifyItem(ctx, env, &fakeResponder{}, &wire.ModifyItemCommand{
		Scope:          model.UidScope(id),
		Present:        wire.ModifyItemAddedFlags,
		AddedFlags:     []string{`\Seen`},
		SuppressNotify: true,
	})
	require.NoError(t, err)
	assert.Empty(t, env.Collector.Drain())
}

// TestMoveItemEmitsExactlyOneMoveNotification checks that a committed
// move of an item from a to b records exactly one Move notification
// carrying both the old and new parent, plus one statistics-changed
// notification for each of the two collections.
func TestMoveItemEmitsExactlyOneMoveNotification(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	src := createTestCollection(t, st, 1, 0, "INBOX")
	dst := createTestCollection(t, st, 1, 0, "Archive")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: src.ID,
		MimeType: "message/rfc822",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID
	env.Collector.Drain()

	_, err = handleMoveItem(ctx, env, &fakeResponder{}, &wire.MoveItemCommand{
		Scope:                   model.UidScope(id),
		DestinationCollectionID: dst.ID,
	})
	require.NoError(t, err)

	batch := env.Collector.Drain()
	require.Len(t, batch, 3)

	var moves []model.Notification
	statsFor := make(map[int64]int)
	for _, n := range batch {
		switch n.Operation {
		case model.OpMove:
			moves = append(moves, n)
		case model.OpStatisticsChanged:
			require.Len(t, n.Entities, 1)
			statsFor[n.Entities[0].ID]++
		}
	}
	require.Len(t, moves, 1)
	assert.Equal(t, src.ID, moves[0].ParentCollection)
	assert.Equal(t, dst.ID, moves[0].ParentDestCollection)
	assert.Equal(t, 1, statsFor[src.ID], "source collection should get one statistics notification")
	assert.Equal(t, 1, statsFor[dst.ID], "destination collection should get one statistics notification")

	it, err := st.GetItem(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, dst.ID, it.ParentID)
}

// TestCreateThenFetchCollectionRoundTripsRemoteID checks that a
// RemoteID set on create survives a Fetch.
func TestCreateThenFetchCollectionRoundTripsRemoteID(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()

	createResp, err := handleCreateCollection(ctx, env, &fakeResponder{}, &wire.CreateCollectionCommand{
		Name:       "INBOX",
		ResourceID: 1,
		RemoteID:   "upstream-123",
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateCollectionResponse).ID

	resp := &fakeResponder{}
	_, err = handleFetchCollections(ctx, env, resp, &wire.FetchCollectionsCommand{Scope: model.UidScope(id)})
	require.NoError(t, err)
	require.Len(t, resp.sent, 1)
	fetched := resp.sent[0].(*wire.FetchCollectionsResponse)
	assert.Equal(t, "upstream-123", fetched.RemoteID)
}

// TestModifyCollectionUpdatesRemoteRevision covers the same fields for
// an in-place Modify.
func TestModifyCollectionUpdatesRemoteRevision(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	_, err := handleModifyCollection(ctx, env, &fakeResponder{}, &wire.ModifyCollectionCommand{
		Scope:          model.UidScope(col.ID),
		Present:        wire.ModifyCollectionRemoteID | wire.ModifyCollectionRemoteRevision,
		RemoteID:       "upstream-9",
		RemoteRevision: "rev-9",
	})
	require.NoError(t, err)

	updated, err := st.GetCollection(ctx, nil, col.ID)
	require.NoError(t, err)
	assert.Equal(t, "upstream-9", updated.RemoteID)
	assert.Equal(t, "rev-9", updated.RemoteRevision)
}

// TestMoveCollectionReplaysChangeCommittedWhenRemoteIDSet checks the
// upstream replay gate: an inter-resource move of a collection with a
// non-empty RemoteID queues exactly one ChangeCommitted call against
// the destination resource.
func TestMoveCollectionReplaysChangeCommittedWhenRemoteIDSet(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()

	destRes := &model.Resource{Name: "gmail"}
	require.NoError(t, st.CreateResource(ctx, nil, destRes))

	src := createTestCollection(t, st, 1, 0, "Source")
	src.RemoteID = "remote-src"
	require.NoError(t, st.UpdateCollection(ctx, nil, src))
	dst := createTestCollection(t, st, destRes.ID, 0, "Dest")

	fg := &fakeGateway{}
	env.Retrieval = retrieval.NewCoordinator(fg, 0)

	_, err := handleMoveCollection(ctx, env, &fakeResponder{}, &wire.MoveCollectionCommand{
		Scope:                   model.UidScope(src.ID),
		DestinationCollectionID: dst.ID,
	})
	require.NoError(t, err)

	require.Len(t, fg.changeCalls, 1)
	assert.Equal(t, "gmail", fg.changeCalls[0].ResourceName)
	assert.Equal(t, "remote-src", fg.changeCalls[0].RemoteID)
}

// TestMoveCollectionSkipsReplayWhenRemoteIDEmpty covers the converse of
// the above: an empty RemoteID queues no upstream work.
func TestMoveCollectionSkipsReplayWhenRemoteIDEmpty(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()

	destRes := &model.Resource{Name: "gmail"}
	require.NoError(t, st.CreateResource(ctx, nil, destRes))

	src := createTestCollection(t, st, 1, 0, "Source")
	dst := createTestCollection(t, st, destRes.ID, 0, "Dest")

	fg := &fakeGateway{}
	env.Retrieval = retrieval.NewCoordinator(fg, 0)

	_, err := handleMoveCollection(ctx, env, &fakeResponder{}, &wire.MoveCollectionCommand{
		Scope:                   model.UidScope(src.ID),
		DestinationCollectionID: dst.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, fg.changeCalls)
}

// TestFetchVerifyCacheReRequestsCachedParts checks cache verification:
// with it on, even an already-cached payload part goes back to the
// owning resource, which may hand back a newer copy.
func TestFetchVerifyCacheReRequestsCachedParts(t *testing.T) {
	env, st := newTestEnv(t)
	ctx := context.Background()
	col := createTestCollection(t, st, 1, 0, "INBOX")

	createResp, err := handleCreateItem(ctx, env, &fakeResponder{}, &wire.CreateItemCommand{
		ParentID: col.ID,
		MimeType: "message/rfc822",
		RemoteID: "remote-1",
		Parts: []model.Part{
			{Name: "PLD:RFC822", Storage: model.StorageInline, Data: []byte("stale")},
		},
	})
	require.NoError(t, err)
	id := createResp.(*wire.CreateItemResponse).ID

	fg := &fakeRetrieveGateway{parts: []model.Part{{Name: "PLD:RFC822", Storage: model.StorageExternal, Data: []byte("fresh")}}}
	env.Retrieval = retrieval.NewCoordinator(fg, 0)
	env.Retrieval.SetVerifyCache(true)

	resp := &fakeResponder{}
	_, err = handleFetchItems(ctx, env, resp, &wire.FetchItemsCommand{
		Scope:      model.UidScope(id),
		FetchScope: model.FetchScope{FullPayload: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fg.calls)
	require.Len(t, resp.sent, 1)
	fetched := resp.sent[0].(*wire.FetchItemsResponse)
	require.Len(t, fetched.Parts, 1)
	assert.Equal(t, []byte("fresh"), fetched.Parts[0].Data)
}
