package store

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateItemAssignsIDAndZeroRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res := &model.Resource{Name: "imap"}
	require.NoError(t, s.CreateResource(ctx, nil, res))

	coll := &model.Collection{Name: "INBOX", ResourceID: res.ID}
	require.NoError(t, s.CreateCollection(ctx, nil, coll))

	it := &model.Item{ParentID: coll.ID, MimeType: "application/octet-stream"}
	require.NoError(t, s.CreateItem(ctx, nil, it))

	assert.NotZero(t, it.ID)
	assert.Equal(t, int64(0), it.Revision)

	fetched, err := s.GetItem(ctx, nil, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, fetched.ID)
	assert.Equal(t, coll.ID, fetched.ParentID)
}

func TestUpdateItemEnforcesMonotonicRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	coll := &model.Collection{Name: "INBOX"}
	require.NoError(t, s.CreateCollection(ctx, nil, coll))
	it := &model.Item{ParentID: coll.ID}
	require.NoError(t, s.CreateItem(ctx, nil, it))

	it.Revision = 1
	it.Flags = []string{`\Seen`}
	require.NoError(t, s.UpdateItem(ctx, nil, it))

	// Replaying the same mutation with a stale revision must conflict.
	stale := &model.Item{ID: it.ID, Revision: 1}
	err := s.UpdateItem(ctx, nil, stale)
	require.Error(t, err)
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.CurrentRevision)
}

func TestCreateItemRejectsVirtualParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	virtual := &model.Collection{Name: "Saved Search", Virtual: true}
	require.NoError(t, s.CreateCollection(ctx, nil, virtual))

	it := &model.Item{ParentID: virtual.ID}
	err := s.CreateItem(ctx, nil, it)
	require.Error(t, err)
}

func TestEffectiveCachePolicyInheritance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	root := &model.Collection{Name: "root", CachePolicy: model.CachePolicy{Inherit: false, CheckInterval: 20 * time.Minute}}
	require.NoError(t, s.CreateCollection(ctx, nil, root))

	child := &model.Collection{Name: "child", ParentID: root.ID, CachePolicy: model.CachePolicy{Inherit: true}}
	require.NoError(t, s.CreateCollection(ctx, nil, child))

	grandchild := &model.Collection{Name: "grandchild", ParentID: child.ID, CachePolicy: model.CachePolicy{Inherit: true}}
	require.NoError(t, s.CreateCollection(ctx, nil, grandchild))

	policy, err := s.EffectiveCachePolicy(ctx, nil, grandchild.ID)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, policy.CheckInterval)
}

func TestCreateRelationUniquenessInvariant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := model.Relation{LeftID: 1, RightID: 2, Type: "DUPLICATE"}
	require.NoError(t, s.CreateRelation(ctx, nil, &r))

	dup := model.Relation{LeftID: 2, RightID: 1, Type: "DUPLICATE"}
	err := s.CreateRelation(ctx, nil, &dup)
	require.Error(t, err)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.Begin(ctx, true)
	require.NoError(t, err)

	coll := &model.Collection{Name: "scratch"}
	require.NoError(t, s.CreateCollection(ctx, tx, coll))
	require.NoError(t, tx.Rollback())

	_, err = s.GetCollection(ctx, nil, coll.ID)
	require.Error(t, err)
}

func TestLargePayloadPartSpillsToExternalFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.SetExternalPayloadThreshold(16)

	res := &model.Resource{Name: "imap"}
	require.NoError(t, s.CreateResource(ctx, nil, res))
	coll := &model.Collection{Name: "INBOX", ResourceID: res.ID}
	require.NoError(t, s.CreateCollection(ctx, nil, coll))

	payload := []byte("this body is comfortably past the threshold")
	it := &model.Item{
		ParentID: coll.ID,
		MimeType: "message/rfc822",
		Parts:    []model.Part{{Name: "PLD:RFC822", Storage: model.StorageInline, Data: payload}},
	}
	require.NoError(t, s.CreateItem(ctx, nil, it))

	stored, err := s.GetItem(ctx, nil, it.ID)
	require.NoError(t, err)
	require.Len(t, stored.Parts, 1)
	assert.Equal(t, model.StorageExternal, stored.Parts[0].Storage)
	assert.NotEmpty(t, stored.Parts[0].ExternalFile)
	assert.Empty(t, stored.Parts[0].Data)
	assert.Equal(t, int64(len(payload)), stored.Size)

	hydrated, err := s.HydrateParts(stored.Parts)
	require.NoError(t, err)
	assert.Equal(t, payload, hydrated[0].Data)
}

func TestSmallPayloadPartStaysInline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res := &model.Resource{Name: "imap"}
	require.NoError(t, s.CreateResource(ctx, nil, res))
	coll := &model.Collection{Name: "INBOX", ResourceID: res.ID}
	require.NoError(t, s.CreateCollection(ctx, nil, coll))

	it := &model.Item{
		ParentID: coll.ID,
		MimeType: "message/rfc822",
		Parts:    []model.Part{{Name: "PLD:RFC822", Storage: model.StorageInline, Data: []byte("hello")}},
	}
	require.NoError(t, s.CreateItem(ctx, nil, it))

	stored, err := s.GetItem(ctx, nil, it.ID)
	require.NoError(t, err)
	require.Len(t, stored.Parts, 1)
	assert.Equal(t, model.StorageInline, stored.Parts[0].Storage)
	assert.Equal(t, []byte("hello"), stored.Parts[0].Data)
	assert.Equal(t, int64(5), stored.Size)
}

func TestUnlinkAllFromCollectionScrubsVirtualParents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res := &model.Resource{Name: "imap"}
	require.NoError(t, s.CreateResource(ctx, nil, res))
	coll := &model.Collection{Name: "INBOX", ResourceID: res.ID}
	require.NoError(t, s.CreateCollection(ctx, nil, coll))
	virt := &model.Collection{Name: "starred", Virtual: true}
	require.NoError(t, s.CreateCollection(ctx, nil, virt))

	it := &model.Item{ParentID: coll.ID, MimeType: "message/rfc822", VirtualParentIDs: []int64{virt.ID}}
	require.NoError(t, s.CreateItem(ctx, nil, it))

	unlinked, err := s.UnlinkAllFromCollection(ctx, nil, virt.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{it.ID}, unlinked)

	stored, err := s.GetItem(ctx, nil, it.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.VirtualParentIDs)
	assert.Equal(t, int64(1), stored.Revision)
}
