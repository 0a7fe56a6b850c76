package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu          sync.Mutex
	calls       int32
	block       chan struct{}
	itemErr     error
	collErr     error
	changeErr   error
	changeResp  *gateway.ChangeCommittedResponse
	items       []model.Item
	collections []model.Collection
}

func (f *fakeGateway) RetrieveItems(ctx context.Context, req *gateway.RetrieveItemsRequest) (*gateway.RetrieveItemsResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return &gateway.RetrieveItemsResponse{Items: f.items}, nil
}

func (f *fakeGateway) RetrieveCollections(ctx context.Context, req *gateway.RetrieveCollectionsRequest) (*gateway.RetrieveCollectionsResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.collErr != nil {
		return nil, f.collErr
	}
	return &gateway.RetrieveCollectionsResponse{Collections: f.collections}, nil
}

func (f *fakeGateway) ChangeCommitted(ctx context.Context, req *gateway.ChangeCommittedRequest) (*gateway.ChangeCommittedResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	if f.changeResp != nil {
		return f.changeResp, nil
	}
	return &gateway.ChangeCommittedResponse{Accepted: true}, nil
}

func TestRetrieveItemsReturnsMatchingItemParts(t *testing.T) {
	wantParts := []model.Part{{Name: "PLD:RFC822"}}
	fg := &fakeGateway{items: []model.Item{{ID: 42, Parts: wantParts}}}
	c := NewCoordinator(fg, time.Second)

	parts, err := c.RetrieveItems(context.Background(), "res1", 42, "rid-42", []string{"PLD:RFC822"})
	require.NoError(t, err)
	assert.Equal(t, wantParts, parts)
}

func TestRetrieveItemsErrorsWhenItemMissingFromResponse(t *testing.T) {
	fg := &fakeGateway{items: []model.Item{{ID: 99}}}
	c := NewCoordinator(fg, time.Second)

	_, err := c.RetrieveItems(context.Background(), "res1", 42, "rid-42", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestRetrieveItemsWrapsGatewayError(t *testing.T) {
	fg := &fakeGateway{itemErr: errors.New("boom")}
	c := NewCoordinator(fg, time.Second)

	_, err := c.RetrieveItems(context.Background(), "res1", 42, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestRetrieveItemsCoalescesConcurrentCallers(t *testing.T) {
	block := make(chan struct{})
	fg := &fakeGateway{block: block, items: []model.Item{{ID: 1, Parts: []model.Part{{Name: "PLD:DATA"}}}}}
	c := NewCoordinator(fg, time.Second)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]model.Part, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parts, err := c.RetrieveItems(context.Background(), "res1", 1, "rid-1", []string{"PLD:DATA"})
			assert.NoError(t, err)
			results[i] = parts
		}(i)
	}

	// Give every goroutine a chance to enter the shared flight before
	// releasing the single upstream call.
	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fg.calls))
	for _, r := range results {
		assert.Len(t, r, 1)
	}
}

func TestRetrieveItemsKeyIgnoresPartOrder(t *testing.T) {
	assert.Equal(t, retrievalKey(1, []string{"b", "a"}), retrievalKey(1, []string{"a", "b"}))
	assert.NotEqual(t, retrievalKey(1, []string{"a"}), retrievalKey(2, []string{"a"}))
}

func TestRetrieveCollectionsReturnsResponse(t *testing.T) {
	want := []model.Collection{{ID: 7, Name: "Inbox"}}
	fg := &fakeGateway{collections: want}
	c := NewCoordinator(fg, time.Second)

	got, err := c.RetrieveCollections(context.Background(), "res1", 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRetrieveCollectionsWrapsGatewayError(t *testing.T) {
	fg := &fakeGateway{collErr: errors.New("down")}
	c := NewCoordinator(fg, time.Second)

	_, err := c.RetrieveCollections(context.Background(), "res1", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestChangeCommittedSucceeds(t *testing.T) {
	fg := &fakeGateway{}
	c := NewCoordinator(fg, time.Second)

	err := c.ChangeCommitted(context.Background(), "res1", 42, "rid-42", []string{"PLD:RFC822"})
	require.NoError(t, err)
}

func TestChangeCommittedWrapsRejection(t *testing.T) {
	fg := &fakeGateway{changeResp: &gateway.ChangeCommittedResponse{Accepted: false, Reason: "unknown item"}}
	c := NewCoordinator(fg, time.Second)

	err := c.ChangeCommitted(context.Background(), "res1", 42, "rid-42", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestChangeCommittedWrapsGatewayError(t *testing.T) {
	fg := &fakeGateway{changeErr: errors.New("down")}
	c := NewCoordinator(fg, time.Second)

	err := c.ChangeCommitted(context.Background(), "res1", 42, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestChangeCommittedCollectionSucceeds(t *testing.T) {
	fg := &fakeGateway{}
	c := NewCoordinator(fg, time.Second)

	err := c.ChangeCommittedCollection(context.Background(), "res1", 7, "rid-7")
	require.NoError(t, err)
}

func TestChangeCommittedCollectionWrapsRejection(t *testing.T) {
	fg := &fakeGateway{changeResp: &gateway.ChangeCommittedResponse{Accepted: false, Reason: "unknown collection"}}
	c := NewCoordinator(fg, time.Second)

	err := c.ChangeCommittedCollection(context.Background(), "res1", 7, "rid-7")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
}

func TestNewCoordinatorDefaultsTimeout(t *testing.T) {
	c := NewCoordinator(&fakeGateway{}, 0)
	assert.Equal(t, DefaultTimeout, c.timeout)
}
