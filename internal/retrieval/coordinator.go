package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/model"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout is the per-request retrieval timeout used when the
// caller configures none.
const DefaultTimeout = 5 * time.Minute

// GatewayCaller is the subset of internal/gateway.Gateway the
// coordinator depends on; tests substitute a fake.
type GatewayCaller interface {
	RetrieveItems(ctx context.Context, req *gateway.RetrieveItemsRequest) (*gateway.RetrieveItemsResponse, error)
	RetrieveCollections(ctx context.Context, req *gateway.RetrieveCollectionsRequest) (*gateway.RetrieveCollectionsResponse, error)
	ChangeCommitted(ctx context.Context, req *gateway.ChangeCommittedRequest) (*gateway.ChangeCommittedResponse, error)
}

// Coordinator dispatches retrieval requests to resources, coalescing
// concurrent requests for the same item/parts.
type Coordinator struct {
	group       singleflight.Group
	gw          GatewayCaller
	timeout     time.Duration
	verifyCache bool
}

// NewCoordinator returns a Coordinator dispatching through gw, with
// requests bounded by timeout (DefaultTimeout if zero).
func NewCoordinator(gw GatewayCaller, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{gw: gw, timeout: timeout}
}

// SetVerifyCache turns on cache verification: fetch handlers re-request
// even cached payload bytes from the owning resource, which may replace
// them with a newer part version.
func (c *Coordinator) SetVerifyCache(verify bool) { c.verifyCache = verify }

// VerifyCache reports whether cache verification is on.
func (c *Coordinator) VerifyCache() bool { return c.verifyCache }

func retrievalKey(itemID int64, parts []string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	return strconv.FormatInt(itemID, 10) + ":" + strings.Join(sorted, ",")
}

// RetrieveItems fetches parts for itemID from resourceName, blocking
// until the resource's response lands or the coordinator's timeout
// elapses. Concurrent callers for the same (itemID, parts) share one
// upstream call.
func (c *Coordinator) RetrieveItems(ctx context.Context, resourceName string, itemID int64, remoteID string, parts []string) ([]model.Part, error) {
	key := retrievalKey(itemID, parts)

	start := time.Now()
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		resp, err := c.gw.RetrieveItems(reqCtx, &gateway.RetrieveItemsRequest{
			ResourceName: resourceName,
			ItemIDs:      []int64{itemID},
			RemoteIDs:    []string{remoteID},
			PartNames:    parts,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve items: %w: %w", model.ErrResourceUnavailable, err)
		}
		for _, it := range resp.Items {
			if it.ID == itemID {
				return it.Parts, nil
			}
		}
		return nil, fmt.Errorf("retrieve items: resource %q did not return item %d: %w", resourceName, itemID, model.ErrResourceUnavailable)
	})
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	if shared {
		metrics.RetrievalCoalescedTotal.Inc()
		itemLogger := log.WithItemID(itemID)
		itemLogger.Debug().Str("parts_key", key).Msg("retrieval coalesced")
	}
	if err != nil {
		return nil, err
	}
	return v.([]model.Part), nil
}

// ChangeCommitted notifies resourceName that a local write to itemID
// landed, so its agent can replay it upstream. Unlike RetrieveItems/
// RetrieveCollections this is a one-shot notification, not
// deduplicated: every commit is a distinct event a coalesced call
// would silently drop.
func (c *Coordinator) ChangeCommitted(ctx context.Context, resourceName string, itemID int64, remoteID string, changedParts []string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.gw.ChangeCommitted(reqCtx, &gateway.ChangeCommittedRequest{
		ResourceName: resourceName,
		ItemID:       itemID,
		RemoteID:     remoteID,
		ChangedParts: changedParts,
	})
	if err != nil {
		return fmt.Errorf("change committed: %w: %w", model.ErrResourceUnavailable, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("change committed: resource %q rejected: %s: %w", resourceName, resp.Reason, model.ErrResourceUnavailable)
	}
	return nil
}

// ChangeCommittedCollection is ChangeCommitted's collection-level
// counterpart: it replays a collection's remoteId/remoteRevision to
// resourceName after a move lands the collection under it.
func (c *Coordinator) ChangeCommittedCollection(ctx context.Context, resourceName string, collectionID int64, remoteID string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.gw.ChangeCommitted(reqCtx, &gateway.ChangeCommittedRequest{
		ResourceName: resourceName,
		CollectionID: collectionID,
		RemoteID:     remoteID,
	})
	if err != nil {
		return fmt.Errorf("change committed collection: %w: %w", model.ErrResourceUnavailable, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("change committed collection: resource %q rejected: %s: %w", resourceName, resp.Reason, model.ErrResourceUnavailable)
	}
	return nil
}

// RetrieveCollections refreshes the children of collectionID (or the
// resource's roots when collectionID is 0) from resourceName.
func (c *Coordinator) RetrieveCollections(ctx context.Context, resourceName string, collectionID int64) ([]model.Collection, error) {
	key := "collections:" + resourceName + ":" + strconv.FormatInt(collectionID, 10)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		resp, err := c.gw.RetrieveCollections(reqCtx, &gateway.RetrieveCollectionsRequest{
			ResourceName: resourceName,
			CollectionID: collectionID,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve collections: %w: %w", model.ErrResourceUnavailable, err)
		}
		return resp.Collections, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Collection), nil
}
