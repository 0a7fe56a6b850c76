package gateway

import (
	"context"

	"github.com/cuemby/itemstored/internal/model"
)

// ResourceGateway is implemented by a resource agent process registered
// with the server. internal/retrieval dispatches item and collection
// fetches to the gateway currently registered for a resource; the server
// calls ChangeCommitted after a local write touching a linked item so the
// agent can replay it upstream.
type ResourceGateway interface {
	RetrieveItems(ctx context.Context, req *RetrieveItemsRequest) (*RetrieveItemsResponse, error)
	RetrieveCollections(ctx context.Context, req *RetrieveCollectionsRequest) (*RetrieveCollectionsResponse, error)
	ChangeCommitted(ctx context.Context, req *ChangeCommittedRequest) (*ChangeCommittedResponse, error)
}

// RetrieveItemsRequest asks a resource to fetch full payloads for the
// given items, restricted to the requested parts when non-empty.
type RetrieveItemsRequest struct {
	ResourceName string
	ItemIDs      []int64
	RemoteIDs    []string
	PartNames    []string
}

type RetrieveItemsResponse struct {
	Items []model.Item
}

// RetrieveCollectionsRequest asks a resource to enumerate (or refresh)
// the collections under CollectionID, or the resource's roots when zero.
type RetrieveCollectionsRequest struct {
	ResourceName string
	CollectionID int64
}

type RetrieveCollectionsResponse struct {
	Collections []model.Collection
}

// ChangeCommittedRequest notifies a resource that a local change to one
// of its items, or to a collection's own remote identity (a move that
// landed it under this resource), was committed and should be replayed
// upstream. Exactly one of ItemID or CollectionID is set; the unset one
// is left at its zero value.
type ChangeCommittedRequest struct {
	ResourceName string
	ItemID       int64
	CollectionID int64
	RemoteID     string
	ChangedParts []string
}

type ChangeCommittedResponse struct {
	Accepted bool
	Reason   string
}

// RegisterRequest is sent once by a resource agent when it dials in.
// Address is the agent's own ResourceGateway listener, which the server
// dials back out to for RetrieveItems/RetrieveCollections/ChangeCommitted.
type RegisterRequest struct {
	ResourceName string
	Capabilities []string
	Address      string
}

type RegisterResponse struct {
	Accepted bool
	Reason   string
}
