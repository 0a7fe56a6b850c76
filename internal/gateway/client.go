package gateway

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// dial returns a cached (or freshly established) client connection to the
// resource agent registered as name, authenticated with the gateway's own
// certificate against the shared root CA.
func (g *Gateway) dial(name string) (*grpc.ClientConn, error) {
	g.mu.RLock()
	reg, ok := g.registry[name]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gateway: resource %q is not registered", name)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.conn != nil {
		return reg.conn, nil
	}
	if reg.address == "" {
		return nil, fmt.Errorf("gateway: resource %q has no callback address", name)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{g.cert},
		RootCAs:      g.rootPool,
		MinVersion:   tls.VersionTLS13,
	}
	conn, err := grpc.NewClient(reg.address,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial resource %q at %s: %w", name, reg.address, err)
	}
	reg.conn = conn
	return conn, nil
}

// RetrieveItems calls out to the registered resource to fetch full item
// payloads.
func (g *Gateway) RetrieveItems(ctx context.Context, req *RetrieveItemsRequest) (*RetrieveItemsResponse, error) {
	conn, err := g.dial(req.ResourceName)
	if err != nil {
		return nil, err
	}
	resp := new(RetrieveItemsResponse)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/RetrieveItems", req, resp); err != nil {
		return nil, fmt.Errorf("gateway: RetrieveItems on %q: %w", req.ResourceName, err)
	}
	return resp, nil
}

// RetrieveCollections calls out to the registered resource to enumerate
// or refresh collections.
func (g *Gateway) RetrieveCollections(ctx context.Context, req *RetrieveCollectionsRequest) (*RetrieveCollectionsResponse, error) {
	conn, err := g.dial(req.ResourceName)
	if err != nil {
		return nil, err
	}
	resp := new(RetrieveCollectionsResponse)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/RetrieveCollections", req, resp); err != nil {
		return nil, fmt.Errorf("gateway: RetrieveCollections on %q: %w", req.ResourceName, err)
	}
	return resp, nil
}

// ChangeCommitted notifies the registered resource that a local change
// was committed and should be replayed upstream.
func (g *Gateway) ChangeCommitted(ctx context.Context, req *ChangeCommittedRequest) (*ChangeCommittedResponse, error) {
	conn, err := g.dial(req.ResourceName)
	if err != nil {
		return nil, err
	}
	resp := new(ChangeCommittedResponse)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/ChangeCommitted", req, resp); err != nil {
		return nil, fmt.Errorf("gateway: ChangeCommitted on %q: %w", req.ResourceName, err)
	}
	return resp, nil
}
