package gateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
)

// registration is a resource agent's entry in the gateway's live registry.
type registration struct {
	mu           sync.Mutex
	address      string
	capabilities []string
	conn         *grpc.ClientConn
}

// Gateway is the server side of the out-of-band resource RPC channel.
// Resource agents dial in and call Register
// once at startup, passing the address of their own ResourceGateway
// listener; the itemstored server then dials back out to that address for
// RetrieveItems/RetrieveCollections/ChangeCommitted.
type Gateway struct {
	ca       *security.CertAuthority
	cert     tls.Certificate
	rootPool *x509.CertPool
	grpc     *grpc.Server

	mu       sync.RWMutex
	registry map[string]*registration
}

// NewGateway creates a Gateway whose listener and outbound dials are
// authenticated against ca, issuing itself a certificate under the
// identity "gateway-server".
func NewGateway(ca *security.CertAuthority) (*Gateway, error) {
	if !ca.IsInitialized() {
		return nil, fmt.Errorf("gateway: certificate authority not initialized")
	}

	tlsCert, err := ca.IssueResourceCertificate("gateway-server", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		return nil, fmt.Errorf("gateway: issue server certificate: %w", err)
	}

	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse root CA certificate: %w", err)
	}
	rootPool := x509.NewCertPool()
	rootPool.AddCert(rootCert)

	g := &Gateway{
		ca:       ca,
		cert:     *tlsCert,
		rootPool: rootPool,
		registry: make(map[string]*registration),
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{g.cert},
		ClientCAs:    rootPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
	creds := credentials.NewTLS(tlsConfig)
	g.grpc = grpc.NewServer(grpc.Creds(creds), grpc.UnaryInterceptor(MetricsInterceptor()))
	RegisterResourceGatewayServer(g.grpc, g)

	return g, nil
}

// Start listens on addr and serves resource registrations. It blocks
// until the listener fails or Stop is called.
func (g *Gateway) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}
	log.Info("resource gateway listening on " + addr)
	return g.grpc.Serve(lis)
}

// Stop gracefully stops the gateway's listener. It does not close
// outbound connections already dialed to registered resources.
func (g *Gateway) Stop() {
	if g.grpc != nil {
		g.grpc.GracefulStop()
	}
}

// Register is the inbound RPC a resource agent calls once at startup.
func (g *Gateway) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if req.ResourceName == "" {
		return &RegisterResponse{Accepted: false, Reason: "resource name required"}, nil
	}

	g.mu.Lock()
	g.registry[req.ResourceName] = &registration{capabilities: req.Capabilities, address: req.Address}
	g.mu.Unlock()

	log.Info("resource registered: " + req.ResourceName)
	return &RegisterResponse{Accepted: true}, nil
}

// RegisterAddress records or replaces the callback address the gateway
// dials for outbound RetrieveItems/RetrieveCollections/ChangeCommitted
// calls to resourceName, dropping any cached connection so the next call
// redials. It creates the registry entry if resourceName has not
// registered yet.
func (g *Gateway) RegisterAddress(resourceName, address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reg, ok := g.registry[resourceName]
	if !ok {
		reg = &registration{}
		g.registry[resourceName] = reg
	}
	reg.mu.Lock()
	reg.address = address
	reg.conn = nil
	reg.mu.Unlock()
}

// Unregister removes a resource from the registry and closes any cached
// outbound connection to it.
func (g *Gateway) Unregister(resourceName string) {
	g.mu.Lock()
	reg, ok := g.registry[resourceName]
	delete(g.registry, resourceName)
	g.mu.Unlock()
	if !ok {
		return
	}
	reg.mu.Lock()
	if reg.conn != nil {
		_ = reg.conn.Close()
	}
	reg.mu.Unlock()
}

// IsRegistered reports whether resourceName currently has a live
// registry entry.
func (g *Gateway) IsRegistered(resourceName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.registry[resourceName]
	return ok
}

// ResourceNames returns every currently registered resource name, for
// internal/health's connectivity probes to iterate over.
func (g *Gateway) ResourceNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.registry))
	for name := range g.registry {
		names = append(names, name)
	}
	return names
}

// Ping reports whether resourceName's RPC channel is alive: it dials (or
// reuses) the cached connection and kicks it out of Idle, then fails if
// the connection has settled into TransientFailure or Shutdown.
func (g *Gateway) Ping(resourceName string) error {
	conn, err := g.dial(resourceName)
	if err != nil {
		return err
	}
	switch state := conn.GetState(); state {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return fmt.Errorf("gateway: resource %q connection is %s", resourceName, state)
	case connectivity.Idle:
		conn.Connect()
	}
	return nil
}
