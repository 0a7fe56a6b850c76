package resourceclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Client dials the itemstored resource gateway and hosts this agent's
// own ResourceGateway implementation for inbound calls.
type Client struct {
	name     string
	conn     *grpc.ClientConn
	server   *grpc.Server
	cert     tls.Certificate
	rootPool *x509.CertPool
}

// Connect loads the resource agent's certificate from certDir (issued
// previously by the server's CertAuthority, e.g. via a provisioning step
// outside this package) and dials addr, the itemstored gateway's listen
// address.
func Connect(addr, resourceName, certDir string) (*Client, error) {
	dir := security.DirAt(certDir, security.AgentResource)
	if !dir.Exists() {
		return nil, fmt.Errorf("resourceclient: certificate not found at %s", certDir)
	}

	cert, err := dir.Load()
	if err != nil {
		return nil, fmt.Errorf("resourceclient: load certificate: %w", err)
	}
	caCert, err := dir.LoadCA()
	if err != nil {
		return nil, fmt.Errorf("resourceclient: load CA certificate: %w", err)
	}
	rootPool := x509.NewCertPool()
	rootPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      rootPool,
		MinVersion:   tls.VersionTLS13,
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("resourceclient: dial %s: %w", addr, err)
	}

	return &Client{name: resourceName, conn: conn, cert: *cert, rootPool: rootPool}, nil
}

// Close stops Serve, if running, and closes the connection to the
// gateway.
func (c *Client) Close() error {
	if c.server != nil {
		c.server.GracefulStop()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Register tells the gateway this resource is online, advertising
// callbackAddr as the address the gateway should dial back to for
// RetrieveItems/RetrieveCollections/ChangeCommitted.
func (c *Client) Register(ctx context.Context, capabilities []string, callbackAddr string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &gateway.RegisterRequest{
		ResourceName: c.name,
		Capabilities: capabilities,
		Address:      callbackAddr,
	}
	resp := new(gateway.RegisterResponse)
	if err := c.conn.Invoke(ctx, "/"+gateway.ServiceName+"/Register", req, resp); err != nil {
		return fmt.Errorf("resourceclient: register %q: %w", c.name, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("resourceclient: registration rejected: %s", resp.Reason)
	}
	return nil
}

// Serve starts a ResourceGateway listener on addr, handling inbound
// RetrieveItems/RetrieveCollections/ChangeCommitted calls from the
// gateway by dispatching to impl. It blocks until the listener fails or
// Close is called; callers typically run it in its own goroutine after
// Register succeeds.
func (c *Client) Serve(addr string, impl gateway.ResourceGateway) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("resourceclient: listen on %s: %w", addr, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{c.cert},
		ClientCAs:    c.rootPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
	c.server = grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	gateway.RegisterResourceGatewayServer(c.server, impl)

	return c.server.Serve(lis)
}
