package resourceclient

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/cuemby/itemstored/internal/gateway"
	"github.com/cuemby/itemstored/internal/security"
	"github.com/cuemby/itemstored/internal/store"
)

type fakeResourceGateway struct{}

func (fakeResourceGateway) RetrieveItems(context.Context, *gateway.RetrieveItemsRequest) (*gateway.RetrieveItemsResponse, error) {
	return &gateway.RetrieveItemsResponse{}, nil
}

func (fakeResourceGateway) RetrieveCollections(context.Context, *gateway.RetrieveCollectionsRequest) (*gateway.RetrieveCollectionsResponse, error) {
	return &gateway.RetrieveCollectionsResponse{}, nil
}

func (fakeResourceGateway) ChangeCommitted(context.Context, *gateway.ChangeCommittedRequest) (*gateway.ChangeCommittedResponse, error) {
	return &gateway.ChangeCommittedResponse{Accepted: true}, nil
}

func issueTestCert(t *testing.T) string {
	t.Helper()

	key := security.DeriveKeyFromServerID("resourceclient-test-server")
	if err := security.SetServerEncryptionKey(key); err != nil {
		t.Fatalf("failed to set server encryption key: %v", err)
	}

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ca := security.NewCertAuthority(st)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	cert, err := ca.IssueResourceCertificate("test-resource", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}

	certDir, err := os.MkdirTemp("", "resourceclient-cert-test-*")
	if err != nil {
		t.Fatalf("failed to create cert dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(certDir) })

	dir := security.DirAt(certDir, security.AgentResource)
	if err := dir.Save(cert); err != nil {
		t.Fatalf("failed to save certificate: %v", err)
	}
	if err := dir.SaveCA(ca.GetRootCACert()); err != nil {
		t.Fatalf("failed to save CA certificate: %v", err)
	}

	return certDir
}

func TestConnectFailsWithoutCertificate(t *testing.T) {
	_, err := Connect("127.0.0.1:0", "test-resource", t.TempDir())
	if err == nil {
		t.Fatal("expected error when certificate directory is empty")
	}
}

func TestConnectSucceedsWithIssuedCertificate(t *testing.T) {
	certDir := issueTestCert(t)

	client, err := Connect("127.0.0.1:0", "test-resource", certDir)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if client.conn == nil {
		t.Error("expected a non-nil connection")
	}
}

func TestServeRequiresListenableAddress(t *testing.T) {
	certDir := issueTestCert(t)

	client, err := Connect("127.0.0.1:0", "test-resource", certDir)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	done := make(chan error, 1)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	go func() {
		done <- client.Serve(addr, fakeResourceGateway{})
	}()

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	<-done
}
