package gateway

import (
	"context"
	"testing"

	"github.com/cuemby/itemstored/internal/security"
	"github.com/cuemby/itemstored/internal/store"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	key := security.DeriveKeyFromServerID("gateway-test-server")
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

	g, err := NewGateway(ca)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return g
}

func TestRegisterAddsResourceToRegistry(t *testing.T) {
	g := newTestGateway(t)

	if g.IsRegistered("imap-1") {
		t.Fatal("resource should not be registered yet")
	}

	resp, err := g.Register(context.Background(), &RegisterRequest{ResourceName: "imap-1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !resp.Accepted {
		t.Error("expected registration to be accepted")
	}
	if !g.IsRegistered("imap-1") {
		t.Error("resource should be registered")
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	g := newTestGateway(t)

	resp, err := g.Register(context.Background(), &RegisterRequest{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if resp.Accepted {
		t.Error("expected registration with empty name to be rejected")
	}
}

func TestUnregisterRemovesResource(t *testing.T) {
	g := newTestGateway(t)

	if _, err := g.Register(context.Background(), &RegisterRequest{ResourceName: "imap-1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	g.Unregister("imap-1")

	if g.IsRegistered("imap-1") {
		t.Error("resource should no longer be registered")
	}
}

func TestRetrieveItemsFailsForUnregisteredResource(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.RetrieveItems(context.Background(), &RetrieveItemsRequest{ResourceName: "unknown"})
	if err == nil {
		t.Error("expected error for unregistered resource")
	}
}

func TestRetrieveItemsFailsWithoutCallbackAddress(t *testing.T) {
	g := newTestGateway(t)

	if _, err := g.Register(context.Background(), &RegisterRequest{ResourceName: "imap-1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := g.RetrieveItems(context.Background(), &RetrieveItemsRequest{ResourceName: "imap-1"})
	if err == nil {
		t.Error("expected error for resource with no callback address")
	}
}
