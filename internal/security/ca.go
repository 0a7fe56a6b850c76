package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/cuemby/itemstored/internal/store"
)

// settingsKeyCA is the settings-bucket key the CA's serialized state is
// persisted under.
const settingsKeyCA = "gateway_ca"

// CertAuthority issues and verifies the mTLS certificates resource agents
// and CLI clients use to authenticate on the resource gateway.
type CertAuthority struct {
	rootCert  *x509.Certificate
	rootKey   *rsa.PrivateKey
	store     *store.Store
	certCache map[string]*CachedCert
	mu        sync.RWMutex
}

// CachedCert is the most recently issued certificate for a resource/client
// id, kept in memory for GetCachedCert; issuing again for the same id
// mints a new certificate and replaces the entry.
type CachedCert struct {
	Cert      *x509.Certificate
	Key       *rsa.PrivateKey
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// caData is the serialized CA state persisted to the settings bucket.
type caData struct {
	RootCertDER []byte
	RootKeyDER  []byte
}

const (
	rootCAValidity       = 10 * 365 * 24 * time.Hour
	resourceCertValidity = 90 * 24 * time.Hour
	rootKeySize          = 4096
	resourceKeySize      = 2048
)

// NewCertAuthority returns a CertAuthority backed by st for persistence.
func NewCertAuthority(st *store.Store) *CertAuthority {
	return &CertAuthority{store: st, certCache: make(map[string]*CachedCert)}
}

// Initialize generates a new root CA keypair in memory.
func (ca *CertAuthority) Initialize() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return fmt.Errorf("failed to generate root key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"itemstored"},
			CommonName:   "itemstored Gateway CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("failed to create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// LoadFromStore loads a previously persisted CA.
func (ca *CertAuthority) LoadFromStore(ctx context.Context) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	raw, err := ca.store.SettingsGet(ctx, nil, settingsKeyCA)
	if err != nil {
		return fmt.Errorf("failed to get CA from storage: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("CA not found in storage")
	}

	var cd caData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return fmt.Errorf("failed to unmarshal CA data: %w", err)
	}

	decryptedKey, err := Decrypt(cd.RootKeyDER)
	if err != nil {
		return fmt.Errorf("failed to decrypt root key: %w", err)
	}
	rootCert, err := x509.ParseCertificate(cd.RootCertDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}
	rootKey, err := x509.ParsePKCS1PrivateKey(decryptedKey)
	if err != nil {
		return fmt.Errorf("failed to parse root key: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// SaveToStore persists the CA's current state.
func (ca *CertAuthority) SaveToStore(ctx context.Context) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return fmt.Errorf("CA not initialized")
	}

	rootKeyDER := x509.MarshalPKCS1PrivateKey(ca.rootKey)
	encryptedKey, err := Encrypt(rootKeyDER)
	if err != nil {
		return fmt.Errorf("failed to encrypt root key: %w", err)
	}

	cd := caData{RootCertDER: ca.rootCert.Raw, RootKeyDER: encryptedKey}
	raw, err := json.Marshal(cd)
	if err != nil {
		return fmt.Errorf("failed to marshal CA data: %w", err)
	}

	if err := ca.store.SettingsPut(ctx, nil, settingsKeyCA, raw); err != nil {
		return fmt.Errorf("failed to save CA to storage: %w", err)
	}
	return nil
}

// IssueResourceCertificate issues a client+server auth certificate for a
// resource agent registering on the gateway.
func (ca *CertAuthority) IssueResourceCertificate(resourceName string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	resourceKey, err := rsa.GenerateKey(rand.Reader, resourceKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate resource key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"itemstored"},
			CommonName:   fmt.Sprintf("resource-%s", resourceName),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(resourceCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ipAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &resourceKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource certificate: %w", err)
	}
	resourceCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resource certificate: %w", err)
	}

	tlsCert := &tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: resourceKey, Leaf: resourceCert}
	ca.cacheCertificate(resourceName, resourceCert, resourceKey)
	return tlsCert, nil
}

// IssueClientCertificate issues a client-auth-only certificate for a CLI
// or other management client.
func (ca *CertAuthority) IssueClientCertificate(clientID string) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	clientKey, err := rsa.GenerateKey(rand.Reader, resourceKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"itemstored"},
			CommonName:   fmt.Sprintf("cli-%s", clientID),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(resourceCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &clientKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create client certificate: %w", err)
	}
	clientCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate: %w", err)
	}

	tlsCert := &tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: clientKey, Leaf: clientCert}
	ca.cacheCertificate(clientID, clientCert, clientKey)
	return tlsCert, nil
}

// VerifyCertificate checks cert against the root CA.
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// GetRootCACert returns the root CA certificate in DER format.
func (ca *CertAuthority) GetRootCACert() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.rootCert == nil {
		return nil
	}
	return ca.rootCert.Raw
}

// IsInitialized reports whether the CA has a root keypair loaded.
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

func (ca *CertAuthority) cacheCertificate(id string, cert *x509.Certificate, key *rsa.PrivateKey) {
	ca.certCache[id] = &CachedCert{Cert: cert, Key: key, IssuedAt: cert.NotBefore, ExpiresAt: cert.NotAfter}
}

// GetCachedCert retrieves a previously issued certificate by id.
func (ca *CertAuthority) GetCachedCert(id string) (*CachedCert, bool) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	cert, exists := ca.certCache[id]
	return cert, exists
}
