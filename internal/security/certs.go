package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// Certificate rotation threshold: rotate when less than 30 days remaining
	certRotationThreshold = 30 * 24 * time.Hour

	// Default certificate root under the operator's home directory
	defaultCertRoot = ".itemstored/certs"

	caCertFile = "ca.crt"
)

// AgentKind distinguishes the two kinds of leaf certificates the CA
// issues: resource agents (which also serve inbound callbacks, so their
// certs carry server auth) and CLI clients (client auth only).
type AgentKind string

const (
	AgentResource AgentKind = "resource"
	AgentClient   AgentKind = "client"
)

// CertDir locates one agent's certificate material on disk: a leaf
// cert/key pair named after the agent kind, plus the CA certificate the
// peer is verified against.
type CertDir struct {
	Path string
	Kind AgentKind
}

// ResourceCertDir returns the default material location for the named
// resource agent, under the operator's home directory.
func ResourceCertDir(resourceName string) (CertDir, error) {
	root, err := certRoot()
	if err != nil {
		return CertDir{}, err
	}
	return CertDir{
		Path: filepath.Join(root, string(AgentResource)+"-"+resourceName),
		Kind: AgentResource,
	}, nil
}

// ClientCertDir returns the default material location for a CLI client.
func ClientCertDir(clientID string) (CertDir, error) {
	root, err := certRoot()
	if err != nil {
		return CertDir{}, err
	}
	return CertDir{
		Path: filepath.Join(root, string(AgentClient)+"-"+clientID),
		Kind: AgentClient,
	}, nil
}

// DirAt wraps an explicit directory (e.g. from a --cert-dir flag) as a
// CertDir of the given kind.
func DirAt(path string, kind AgentKind) CertDir {
	return CertDir{Path: path, Kind: kind}
}

// ListCertDirs enumerates every agent certificate directory under the
// default root, sorted by path. A missing root is an empty listing, not
// an error.
func ListCertDirs() ([]CertDir, error) {
	root, err := certRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cert root %s: %w", root, err)
	}

	var dirs []CertDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		kind := AgentResource
		if len(e.Name()) >= len(AgentClient) && e.Name()[:len(AgentClient)] == string(AgentClient) {
			kind = AgentClient
		}
		dirs = append(dirs, CertDir{Path: filepath.Join(root, e.Name()), Kind: kind})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })
	return dirs, nil
}

func certRoot() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultCertRoot), nil
}

// Name reports the agent name the directory was created for, derived
// from the kind-prefixed directory name.
func (d CertDir) Name() string {
	base := filepath.Base(d.Path)
	prefix := string(d.Kind) + "-"
	if len(base) > len(prefix) && base[:len(prefix)] == prefix {
		return base[len(prefix):]
	}
	return base
}

func (d CertDir) certPath() string { return filepath.Join(d.Path, string(d.Kind)+".crt") }
func (d CertDir) keyPath() string  { return filepath.Join(d.Path, string(d.Kind)+".key") }
func (d CertDir) caPath() string   { return filepath.Join(d.Path, caCertFile) }

// Save writes the leaf certificate and its RSA private key under the
// directory, creating it as needed.
func (d CertDir) Save(cert *tls.Certificate) error {
	if err := os.MkdirAll(d.Path, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})
	if err := os.WriteFile(d.certPath(), certPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(d.keyPath(), keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// SaveCA writes the DER-encoded CA certificate alongside the leaf
// material, world-readable since it carries no secret.
func (d CertDir) SaveCA(caCert []byte) error {
	if err := os.MkdirAll(d.Path, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	caPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: caCert,
	})
	if err := os.WriteFile(d.caPath(), caPEM, 0644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	return nil
}

// Load reads the leaf cert/key pair back, populating Leaf so callers can
// inspect the parsed certificate without re-decoding.
func (d CertDir) Load() (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(d.certPath(), d.keyPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// LoadCA reads and parses the CA certificate.
func (d CertDir) LoadCA() (*x509.Certificate, error) {
	caPEM, err := os.ReadFile(d.caPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return caCert, nil
}

// Exists reports whether the directory holds a complete set of material:
// leaf cert, leaf key, and CA cert.
func (d CertDir) Exists() bool {
	for _, p := range []string{d.certPath(), d.keyPath(), d.caPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes the directory and everything in it.
func (d CertDir) Remove() error {
	return os.RemoveAll(d.Path)
}

// CertSummary is the inspect-friendly view of one issued certificate.
type CertSummary struct {
	Subject       string
	Issuer        string
	SerialNumber  string
	NotBefore     time.Time
	NotAfter      time.Time
	Remaining     time.Duration
	NeedsRotation bool
	IsCA          bool
	KeyUsage      []string
	ExtKeyUsage   []string
}

// Summarize extracts the fields an operator cares about from cert. A nil
// cert yields a zero summary flagged as needing rotation.
func Summarize(cert *x509.Certificate) CertSummary {
	if cert == nil {
		return CertSummary{NeedsRotation: true}
	}
	remaining := time.Until(cert.NotAfter)
	return CertSummary{
		Subject:       cert.Subject.CommonName,
		Issuer:        cert.Issuer.CommonName,
		SerialNumber:  cert.SerialNumber.String(),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		Remaining:     remaining,
		NeedsRotation: remaining < certRotationThreshold,
		IsCA:          cert.IsCA,
		KeyUsage:      describeKeyUsage(cert.KeyUsage),
		ExtKeyUsage:   describeExtKeyUsage(cert.ExtKeyUsage),
	}
}

// ValidateChain verifies that cert is signed by ca and usable for mTLS.
func ValidateChain(cert, ca *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if ca == nil {
		return fmt.Errorf("CA certificate is nil")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}

	return nil
}

// describeKeyUsage converts x509.KeyUsage to human-readable strings
func describeKeyUsage(usage x509.KeyUsage) []string {
	var usages []string
	if usage&x509.KeyUsageDigitalSignature != 0 {
		usages = append(usages, "DigitalSignature")
	}
	if usage&x509.KeyUsageKeyEncipherment != 0 {
		usages = append(usages, "KeyEncipherment")
	}
	if usage&x509.KeyUsageCertSign != 0 {
		usages = append(usages, "CertSign")
	}
	if usage&x509.KeyUsageCRLSign != 0 {
		usages = append(usages, "CRLSign")
	}
	return usages
}

// describeExtKeyUsage converts []x509.ExtKeyUsage to human-readable strings
func describeExtKeyUsage(usages []x509.ExtKeyUsage) []string {
	var result []string
	for _, usage := range usages {
		switch usage {
		case x509.ExtKeyUsageClientAuth:
			result = append(result, "ClientAuth")
		case x509.ExtKeyUsageServerAuth:
			result = append(result, "ServerAuth")
		}
	}
	return result
}
