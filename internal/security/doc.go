// Package security provides the cryptographic services the resource
// gateway needs: a certificate authority issuing mTLS certificates for
// resource agents and CLI clients, file-based certificate
// storage/rotation helpers, and AES-256-GCM encryption for resource
// agent credentials at rest.
//
// All of it is keyed off a single server encryption key, a 32-byte key
// derived from the server's instance id via DeriveKeyFromServerID and
// installed with SetServerEncryptionKey during startup. That key encrypts
// the CA's root private key before it is persisted to the store, and a
// SecretsManager seeded from the same key (or an operator-supplied
// password) encrypts individual resource credential blobs.
package security
