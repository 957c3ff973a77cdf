// Package security provides the deployment core's at-rest encryption
// primitive: AES-256-GCM secret sealing, used to protect ACME account
// private keys (see pkg/certs) before they are persisted through
// pkg/storage.
//
// The encryption key itself is operator-supplied (a 32-byte key or a
// passphrase hashed down to one by NewSecretsManagerFromPassphrase) and
// lives only in process memory; this package never stores it.
package security
