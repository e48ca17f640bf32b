/*
Package security holds kvdeck's cryptographic helpers: TLS settings for
talking to the API server and AES-256-GCM sealing of data at rest.

# TLS

NewTLSConfig turns TLSOptions into a *tls.Config. With no option set it
returns nil and the HTTP transport keeps Go's defaults. A CA bundle extends
the system roots, so a private CA can sign the API server certificate
without hiding public ones.

	tlsConfig, err := security.NewTLSConfig(security.TLSOptions{
		CACert: "/etc/kvdeck/ca.pem",
	})

LoadCACertsFromFile and CertTimeRemaining let callers warn before a
configured CA expires.

# Sealing

SecretsManager encrypts with AES-256-GCM. Each ciphertext is the random
12-byte nonce followed by the sealed data:

	┌──────────────┬───────────────────────────────┐
	│ nonce (12 B) │ ciphertext + GCM tag (16 B)   │
	└──────────────┴───────────────────────────────┘

The key usually comes from a key file in the data directory. The file is
created with a random key and 0600 permissions on first use:

	sm, err := security.NewSecretsManagerFromKeyFile(filepath.Join(dataDir, "cookie.key"))
	if err != nil {
		return err
	}
	sealed, err := sm.EncryptSecret([]byte(jar))

Replacing the key file invalidates every sealed value. The transport then
discards the stored session and the user logs in again.
*/
package security
