package transport

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/luxardolabs/luxanalytics-go/internal/config"
)

// verifyPeerCertificate builds a tls.Config.VerifyPeerCertificate callback
// enforcing pinning.PinnedSHA256. When ValidateChain is false only the leaf
// certificate (rawCerts[0]) is checked; otherwise every certificate offered
// by the peer must intersect the pinned set for at least one of them.
func verifyPeerCertificate(pinning *config.PinningConfig) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("transport: no certificates presented")
		}

		candidates := rawCerts
		if !pinning.ValidateChain {
			candidates = rawCerts[:1]
		}

		for _, der := range candidates {
			sum := sha256.Sum256(der)
			fingerprint := base64.StdEncoding.EncodeToString(sum[:])
			if _, ok := pinning.PinnedSHA256[fingerprint]; ok {
				return nil
			}
		}

		return fmt.Errorf("transport: no certificate matched the pinned SHA-256 set")
	}
}

// tlsConfigFor builds the *tls.Config used for a Configuration's pinning
// settings, or nil if pinning is not configured (standard trust evaluation
// applies).
func tlsConfigFor(pinning *config.PinningConfig) *tls.Config {
	if pinning == nil {
		return nil
	}

	cfg := &tls.Config{
		VerifyPeerCertificate: verifyPeerCertificate(pinning),
	}
	if pinning.AllowSelfSigned {
		// Custom verification above substitutes for standard trust
		// evaluation entirely, so the untrusted handshake result is
		// acceptable as long as a pinned fingerprint matches.
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
