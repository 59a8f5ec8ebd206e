// Package keys implements the marketplace's identity primitives: an Ed25519
// keypair, the public-key encoding used as a UTXO receiver, and the peer
// identifier derived from it. Every node owns exactly one keypair for its
// process lifetime.
package keys

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"encoding/hex"
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
)

var logger = log.New()

// SetLogger overrides the package logger, matching the reference stack's
// SetWalletLogger convention for low-tier packages that log their own
// lifecycle events.
func SetLogger(l *log.Logger) { logger = l }

// PublicKeyBytes is the canonical encoding of an Ed25519 public key, used as
// a UTXO receiver and for signature verification. Equality is byte-equality.
type PublicKeyBytes [ed25519.PublicKeySize]byte

// Hex returns the lower case hex encoding of the key.
func (p PublicKeyBytes) Hex() string { return hex.EncodeToString(p[:]) }

// MarshalText renders the key as hex so it serializes as a JSON string
// (both as a field value and as a map key) instead of an array of numbers.
func (p PublicKeyBytes) MarshalText() ([]byte, error) {
	return []byte(p.Hex()), nil
}

// UnmarshalText parses the hex encoding produced by MarshalText.
func (p *PublicKeyBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(p) {
		return errors.New("keys: wrong public key length")
	}
	copy(p[:], b)
	return nil
}

// ParseHex decodes a hex-encoded public key, as received over JSON-RPC or
// the CLI.
func ParseHex(s string) (PublicKeyBytes, error) {
	var pb PublicKeyBytes
	raw, err := hex.DecodeString(s)
	if err != nil {
		return pb, err
	}
	if len(raw) != len(pb) {
		return pb, errors.New("keys: wrong public key length")
	}
	copy(pb[:], raw)
	return pb, nil
}

// PeerID is a stable identifier derived from a node's public key. Equality
// of PeerID defines peer identity across gossip, request/response and
// streams.
type PeerID string

// DerivePeerID derives the peer identifier for a public key. It is a pure
// function of the key bytes so any two nodes agree on a given peer's ID
// without needing to exchange anything beyond the key itself.
func DerivePeerID(pub PublicKeyBytes) PeerID {
	return PeerID(pub.Hex())
}

// Keypair is the Ed25519 private+public pair a node signs with.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  PublicKeyBytes
}

// Generate creates a fresh random keypair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, err
	}
	var pb PublicKeyBytes
	copy(pb[:], pub)
	logger.Infof("keys: generated keypair, peer=%s", DerivePeerID(pb))
	return &Keypair{Private: priv, Public: pb}, nil
}

// FromSeed builds a keypair from a 32-byte Ed25519 seed, e.g. as loaded from
// a key file. This is the contract spec.md describes for "keypair loaded
// from a 32-byte file"; the concrete file-loading mechanism lives in
// cmd/inferex, outside this package.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("keys: seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	var pb PublicKeyBytes
	copy(pb[:], pub)
	return &Keypair{Private: priv, Public: pb}, nil
}

// LoadFromFile reads a 32-byte raw seed file and builds a keypair from it.
func LoadFromFile(path string) (*Keypair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromSeed(b)
}

// PeerID returns the peer identifier derived from this keypair's public key.
func (k *Keypair) PeerID() PeerID { return DerivePeerID(k.Public) }

// Sign signs raw bytes (the caller's entity hash, as hex bytes) with the
// keypair's private key.
func (k *Keypair) Sign(digest []byte) []byte {
	return ed25519.Sign(k.Private, digest)
}

// Verify checks a signature over digest under the given public key.
func Verify(pub PublicKeyBytes, digest, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), digest, sig)
}
