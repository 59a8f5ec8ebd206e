package chain

import (
	"golang.org/x/crypto/sha3"

	"inferex/internal/keys"
)

// bootstrapSeedMaterial deterministically derives the bootstrap node's
// Ed25519 seed. Every node must compute the same genesis block, so the
// seed cannot be random; it is fixed by hashing a well-known string, per
// spec.md §6 "a bootstrap node's keypair ... or embedded constant".
var bootstrapSeedMaterial = []byte("inferex/bootstrap-genesis-v1")

// BootstrapKeypair returns the well-known genesis keypair. Every node
// derives the same genesis block from this key without needing to
// exchange anything.
func BootstrapKeypair() *keys.Keypair {
	seed := sha3.Sum256(bootstrapSeedMaterial)
	kp, err := keys.FromSeed(seed[:])
	if err != nil {
		// sha3.Sum256 always yields exactly ed25519.SeedSize bytes; this
		// can only fail if that invariant is broken.
		panic("chain: bootstrap seed derivation failed: " + err.Error())
	}
	return kp
}

// Genesis constructs the fixed genesis block: index 0, empty previous
// hash, no transfers, and a mint paying only the miner share to the
// bootstrap key (see NewMint's no-providers case), signed by the
// bootstrap keypair.
func Genesis() *Block {
	kp := BootstrapKeypair()
	b := NewUnsignedBlock(0, 0, 0, "", nil, kp.Public, nil)
	if err := b.Sign(kp); err != nil {
		panic("chain: genesis signing failed: " + err.Error())
	}
	return b
}
