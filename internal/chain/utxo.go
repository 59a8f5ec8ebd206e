// Package chain implements the marketplace's blockchain data model: UTXOs,
// transfers, mints, blocks and the chain itself, along with validation,
// mining and the chain-replacement policy. Grounded on the reference
// stack's core/coin.go (mint bookkeeping, defensive address checks) and
// core/consensus.go (proof-of-work nonce search, difficulty-as-hex-prefix).
package chain

import (
	"errors"

	"inferex/internal/hashing"
	"inferex/internal/keys"
)

// Sentinel validation errors, matched with errors.Is by callers per
// SPEC_FULL.md §7's error taxonomy.
var (
	ErrHashInvalid      = errors.New("chain: hash invalid")
	ErrInvalidSignature = errors.New("chain: invalid signature")
	ErrSignatureExists  = errors.New("chain: signature already present")
	ErrSigningError     = errors.New("chain: signing error")
	ErrChainInvalid     = errors.New("chain: invalid chain")
)

// UTXO is an unspent output: an amount of tokens owned by a public key,
// referenced by hash when later consumed as a transfer input.
type UTXO struct {
	Hash     string               `json:"hash"`
	Amount   float64              `json:"amount"`
	Receiver keys.PublicKeyBytes  `json:"receiver"`
}

// NewUTXO constructs a UTXO with its hash computed from (amount, receiver).
func NewUTXO(amount float64, receiver keys.PublicKeyBytes) UTXO {
	u := UTXO{Amount: amount, Receiver: receiver}
	u.Hash = u.computeHash()
	return u
}

func (u UTXO) computeHash() string {
	return hashing.Digest(
		hashing.Scalar(u.Amount),
		hashing.Bytes(u.Receiver[:]),
	)
}

// HashRef implements hashing.Hashable.
func (u UTXO) HashRef() string { return u.Hash }

// Valid recomputes the hash and checks the amount is non-negative.
func (u UTXO) Valid() bool {
	if u.Amount < 0 {
		return false
	}
	return u.Hash == u.computeHash()
}

var _ hashing.Hashable = UTXO{}
