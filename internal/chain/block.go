package chain

import (
	"context"
	"encoding/json"
	"strings"

	"inferex/internal/container"
	"inferex/internal/hashing"
	"inferex/internal/keys"
)

// Block is a signed block of completed transfers plus a mint, chained by
// previous hash. Grounded on the reference stack's core/consensus.go block
// header / PoW sealing pattern, generalized from its sub-block/main-block
// hierarchy down to spec.md's flat block list.
type Block struct {
	Hash         string                              `json:"hash"`
	Index        uint64                              `json:"index"`
	Timestamp    int64                               `json:"timestamp"`
	PreviousHash string                              `json:"previous_hash"`
	Nonce        uint64                              `json:"nonce"`
	Transfers    *container.MapVec[string, Transfer] `json:"-"`
	Mint         Mint                                `json:"mint"`
	Signature    []byte                              `json:"signature,omitempty"`
}

type blockWire struct {
	Hash         string     `json:"hash"`
	Index        uint64     `json:"index"`
	Timestamp    int64      `json:"timestamp"`
	PreviousHash string     `json:"previous_hash"`
	Nonce        uint64     `json:"nonce"`
	Transfers    []Transfer `json:"transfers"`
	Mint         Mint       `json:"mint"`
	Signature    []byte     `json:"signature,omitempty"`
}

// MarshalJSON flattens Transfers to its insertion-ordered list.
func (b Block) MarshalJSON() ([]byte, error) {
	w := blockWire{
		Hash: b.Hash, Index: b.Index, Timestamp: b.Timestamp, PreviousHash: b.PreviousHash,
		Nonce: b.Nonce, Mint: b.Mint, Signature: b.Signature,
	}
	if b.Transfers != nil {
		w.Transfers = b.Transfers.Values()
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds Transfers from the wire slice, preserving order.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Hash, b.Index, b.Timestamp, b.PreviousHash, b.Nonce, b.Mint, b.Signature =
		w.Hash, w.Index, w.Timestamp, w.PreviousHash, w.Nonce, w.Mint, w.Signature
	b.Transfers = container.NewMapVec[string, Transfer]()
	for _, t := range w.Transfers {
		b.Transfers.Set(t.Hash, t)
	}
	return nil
}

// NewUnsignedBlock constructs a block with a fresh Mint and computed hash.
// nonce is the starting nonce for Mine to search from (normally 0).
func NewUnsignedBlock(index uint64, timestamp int64, nonce uint64, previousHash string, transfers *container.MapVec[string, Transfer], miner keys.PublicKeyBytes, shares []ProviderShare) *Block {
	if transfers == nil {
		transfers = container.NewMapVec[string, Transfer]()
	}
	b := &Block{
		Index: index, Timestamp: timestamp, Nonce: nonce, PreviousHash: previousHash,
		Transfers: transfers, Mint: NewMint(timestamp, miner, shares),
	}
	b.Hash = b.computeHash()
	return b
}

func (b *Block) computeHash() string {
	var xfers []Transfer
	if b.Transfers != nil {
		xfers = b.Transfers.Values()
	}
	return hashing.Digest(
		hashing.Scalar(b.Index),
		hashing.Scalar(b.Timestamp),
		hashing.Bytes([]byte(b.PreviousHash)),
		hashing.Scalar(b.Nonce),
		hashing.Sequence(xfers),
		hashing.Bytes([]byte(b.Mint.Hash)),
	)
}

// HashRef implements hashing.Hashable.
func (b *Block) HashRef() string { return b.Hash }

// Valid recomputes the hash; it does not check signature or transfer/mint
// validity (use ValidateStructure / ValidateLink for that).
func (b *Block) Valid() bool { return b.Hash == b.computeHash() }

// Mine increments Nonce and recomputes Hash until the hex prefix of length
// difficulty is all zeros. It is a pure CPU loop; ctx is checked every 4096
// iterations so a caller can cancel a long search (mining runs on its own
// goroutine per SPEC_FULL.md §5, never on the main loop).
func (b *Block) Mine(ctx context.Context, difficulty int) error {
	target := strings.Repeat("0", difficulty)
	for i := uint64(0); ; i++ {
		if i%4096 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		b.Hash = b.computeHash()
		if strings.HasPrefix(b.Hash, target) {
			return nil
		}
		b.Nonce++
	}
}

// Sign consumes an unsigned block and returns a signed one. It fails with
// ErrSignatureExists if already signed, ErrHashInvalid if the hash is
// stale, and ErrSigningError if kp's public key does not match the mint's
// miner output (the reference stack's core/coin.go validates actor
// identity before mutating ledger state the same way).
func (b *Block) Sign(kp *keys.Keypair) error {
	if b.Signature != nil {
		return ErrSignatureExists
	}
	if !b.Valid() {
		return ErrHashInvalid
	}
	minerOut, ok := b.minerOutput()
	if !ok || minerOut.Receiver != kp.Public {
		return ErrSigningError
	}
	b.Signature = kp.Sign([]byte(b.Hash))
	return nil
}

// minerOutput returns the mint output paying MinerShare*TotalIncentive,
// i.e. the block's declared miner.
func (b *Block) minerOutput() (UTXO, bool) {
	if b.Mint.Outputs == nil {
		return UTXO{}, false
	}
	for _, u := range b.Mint.Outputs.Values() {
		if nearlyEqual(u.Amount, MinerShare*TotalIncentive) {
			return u, true
		}
	}
	return UTXO{}, false
}

// MinerKey returns the public key the block's mint pays as miner.
func (b *Block) MinerKey() (keys.PublicKeyBytes, bool) {
	u, ok := b.minerOutput()
	return u.Receiver, ok
}

// VerifySignature checks Signature verifies under the mint's declared
// miner key.
func (b *Block) VerifySignature() bool {
	if b.Signature == nil {
		return false
	}
	minerKey, ok := b.MinerKey()
	if !ok {
		return false
	}
	return keys.Verify(minerKey, []byte(b.Hash), b.Signature)
}

// ValidateStructure checks invariants (a)-(b)-(e): every transfer is valid
// against resolve, the mint is valid, and the signature verifies.
func (b *Block) ValidateStructure(resolve func(hash string) (UTXO, bool)) bool {
	if !b.Valid() {
		return false
	}
	if !b.Mint.Valid() {
		return false
	}
	if b.Transfers != nil {
		for _, t := range b.Transfers.Values() {
			if !t.ValidateAgainst(resolve) {
				return false
			}
		}
	}
	return b.VerifySignature()
}
