package chain

import (
	"encoding/json"

	"inferex/internal/container"
	"inferex/internal/hashing"
	"inferex/internal/keys"
)

const (
	// TotalIncentive is the fixed total tokens minted per block.
	TotalIncentive = 9999.0
	// MinerShare is the miner's fraction of TotalIncentive.
	MinerShare = 0.85
	// ProviderPoolShare is the fraction of TotalIncentive split among
	// providers whose completed transfers are included in the block.
	ProviderPoolShare = 0.15
)

// Mint is the block reward issuance: fixed total tokens paid to the miner
// and split with contributing providers.
type Mint struct {
	Hash      string                          `json:"hash"`
	Timestamp int64                           `json:"timestamp"`
	Outputs   *container.MapVec[string, UTXO] `json:"-"`
}

type mintWire struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Outputs   []UTXO `json:"outputs"`
}

// MarshalJSON flattens Outputs to its insertion-ordered UTXO list.
func (m Mint) MarshalJSON() ([]byte, error) {
	w := mintWire{Hash: m.Hash, Timestamp: m.Timestamp}
	if m.Outputs != nil {
		w.Outputs = m.Outputs.Values()
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds Outputs from the wire slice, preserving order.
func (m *Mint) UnmarshalJSON(b []byte) error {
	var w mintWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.Hash, m.Timestamp = w.Hash, w.Timestamp
	m.Outputs = container.NewMapVec[string, UTXO]()
	for _, u := range w.Outputs {
		m.Outputs.Set(u.Hash, u)
	}
	return nil
}

// ProviderShare is a provider's receiver key and its fractional share
// (0..1) of the provider pool, per SPEC_FULL.md §4.7/§9.b. Shares across
// all entries passed to NewMint must sum to 1.0.
type ProviderShare struct {
	Receiver keys.PublicKeyBytes
	Fraction float64
}

// NewMint builds a Mint paying MinerShare*TotalIncentive to miner and
// splitting ProviderPoolShare*TotalIncentive among shares. The miner output
// is always present and always first in iteration order. When shares is
// empty (no provider contributed a completed transfer to this block — the
// case for the genesis block and any block mined from an empty mempool)
// the provider pool is not minted at all, per the §9.b decision in
// DESIGN.md: the pool is only distributed in proportion to real
// contribution, never invented for an empty batch.
func NewMint(timestamp int64, miner keys.PublicKeyBytes, shares []ProviderShare) Mint {
	outputs := container.NewMapVec[string, UTXO]()
	minerUTXO := NewUTXO(MinerShare*TotalIncentive, miner)
	outputs.Set(minerUTXO.Hash, minerUTXO)
	pool := ProviderPoolShare * TotalIncentive
	for _, s := range shares {
		u := NewUTXO(pool*s.Fraction, s.Receiver)
		outputs.Set(u.Hash, u)
	}
	m := Mint{Timestamp: timestamp, Outputs: outputs}
	m.Hash = m.computeHash()
	return m
}

func (m Mint) computeHash() string {
	var outs []UTXO
	if m.Outputs != nil {
		outs = m.Outputs.Values()
	}
	return hashing.Digest(
		hashing.Scalar(m.Timestamp),
		hashing.Sequence(outs),
	)
}

// HashRef implements hashing.Hashable.
func (m Mint) HashRef() string { return m.Hash }

// Valid recomputes the hash and checks the output totals satisfy the
// 9999-total / 85-15 split invariant, or its no-providers variant where
// only the 8499.15 miner share was minted (see NewMint).
func (m Mint) Valid() bool {
	if m.Hash != m.computeHash() {
		return false
	}
	if m.Outputs == nil || m.Outputs.Len() == 0 {
		return false
	}
	var total float64
	for _, u := range m.Outputs.Values() {
		if !u.Valid() {
			return false
		}
		total += u.Amount
	}
	return nearlyEqual(total, TotalIncentive) || nearlyEqual(total, MinerShare*TotalIncentive)
}

// nearlyEqual compares floats with a small epsilon to absorb floating point
// rounding across the 0.85/0.15 split.
func nearlyEqual(a, b float64) bool {
	const eps = 1e-6
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

var _ hashing.Hashable = Mint{}
