package chain

import (
	"encoding/json"

	"inferex/internal/container"
	"inferex/internal/hashing"
	"inferex/internal/keys"
)

// Transfer is a settled client-to-provider payment, referenced by its hash
// and embedded in a block. Signature is optional in validation (see
// SPEC_FULL.md §9.c): node state machines never sign transfers, but the
// capability exists and is round-trip tested.
type Transfer struct {
	Hash      string                          `json:"hash"`
	Timestamp int64                           `json:"timestamp"`
	Sender    keys.PublicKeyBytes             `json:"sender"`
	Receiver  keys.PublicKeyBytes             `json:"receiver"`
	Tokens    float64                         `json:"tokens"`
	Inputs    []string                        `json:"inputs"`
	Outputs   *container.MapVec[string, UTXO] `json:"-"`
	Signature []byte                          `json:"signature,omitempty"`
}

// transferWire is the JSON wire shape: Outputs as an ordered slice of
// entries rather than a native map, since Go's map marshaling does not
// preserve insertion order.
type transferWire struct {
	Hash      string               `json:"hash"`
	Timestamp int64                `json:"timestamp"`
	Sender    keys.PublicKeyBytes  `json:"sender"`
	Receiver  keys.PublicKeyBytes  `json:"receiver"`
	Tokens    float64              `json:"tokens"`
	Inputs    []string             `json:"inputs"`
	Outputs   []UTXO               `json:"outputs"`
	Signature []byte               `json:"signature,omitempty"`
}

// MarshalJSON flattens Outputs to its insertion-ordered UTXO list.
func (t Transfer) MarshalJSON() ([]byte, error) {
	w := transferWire{
		Hash: t.Hash, Timestamp: t.Timestamp, Sender: t.Sender, Receiver: t.Receiver,
		Tokens: t.Tokens, Inputs: t.Inputs, Signature: t.Signature,
	}
	if t.Outputs != nil {
		w.Outputs = t.Outputs.Values()
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds Outputs from the wire slice, preserving order.
func (t *Transfer) UnmarshalJSON(b []byte) error {
	var w transferWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t.Hash, t.Timestamp, t.Sender, t.Receiver, t.Tokens, t.Inputs, t.Signature =
		w.Hash, w.Timestamp, w.Sender, w.Receiver, w.Tokens, w.Inputs, w.Signature
	t.Outputs = nil
	if w.Outputs != nil {
		t.Outputs = container.NewMapVec[string, UTXO]()
		for _, u := range w.Outputs {
			t.Outputs.Set(u.Hash, u)
		}
	}
	return nil
}

// NewTransfer constructs a Transfer with its hash computed from (timestamp,
// sender, receiver, tokens, inputs, outputs).
func NewTransfer(timestamp int64, sender, receiver keys.PublicKeyBytes, tokens float64, inputs []string, outputs *container.MapVec[string, UTXO]) Transfer {
	t := Transfer{
		Timestamp: timestamp, Sender: sender, Receiver: receiver,
		Tokens: tokens, Inputs: inputs, Outputs: outputs,
	}
	t.Hash = t.computeHash()
	return t
}

func (t Transfer) computeHash() string {
	var outs []UTXO
	if t.Outputs != nil {
		outs = t.Outputs.Values()
	}
	return hashing.Digest(
		hashing.Scalar(t.Timestamp),
		hashing.Bytes(t.Sender[:]),
		hashing.Bytes(t.Receiver[:]),
		hashing.Scalar(t.Tokens),
		hashing.Sequence(t.Inputs),
		hashing.Sequence(outs),
	)
}

// HashRef implements hashing.Hashable.
func (t Transfer) HashRef() string { return t.Hash }

// Valid recomputes the hash and checks it matches.
func (t Transfer) Valid() bool { return t.Hash == t.computeHash() }

// Sign signs the transfer's hash with kp. Sender is left as it is. Returns
// ErrSignatureExists if already signed, or ErrHashInvalid if the transfer's
// hash is stale.
func (t Transfer) Sign(kp *keys.Keypair) (Transfer, error) {
	if t.Signature != nil {
		return t, ErrSignatureExists
	}
	if !t.Valid() {
		return t, ErrHashInvalid
	}
	t.Signature = kp.Sign([]byte(t.Hash))
	return t, nil
}

// VerifySignature reports whether Signature verifies under Sender. Returns
// true (vacuously) if no signature is present, since transfer signatures
// are optional per SPEC_FULL.md §9.c.
func (t Transfer) VerifySignature() bool {
	if t.Signature == nil {
		return true
	}
	return keys.Verify(t.Sender, []byte(t.Hash), t.Signature)
}

// BalanceInputs sums the amounts of the resolved UTXOs referenced by
// Inputs, given a lookup function (typically the chain's UTXO index).
func (t Transfer) BalanceInputs(resolve func(hash string) (UTXO, bool)) float64 {
	var total float64
	for _, h := range t.Inputs {
		if u, ok := resolve(h); ok {
			total += u.Amount
		}
	}
	return total
}

// OutputsTotal sums the amounts of all outputs.
func (t Transfer) OutputsTotal() float64 {
	if t.Outputs == nil {
		return 0
	}
	var total float64
	for _, u := range t.Outputs.Values() {
		total += u.Amount
	}
	return total
}

// ValidateAgainst checks invariant (b): sum(outputs.amount) <=
// sum(referenced-inputs.amount), using resolve to look up input UTXOs. A
// transfer referencing an input that resolve cannot find is invalid.
func (t Transfer) ValidateAgainst(resolve func(hash string) (UTXO, bool)) bool {
	if !t.Valid() {
		return false
	}
	if !t.VerifySignature() {
		return false
	}
	for _, h := range t.Inputs {
		if _, ok := resolve(h); !ok {
			return false
		}
	}
	return t.OutputsTotal() <= t.BalanceInputs(resolve)
}

var _ hashing.Hashable = Transfer{}
