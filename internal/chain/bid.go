package chain

import (
	"inferex/internal/hashing"
	"inferex/internal/keys"
)

// ProvisionBid is a provider's offer to serve a client's completion request.
// Ordered by Bid (higher is better) in a client's auction heap; ties break
// arbitrarily, not by insertion order.
type ProvisionBid struct {
	Peer     keys.PeerID `json:"peer"`
	Distance int         `json:"distance"`
	Bid      float64     `json:"bid"`
}

// BidAmount implements container.Bid.
func (b ProvisionBid) BidAmount() float64 { return b.Bid }

// PendingTransaction is a mempool-only record of an in-flight completion
// before it is folded into a completed Transfer. Never persisted to a block
// directly.
type PendingTransaction struct {
	Hash       string      `json:"hash"`
	Timestamp  int64       `json:"timestamp"`
	Input      string      `json:"input"`
	ClientPeer keys.PeerID `json:"client_peer"`
}

// NewPendingTransaction builds a PendingTransaction with its hash computed
// from (timestamp, clientPeer, input).
func NewPendingTransaction(timestamp int64, clientPeer keys.PeerID, input string) PendingTransaction {
	p := PendingTransaction{Timestamp: timestamp, Input: input, ClientPeer: clientPeer}
	p.Hash = p.computeHash()
	return p
}

func (p PendingTransaction) computeHash() string {
	return hashing.Digest(
		hashing.Scalar(p.Timestamp),
		hashing.Bytes([]byte(p.ClientPeer)),
		hashing.Scalar(p.Input),
	)
}

// HashRef implements hashing.Hashable.
func (p PendingTransaction) HashRef() string { return p.Hash }

// Valid recomputes the hash and checks it matches.
func (p PendingTransaction) Valid() bool { return p.Hash == p.computeHash() }

var _ hashing.Hashable = PendingTransaction{}
