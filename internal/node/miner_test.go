package node

import (
	"testing"
	"time"

	"inferex/internal/chain"
	"inferex/internal/keys"
	"inferex/internal/overlay"
)

func TestProviderSharesProportional(t *testing.T) {
	p1, _ := keys.Generate()
	p2, _ := keys.Generate()
	batch := []chain.Transfer{
		chain.NewTransfer(1, p1.Public, p1.Public, 30, nil, nil),
		chain.NewTransfer(1, p1.Public, p2.Public, 10, nil, nil),
	}
	shares := providerShares(batch)
	if len(shares) != 2 {
		t.Fatalf("shares = %+v, want 2 entries", shares)
	}
	var total float64
	for _, s := range shares {
		total += s.Fraction
	}
	if !nearlyEqualForTest(total, 1.0) {
		t.Fatalf("fractions sum to %v, want 1.0", total)
	}
}

func TestProviderSharesEmptyBatch(t *testing.T) {
	if got := providerShares(nil); got != nil {
		t.Fatalf("providerShares(nil) = %+v, want nil", got)
	}
}

func nearlyEqualForTest(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func TestMinerRejectsInvalidTransferGossip(t *testing.T) {
	n, _ := newTestNode(KindMiner)
	sender, _ := keys.Generate()
	receiver, _ := keys.Generate()

	// references an input UTXO that doesn't exist anywhere in the chain
	bad := chain.NewTransfer(1, sender.Public, receiver.Public, 100, []string{"no-such-utxo"}, nil)
	data, _ := bad.MarshalJSON()

	consumed := n.miner.handleOverlay(n, overlay.Event{
		Gossip: &overlay.GossipMessage{Topic: TopicPending, Data: data},
	})
	if !consumed {
		t.Fatalf("miner did not consume pending-topic gossip")
	}
	if n.miner.mempool.Len() != 0 {
		t.Fatalf("invalid transfer was queued into the mempool")
	}
}

func TestMinerSkipsProductionOnEmptyMempool(t *testing.T) {
	n, _ := newTestNode(KindMiner)
	n.cfg.BlockInterval = 0 // always due
	n.miner.lastBlockAt = time.Time{}

	n.miner.onTick(n, time.Now())

	if n.miner.mining {
		t.Fatalf("mining started from an empty mempool")
	}
}

func TestMinerProducesAndAppendsBlock(t *testing.T) {
	n, _ := newTestNode(KindMiner)
	n.cfg.Difficulty = 0 // any hash satisfies an empty target prefix
	n.cfg.BlockInterval = 0
	n.cfg.MaxTransfersPerBlock = 10
	n.miner.lastBlockAt = time.Time{}

	sender, _ := keys.Generate()
	receiver, _ := keys.Generate()
	tr := chain.NewTransfer(1, sender.Public, receiver.Public, 5, nil, nil)
	n.miner.mempool.Set(tr.Hash, tr)

	n.miner.onTick(n, time.Now())
	if !n.miner.mining {
		t.Fatalf("onTick with a non-empty mempool did not start mining")
	}

	select {
	case ev := <-n.roleEvents:
		n.handleRoleEvent(ev)
	case <-time.After(2 * time.Second):
		t.Fatalf("no role event produced by mining at difficulty 0")
	}

	if n.miner.mining {
		t.Fatalf("mining flag still set after handling the result")
	}
	if n.Chain.Len() != 2 {
		t.Fatalf("chain length = %d, want 2 (genesis + mined block)", n.Chain.Len())
	}
	if n.miner.mempool.Has(tr.Hash) {
		t.Fatalf("included transfer was not cleared from the mempool")
	}
}
