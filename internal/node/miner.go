package node

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"inferex/internal/chain"
	"inferex/internal/container"
	"inferex/internal/keys"
	"inferex/internal/overlay"
)

type minerState struct {
	mempool     *container.MapVec[string, chain.Transfer]
	lastBlockAt time.Time
	mining      bool
}

func newMinerState() *minerState {
	return &minerState{mempool: container.NewMapVec[string, chain.Transfer]()}
}

func (m *minerState) start(n *Node, ctx context.Context) {
	m.lastBlockAt = time.Now()
	logger.Infof("miner: watching mempool, difficulty=%d", n.cfg.Difficulty)
}

// handleOverlay validates and queues completed-transfer gossip on the
// "pending" topic, and answers Chain requests with the current chain.
func (m *minerState) handleOverlay(n *Node, ev overlay.Event) bool {
	switch {
	case ev.Gossip != nil && ev.Gossip.Topic == TopicPending:
		var t chain.Transfer
		if err := json.Unmarshal(ev.Gossip.Data, &t); err != nil {
			logger.Warnf("miner: malformed pending transfer from %s: %v", ev.Gossip.Source, err)
			return true
		}
		if !t.ValidateAgainst(n.Chain.Resolve) {
			logger.Warnf("miner: rejected invalid transfer %s", t.Hash)
			return true
		}
		m.mempool.Set(t.Hash, t)
		return true

	case ev.Request != nil && ev.Request.Request.Kind == overlay.KindChain:
		data, err := encodeChain(n.Chain.Blocks())
		if err != nil {
			logger.Warnf("miner: encode chain for response: %v", err)
			return true
		}
		resp := overlay.NetworkResponse{ID: ev.Request.Request.ID, Kind: overlay.KindChain, ChainJSON: data}
		if err := n.Overlay.SendResponse(ev.Request.Respond, resp); err != nil {
			logger.Warnf("miner: send Chain response: %v", err)
		}
		return true

	default:
		return false
	}
}

// onTick fires block production at cfg.BlockInterval; a tick while a mine
// is already in flight is skipped (spec.md §5: one mining goroutine at a
// time).
func (m *minerState) onTick(n *Node, now time.Time) {
	if m.mining {
		return
	}
	if now.Sub(m.lastBlockAt) < n.cfg.BlockInterval {
		return
	}
	m.lastBlockAt = now
	if m.mempool.Len() == 0 {
		return // boundary: empty mempool, no block produced (spec.md §8)
	}
	batch := m.mempool.Head(n.cfg.MaxTransfersPerBlock)
	m.produceBlock(n, batch)
}

func (m *minerState) produceBlock(n *Node, batch []chain.Transfer) {
	tip := n.Chain.Tip()
	if tip == nil {
		logger.Errorf("miner: no tip block, cannot produce")
		return
	}
	transfers := container.NewMapVec[string, chain.Transfer]()
	for _, t := range batch {
		transfers.Set(t.Hash, t)
	}
	block := chain.NewUnsignedBlock(tip.Index+1, time.Now().Unix(), 0, tip.Hash, transfers, n.Keypair.Public, providerShares(batch))
	m.mining = true
	go m.mine(n, block, batch)
}

// providerShares derives each contributing provider's fractional share of
// the block's provider pool as its share of the batch's total tokens
// transferred, closing Open Question §9.b with a concrete policy (see
// DESIGN.md) rather than an always-empty table.
func providerShares(batch []chain.Transfer) []chain.ProviderShare {
	totals := make(map[keys.PublicKeyBytes]float64)
	var grandTotal float64
	for _, t := range batch {
		totals[t.Receiver] += t.Tokens
		grandTotal += t.Tokens
	}
	if grandTotal <= 0 {
		return nil
	}
	shares := make([]chain.ProviderShare, 0, len(totals))
	for receiver, tokens := range totals {
		shares = append(shares, chain.ProviderShare{Receiver: receiver, Fraction: tokens / grandTotal})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Receiver.Hex() < shares[j].Receiver.Hex() })
	return shares
}

func (m *minerState) mine(n *Node, block *chain.Block, batch []chain.Transfer) {
	if err := block.Mine(context.Background(), n.cfg.Difficulty); err != nil {
		n.roleEvents <- minerBlockFailedEvent{err: err}
		return
	}
	if err := block.Sign(n.Keypair); err != nil {
		n.roleEvents <- minerBlockFailedEvent{err: err}
		return
	}
	n.roleEvents <- minerBlockMinedEvent{block: block, included: batch}
}

type minerBlockMinedEvent struct {
	block    *chain.Block
	included []chain.Transfer
}
type minerBlockFailedEvent struct{ err error }

func (m *minerState) handleRoleEvent(n *Node, ev any) {
	switch e := ev.(type) {
	case minerBlockMinedEvent:
		m.mining = false
		if err := n.Chain.Append(e.block); err != nil {
			logger.Warnf("miner: mined block rejected by own chain: %v", err)
			return
		}
		for _, t := range e.included {
			m.mempool.Delete(t.Hash)
		}
		logger.Infof("miner: mined block %d (%s)", e.block.Index, e.block.Hash)
		n.publishChain()
	case minerBlockFailedEvent:
		m.mining = false
		logger.Warnf("miner: block production failed: %v", e.err)
	}
}
