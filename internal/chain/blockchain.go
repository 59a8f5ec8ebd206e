package chain

import (
	"errors"
	"sync"

	"inferex/internal/keys"
)

// ErrEmptyChain is returned by balance derivation when the chain has no
// blocks at all (not even genesis) — the boundary behavior spec.md §8
// pins to JSON-RPC error {code: "1", message: "Empty chain"}.
var ErrEmptyChain = errors.New("chain: empty chain")

// Blockchain is an ordered sequence of blocks starting at the fixed
// genesis. It is owned by a single node's main loop; mutation (Append,
// Replace) is never called concurrently by design (SPEC_FULL.md §5).
type Blockchain struct {
	mu     sync.RWMutex
	blocks []*Block
	utxo   map[string]UTXO // index over every UTXO ever created, for Transfer input resolution
}

// NewBlockchain returns a chain containing only the genesis block.
func NewBlockchain() *Blockchain {
	c := &Blockchain{utxo: make(map[string]UTXO)}
	g := Genesis()
	c.blocks = []*Block{g}
	c.indexBlock(g)
	return c
}

func (c *Blockchain) indexBlock(b *Block) {
	for _, u := range b.Mint.Outputs.Values() {
		c.utxo[u.Hash] = u
	}
	if b.Transfers != nil {
		for _, t := range b.Transfers.Values() {
			if t.Outputs == nil {
				continue
			}
			for _, u := range t.Outputs.Values() {
				c.utxo[u.Hash] = u
			}
		}
	}
}

// Resolve looks up a previously created UTXO by hash, for transfer input
// validation.
func (c *Blockchain) Resolve(hash string) (UTXO, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.utxo[hash]
	return u, ok
}

// Len returns the number of blocks in the chain.
func (c *Blockchain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns the chain's last block.
func (c *Blockchain) Tip() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the block slice, in chain order.
func (c *Blockchain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Append validates b against the current tip and appends it, indexing its
// UTXOs. Used by a miner immediately after mining+signing its own block.
func (c *Blockchain) Append(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) > 0 {
		if !linkValid(c.blocks[len(c.blocks)-1], b) {
			return ErrChainInvalid
		}
	}
	if !b.ValidateStructure(c.resolveLocked) {
		return ErrChainInvalid
	}
	c.blocks = append(c.blocks, b)
	c.indexBlock(b)
	return nil
}

func (c *Blockchain) resolveLocked(hash string) (UTXO, bool) {
	u, ok := c.utxo[hash]
	return u, ok
}

// linkValid checks invariants (c)-(d)-(e) between consecutive blocks:
// index increments by one, previous_hash matches, and the new block's
// signature verifies.
func linkValid(prev, next *Block) bool {
	if next.Index != prev.Index+1 {
		return false
	}
	if next.PreviousHash != prev.Hash {
		return false
	}
	return next.VerifySignature()
}

// ValidateFull replays every invariant across an entire candidate chain,
// starting from its own genesis block (candidates must share genesis with
// the local chain to be comparable, checked by the caller).
func ValidateFull(blocks []*Block) bool {
	if len(blocks) == 0 {
		return false
	}
	utxo := make(map[string]UTXO)
	index := func(b *Block) {
		for _, u := range b.Mint.Outputs.Values() {
			utxo[u.Hash] = u
		}
		if b.Transfers != nil {
			for _, t := range b.Transfers.Values() {
				if t.Outputs == nil {
					continue
				}
				for _, u := range t.Outputs.Values() {
					utxo[u.Hash] = u
				}
			}
		}
	}
	resolve := func(hash string) (UTXO, bool) {
		u, ok := utxo[hash]
		return u, ok
	}

	genesis := blocks[0]
	if genesis.Index != 0 || genesis.PreviousHash != "" {
		return false
	}
	if !genesis.ValidateStructure(resolve) {
		return false
	}
	index(genesis)

	for i := 1; i < len(blocks); i++ {
		if !linkValid(blocks[i-1], blocks[i]) {
			return false
		}
		if !blocks[i].ValidateStructure(resolve) {
			return false
		}
		index(blocks[i])
	}
	return true
}

// ReplaceIfBetter applies the chain-replacement policy: replace iff
// candidate is strictly longer than the current chain, starts at the same
// genesis block, AND validates end-to-end. Returns whether the replacement
// happened.
func (c *Blockchain) ReplaceIfBetter(candidate []*Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(candidate) <= len(c.blocks) {
		return false
	}
	if len(c.blocks) > 0 && candidate[0].Hash != c.blocks[0].Hash {
		return false
	}
	if !ValidateFull(candidate) {
		return false
	}
	c.blocks = append([]*Block(nil), candidate...)
	c.utxo = make(map[string]UTXO)
	for _, b := range c.blocks {
		c.indexBlockLocked(b)
	}
	return true
}

func (c *Blockchain) indexBlockLocked(b *Block) {
	for _, u := range b.Mint.Outputs.Values() {
		c.utxo[u.Hash] = u
	}
	if b.Transfers != nil {
		for _, t := range b.Transfers.Values() {
			if t.Outputs == nil {
				continue
			}
			for _, u := range t.Outputs.Values() {
				c.utxo[u.Hash] = u
			}
		}
	}
}

// BalanceScanChain sums, across every block in the chain, the amounts of
// Mint and Transfer outputs whose receiver equals addr. This is the
// correct balance derivation and the one the JSON-RPC chain_getBalance
// method uses (see SPEC_FULL.md §9.a).
func (c *Blockchain) BalanceScanChain(addr keys.PublicKeyBytes) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return 0, ErrEmptyChain
	}
	var total float64
	for _, b := range c.blocks {
		total += sumOutputsFor(b, addr)
	}
	return total, nil
}

// BalanceTopBlockOnly sums only the chain's tip block's Mint and Transfer
// outputs for addr. This is the literal, probably-buggy behavior noted in
// spec.md Open Question §9.a, kept and exported for parity with the
// source behavior it reimplements.
func (c *Blockchain) BalanceTopBlockOnly(addr keys.PublicKeyBytes) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return 0, ErrEmptyChain
	}
	top := c.blocks[len(c.blocks)-1]
	return sumOutputsFor(top, addr), nil
}

func sumOutputsFor(b *Block, addr keys.PublicKeyBytes) float64 {
	var total float64
	for _, u := range b.Mint.Outputs.Values() {
		if u.Receiver == addr {
			total += u.Amount
		}
	}
	if b.Transfers != nil {
		for _, t := range b.Transfers.Values() {
			if t.Outputs == nil {
				continue
			}
			for _, u := range t.Outputs.Values() {
				if u.Receiver == addr {
					total += u.Amount
				}
			}
		}
	}
	return total
}
