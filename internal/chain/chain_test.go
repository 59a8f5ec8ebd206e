package chain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"inferex/internal/container"
	"inferex/internal/keys"
)

func TestGenesisBalance(t *testing.T) {
	bc := NewBlockchain()
	kp := BootstrapKeypair()

	got, err := bc.BalanceScanChain(kp.Public)
	if err != nil {
		t.Fatalf("BalanceScanChain: %v", err)
	}
	want := MinerShare * TotalIncentive
	if !nearlyEqual(got, want) {
		t.Fatalf("genesis balance = %v, want %v", got, want)
	}
}

func TestEmptyChainBalanceError(t *testing.T) {
	var bc Blockchain
	if _, err := bc.BalanceScanChain(keys.PublicKeyBytes{}); err != ErrEmptyChain {
		t.Fatalf("BalanceScanChain on empty chain = %v, want ErrEmptyChain", err)
	}
	if _, err := bc.BalanceTopBlockOnly(keys.PublicKeyBytes{}); err != ErrEmptyChain {
		t.Fatalf("BalanceTopBlockOnly on empty chain = %v, want ErrEmptyChain", err)
	}
}

func TestBlockDoubleSignRejected(t *testing.T) {
	kp, _ := keys.Generate()
	b := NewUnsignedBlock(1, 1, 0, "prev", nil, kp.Public, nil)
	if err := b.Sign(kp); err != nil {
		t.Fatalf("first Sign: %v", err)
	}
	if err := b.Sign(kp); err != ErrSignatureExists {
		t.Fatalf("second Sign = %v, want ErrSignatureExists", err)
	}
}

func TestBlockSignWrongKeyRejected(t *testing.T) {
	miner, _ := keys.Generate()
	impostor, _ := keys.Generate()
	b := NewUnsignedBlock(1, 1, 0, "prev", nil, miner.Public, nil)
	if err := b.Sign(impostor); err != ErrSigningError {
		t.Fatalf("Sign with non-miner key = %v, want ErrSigningError", err)
	}
}

func TestBlockJSONRoundTrip(t *testing.T) {
	kp, _ := keys.Generate()
	transfers := container.NewMapVec[string, Transfer]()
	tr := NewTransfer(10, kp.Public, kp.Public, 5, nil, nil)
	transfers.Set(tr.Hash, tr)

	b := NewUnsignedBlock(3, 100, 0, "prevhash", transfers, kp.Public, nil)
	if err := b.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Block
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Hash != b.Hash {
		t.Fatalf("round-tripped hash mismatch: %s vs %s", got.Hash, b.Hash)
	}
	if !got.Valid() {
		t.Fatalf("round-tripped block fails Valid()")
	}
	if !got.VerifySignature() {
		t.Fatalf("round-tripped block fails VerifySignature()")
	}
	if got.Transfers.Len() != 1 {
		t.Fatalf("round-tripped transfers count = %d, want 1", got.Transfers.Len())
	}
}

func TestChainReplacePolicy(t *testing.T) {
	bc := NewBlockchain()
	kp, _ := keys.Generate()

	// build a longer, valid candidate chain: genesis + one more block
	genesis := bc.Tip()
	next := NewUnsignedBlock(genesis.Index+1, genesis.Timestamp+1, 0, genesis.Hash, nil, kp.Public, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := next.Mine(ctx, 0); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if err := next.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	candidate := []*Block{genesis, next}

	if !bc.ReplaceIfBetter(candidate) {
		t.Fatalf("valid longer chain was not adopted")
	}
	if bc.Len() != 2 {
		t.Fatalf("chain length after replace = %d, want 2", bc.Len())
	}
}

func TestChainRejectsInvalidCandidate(t *testing.T) {
	bc := NewBlockchain()
	genesis := bc.Tip()
	kp, _ := keys.Generate()

	// tampered link: wrong previous hash
	broken := NewUnsignedBlock(genesis.Index+1, genesis.Timestamp+1, 0, "not-the-real-hash", nil, kp.Public, nil)
	broken.Sign(kp)
	candidate := []*Block{genesis, broken}

	if bc.ReplaceIfBetter(candidate) {
		t.Fatalf("invalid candidate chain was adopted")
	}
	if bc.Len() != 1 {
		t.Fatalf("chain length changed after a rejected replace: %d", bc.Len())
	}
}

func TestChainReplaceRequiresStrictlyLonger(t *testing.T) {
	bc := NewBlockchain()
	// same-length candidate (just genesis) must not replace
	if bc.ReplaceIfBetter([]*Block{bc.Tip()}) {
		t.Fatalf("equal-length candidate was adopted")
	}
}

func TestTransferValidateAgainst(t *testing.T) {
	sender, _ := keys.Generate()
	receiver, _ := keys.Generate()

	input := NewUTXO(100, sender.Public)
	resolve := func(hash string) (UTXO, bool) {
		if hash == input.Hash {
			return input, true
		}
		return UTXO{}, false
	}

	outputs := container.NewMapVec[string, UTXO]()
	out := NewUTXO(40, receiver.Public)
	outputs.Set(out.Hash, out)

	tr := NewTransfer(1, sender.Public, receiver.Public, 40, []string{input.Hash}, outputs)
	if !tr.ValidateAgainst(resolve) {
		t.Fatalf("valid transfer rejected")
	}

	overspend := container.NewMapVec[string, UTXO]()
	bigOut := NewUTXO(1000, receiver.Public)
	overspend.Set(bigOut.Hash, bigOut)
	bad := NewTransfer(1, sender.Public, receiver.Public, 1000, []string{input.Hash}, overspend)
	if bad.ValidateAgainst(resolve) {
		t.Fatalf("overspending transfer accepted")
	}
}

func TestTransferSignDoubleRejected(t *testing.T) {
	kp, _ := keys.Generate()
	tr := NewTransfer(1, kp.Public, kp.Public, 1, nil, nil)
	signed, err := tr.Sign(kp)
	if err != nil {
		t.Fatalf("first Sign: %v", err)
	}
	if _, err := signed.Sign(kp); err != ErrSignatureExists {
		t.Fatalf("second Sign = %v, want ErrSignatureExists", err)
	}
}

func TestMintNoProvidersShareMatchesGenesis(t *testing.T) {
	kp, _ := keys.Generate()
	m := NewMint(0, kp.Public, nil)
	if !m.Valid() {
		t.Fatalf("no-providers mint failed Valid()")
	}
	if m.Outputs.Len() != 1 {
		t.Fatalf("no-providers mint has %d outputs, want 1", m.Outputs.Len())
	}
}

func TestMintWithProviderShares(t *testing.T) {
	miner, _ := keys.Generate()
	p1, _ := keys.Generate()
	p2, _ := keys.Generate()
	shares := []ProviderShare{
		{Receiver: p1.Public, Fraction: 0.5},
		{Receiver: p2.Public, Fraction: 0.5},
	}
	m := NewMint(0, miner.Public, shares)
	if !m.Valid() {
		t.Fatalf("mint with provider shares failed Valid()")
	}
	if m.Outputs.Len() != 3 {
		t.Fatalf("mint outputs = %d, want 3", m.Outputs.Len())
	}
}

func TestPendingTransactionHashStable(t *testing.T) {
	kp, _ := keys.Generate()
	p := NewPendingTransaction(1000, kp.PeerID(), "Hello World")
	if !p.Valid() {
		t.Fatalf("PendingTransaction failed its own Valid() check")
	}
	if p.Hash == "" {
		t.Fatalf("PendingTransaction has an empty hash")
	}
	other := NewPendingTransaction(1000, kp.PeerID(), "Hello World")
	if p.Hash != other.Hash {
		t.Fatalf("two PendingTransactions built from identical fields hashed differently")
	}
	tampered := p
	tampered.Input = "something else"
	if tampered.Valid() {
		t.Fatalf("tampered PendingTransaction still reported Valid()")
	}
}
