package node

import (
	"encoding/json"
	"testing"

	"inferex/internal/chain"
	"inferex/internal/keys"
)

func bootstrapPeerHex(t *testing.T) string {
	t.Helper()
	return chain.BootstrapKeypair().Public.Hex()
}

func newTestNode(kind NodeKind) (*Node, *fakeOverlay) {
	kp, _ := keys.Generate()
	ov := newFakeOverlay(kp.PeerID())
	n := New(kp, ov, Config{Kind: kind})
	return n, ov
}

func TestDispatchPeerCount(t *testing.T) {
	n, _ := newTestNode(KindClient)
	n.seenPeers["somepeer"] = struct{}{}

	resp := n.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "net_peerCount"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]uint32)
	if !ok || m["count"] != 1 {
		t.Fatalf("result = %+v, want count=1", resp.Result)
	}
}

func TestDispatchGetBalanceEmptyChainCode(t *testing.T) {
	// BalanceScanChain only fails on a literal zero-value Blockchain, never
	// on one built via NewBlockchain (which always seeds genesis); this
	// exercises the RPC wiring of that boundary case, not the chain's own
	// construction.
	n, _ := newTestNode(KindClient)
	n.Chain = &chain.Blockchain{}

	params, _ := json.Marshal(getBalanceParams{Address: n.Keypair.Public.Hex()})
	resp := n.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "chain_getBalance", Params: params})
	if resp.Error == nil {
		t.Fatalf("expected an error response for an empty chain")
	}
	if resp.Error.Code != "1" || resp.Error.Message != "Empty chain" {
		t.Fatalf("error = %+v, want {code:1, message:Empty chain}", resp.Error)
	}
}

func TestDispatchGetBalanceInvalidAddress(t *testing.T) {
	n, _ := newTestNode(KindClient)
	params, _ := json.Marshal(getBalanceParams{Address: "not-hex"})
	resp := n.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "chain_getBalance", Params: params})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want codeInvalidParams", resp.Error)
	}
}

func TestDispatchGetBalanceGenesis(t *testing.T) {
	n, _ := newTestNode(KindClient)
	genesisPeer := bootstrapPeerHex(t)
	params, _ := json.Marshal(getBalanceParams{Address: genesisPeer})
	resp := n.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "chain_getBalance", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m := resp.Result.(map[string]float64)
	if m["quantity"] != 8499.15 {
		t.Fatalf("quantity = %v, want 8499.15", m["quantity"])
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	n, _ := newTestNode(KindClient)
	resp := n.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "nonsense_method"})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want codeMethodNotFound", resp.Error)
	}
}

func TestDispatchStartAuctionGatedByRole(t *testing.T) {
	miner, _ := newTestNode(KindMiner)
	resp := miner.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "client_startAuction"})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("miner node accepted client_startAuction: %+v", resp)
	}

	client, ov := newTestNode(KindClient)
	resp = client.dispatch(RPCRequest{JSONRPC: "2.0", ID: "1", Method: "client_startAuction"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if !resp.Result.(startAuctionResult).Started {
		t.Fatalf("auction did not start")
	}
	if len(ov.published) != 1 || ov.published[0].topic != TopicAuction {
		t.Fatalf("expected one publish to %s, got %+v", TopicAuction, ov.published)
	}
}

func TestDispatchInvalidRequestShape(t *testing.T) {
	n, _ := newTestNode(KindClient)
	resp := n.dispatch(RPCRequest{ID: "1", Method: "net_peerCount"})
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("error = %+v, want codeInvalidRequest", resp.Error)
	}
}
