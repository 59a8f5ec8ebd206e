// Package node implements the per-role node runtime: the cooperative main
// loop that multiplexes overlay events, role-produced events and RPC calls,
// plus the client/provider/miner-validator state machines and the JSON-RPC
// control plane that drives them. Grounded on the reference stack's
// core/network.go event-loop shape and core/wallet.go's single-owner
// keypair/chain lifecycle, generalized to three role variants instead of one
// monolithic node type.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"inferex/internal/chain"
	"inferex/internal/keys"
	"inferex/internal/overlay"
)

var logger = log.New()

// SetLogger overrides the package logger.
func SetLogger(l *log.Logger) { logger = l }

// NodeKind tags which role-specific state a Node carries, per SPEC_FULL.md
// §9's "tagged variants of a NodeKind rather than inheritance" note.
type NodeKind int

const (
	KindClient NodeKind = iota
	KindProvider
	KindMiner
)

func (k NodeKind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindProvider:
		return "provider"
	case KindMiner:
		return "miner"
	default:
		return "unknown"
	}
}

// Fixed topics, per spec.md §4.3's topic taxonomy.
const (
	TopicChainUpdate = "chain_update"
	TopicPending     = "pending"
	TopicAuction     = "auction"
)

// STREAM_PROTOCOL identifies the completion-delivery byte-stream protocol,
// per spec.md §4.8.
const StreamProtocol = "/echo/1.0"

// Timing windows, per spec.md §4.5/§4.6.
const (
	AuctionWindow       = 100 * time.Millisecond
	AwaitWindow         = 200 * time.Millisecond
	ChainGossipCooldown = 5 * time.Second
	tickInterval        = 20 * time.Millisecond
)

// Config holds the knobs a node is constructed with; distinct from
// pkg/config.Config, which additionally covers ambient concerns (logging,
// CLI wiring) this package does not touch.
type Config struct {
	Kind       NodeKind
	Difficulty int
	// BlockInterval is how often the miner role attempts block production.
	BlockInterval time.Duration
	// MaxTransfersPerBlock caps how many mempool entries one block takes.
	MaxTransfersPerBlock int
	// ProviderBid/ProviderDistance are the fixed score a provider-role node
	// bids with; spec.md §1 scopes bidding economics out, so these are a
	// static configuration rather than a computed quality signal.
	ProviderBid      float64
	ProviderDistance int
}

// Node owns the keypair, chain, role state and overlay handle for one
// running process. Exactly one of client/provider/miner is non-nil,
// matching Kind.
type Node struct {
	Keypair *keys.Keypair
	Chain   *chain.Blockchain
	Overlay overlay.Overlay
	Kind    NodeKind
	cfg     Config

	client   *clientState
	provider *providerState
	miner    *minerState

	methods dispatchTable

	// roleEvents carries events a role handler produces for itself (a
	// chosen bid, a completed stream, a mined block) back into the main
	// loop, per spec.md §4.4 item 2.
	roleEvents chan any
	// rpcIn is the bounded channel RPC connection goroutines submit calls
	// on; ~5 per spec.md §5's recommended RPC backpressure.
	rpcIn chan rpcCall

	seenPeers map[keys.PeerID]struct{}
	lastChainRepublish map[keys.PeerID]time.Time
}

type rpcCall struct {
	req  RPCRequest
	resp chan RPCResponse
}

// New constructs a node of the given kind, wiring its role state and RPC
// dispatch table.
func New(kp *keys.Keypair, ov overlay.Overlay, cfg Config) *Node {
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = 2 * time.Second
	}
	if cfg.MaxTransfersPerBlock <= 0 {
		cfg.MaxTransfersPerBlock = 50
	}
	if cfg.ProviderBid == 0 {
		cfg.ProviderBid = 50.0
	}
	if cfg.ProviderDistance == 0 {
		cfg.ProviderDistance = 50
	}
	n := &Node{
		Keypair:            kp,
		Chain:              chain.NewBlockchain(),
		Overlay:            ov,
		Kind:               cfg.Kind,
		cfg:                cfg,
		roleEvents:         make(chan any, 16),
		rpcIn:              make(chan rpcCall, 5),
		seenPeers:          make(map[keys.PeerID]struct{}),
		lastChainRepublish: make(map[keys.PeerID]time.Time),
	}
	n.methods = sharedMethods()
	switch cfg.Kind {
	case KindClient:
		n.client = newClientState()
		n.methods["client_startAuction"] = handleStartAuction
	case KindProvider:
		n.provider = newProviderState()
	case KindMiner:
		n.miner = newMinerState()
	}
	return n
}

// SubmitRPC hands req to the main loop and blocks for its response. Called
// by the JSON-RPC connection handler (cmd/inferex), never by the main loop
// itself.
func (n *Node) SubmitRPC(ctx context.Context, req RPCRequest) (RPCResponse, error) {
	call := rpcCall{req: req, resp: make(chan RPCResponse, 1)}
	select {
	case n.rpcIn <- call:
	case <-ctx.Done():
		return RPCResponse{}, ctx.Err()
	}
	select {
	case resp := <-call.resp:
		return resp, nil
	case <-ctx.Done():
		return RPCResponse{}, ctx.Err()
	}
}

func (n *Node) peerCount() uint32 {
	return uint32(len(n.seenPeers))
}

// Run drives the main loop until ctx is canceled. It subscribes to the
// topics its role needs, then cooperatively selects across overlay events,
// role events, RPC calls and a tick source for wall-clock deadlines and
// (for miners) block production.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Overlay.Subscribe(TopicChainUpdate); err != nil {
		return fmt.Errorf("node: subscribe chain_update: %w", err)
	}
	if err := n.Overlay.Subscribe(string(n.Overlay.LocalPeerID())); err != nil {
		return fmt.Errorf("node: subscribe self topic: %w", err)
	}
	switch n.Kind {
	case KindClient:
		// Auction topic is publish-only for clients; nothing to subscribe.
	case KindProvider:
		if err := n.Overlay.Subscribe(TopicAuction); err != nil {
			return fmt.Errorf("node: subscribe auction: %w", err)
		}
		n.provider.start(n)
	case KindMiner:
		if err := n.Overlay.Subscribe(TopicPending); err != nil {
			return fmt.Errorf("node: subscribe pending: %w", err)
		}
		n.miner.start(n, ctx)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-n.Overlay.Events():
			if !ok {
				return errors.New("node: overlay event channel closed")
			}
			n.handleOverlayEvent(ev)

		case ev := <-n.roleEvents:
			n.handleRoleEvent(ev)

		case call := <-n.rpcIn:
			call.resp <- n.dispatch(call.req)

		case now := <-ticker.C:
			n.onTick(now)
		}
	}
}

func (n *Node) onTick(now time.Time) {
	if n.client != nil {
		n.client.onTick(n, now)
	}
	if n.provider != nil {
		n.provider.onTick(n, now)
	}
	if n.miner != nil {
		n.miner.onTick(n, now)
	}
}

// handleOverlayEvent dispatches to the role handler first; if it declines
// the event, the default handler applies (spec.md §4.4 item 1).
func (n *Node) handleOverlayEvent(ev overlay.Event) {
	consumed := false
	switch {
	case n.client != nil:
		consumed = n.client.handleOverlay(n, ev)
	case n.provider != nil:
		consumed = n.provider.handleOverlay(n, ev)
	case n.miner != nil:
		consumed = n.miner.handleOverlay(n, ev)
	}
	if consumed {
		return
	}
	n.defaultOverlayHandler(ev)
}

// defaultOverlayHandler implements spec.md §4.4's default behavior:
// connection bookkeeping, chain-update gossip handling (rate-limited per
// §9.d), and OpenStreamAck defaulting.
func (n *Node) defaultOverlayHandler(ev overlay.Event) {
	switch {
	case ev.Swarm != nil:
		n.handleSwarmEvent(*ev.Swarm)
	case ev.Gossip != nil:
		n.handleDefaultGossip(*ev.Gossip)
	case ev.Request != nil:
		// No role claimed it: nothing this node's role can serve, so
		// decline rather than hang the peer waiting for a response.
		_ = n.Overlay.SendResponse(ev.Request.Respond, overlay.NetworkResponse{
			ID: ev.Request.Request.ID, Kind: ev.Request.Request.Kind,
		})
	case ev.Response != nil:
		logger.Debugf("node: unhandled response from %s", ev.Response.Peer)
	}
}

func (n *Node) handleSwarmEvent(sw overlay.SwarmEvent) {
	switch sw.Kind {
	case overlay.ConnectionEstablished:
		n.seenPeers[sw.Peer] = struct{}{}
		logger.Infof("node: connected to %s", sw.Peer)
		n.maybeRepublishChain(sw.Peer)
	case overlay.ConnectionClosed:
		delete(n.seenPeers, sw.Peer)
		logger.Infof("node: disconnected from %s", sw.Peer)
	case overlay.NewListenAddr:
		logger.Infof("node: listening on %s", sw.Addr)
	}
}

// maybeRepublishChain republishes the chain when a peer connects, at most
// once per peer per ChainGossipCooldown. The overlay reports no per-topic
// subscribe events, so a peer subscribing to chain_update does not by
// itself trigger a republish.
func (n *Node) maybeRepublishChain(peer keys.PeerID) {
	last, ok := n.lastChainRepublish[peer]
	now := time.Now()
	if ok && now.Sub(last) < ChainGossipCooldown {
		return
	}
	n.lastChainRepublish[peer] = now
	n.publishChain()
}

func (n *Node) publishChain() {
	data, err := encodeChain(n.Chain.Blocks())
	if err != nil {
		logger.Warnf("node: encode chain for gossip: %v", err)
		return
	}
	if err := n.Overlay.Publish(TopicChainUpdate, data); err != nil {
		logger.Warnf("node: publish chain_update: %v", err)
	}
}

func (n *Node) handleDefaultGossip(gm overlay.GossipMessage) {
	if gm.Topic != TopicChainUpdate {
		return
	}
	blocks, err := decodeChain(gm.Data)
	if err != nil {
		logger.Warnf("node: malformed chain_update from %s: %v", gm.Source, err)
		return
	}
	if n.Chain.ReplaceIfBetter(blocks) {
		logger.Infof("node: replaced chain with %d blocks from %s", len(blocks), gm.Source)
	}
}

func (n *Node) handleRoleEvent(ev any) {
	switch n.Kind {
	case KindClient:
		n.client.handleRoleEvent(n, ev)
	case KindProvider:
		n.provider.handleRoleEvent(n, ev)
	case KindMiner:
		n.miner.handleRoleEvent(n, ev)
	}
}

func decodeAddress(s string) (keys.PublicKeyBytes, error) {
	return keys.ParseHex(s)
}
