package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"inferex/internal/chain"
	"inferex/internal/container"
	"inferex/internal/keys"
	"inferex/internal/overlay"
)

// defaultInputLength is the placeholder completion-request size a client
// announces in its auction; real LLM inference is out of scope (spec.md
// §1 Non-goals), so the number carries no further meaning.
const defaultInputLength = 64

// defaultInputContent is the fixed completion text the stream protocol
// delivers once a provider is chosen — the payload spec.md §8 scenario B
// exercises ("Hello World").
const defaultInputContent = "Hello World"

type clientPhase int

const (
	clientIdle clientPhase = iota
	clientAuctioning
	clientAttemptingConnection
	clientConnected
)

type clientState struct {
	phase     clientPhase
	startedAt time.Time
	bids      *container.BidHeap[chain.ProvisionBid]
	provider  keys.PeerID
	bidAmount float64
	requestID string
	pending   *chain.PendingTransaction
	messages  []string
}

func newClientState() *clientState {
	return &clientState{phase: clientIdle}
}

// startAuction publishes an auction announcement and enters Auctioning; it
// is a no-op (returning false) unless the client is Idle.
func (c *clientState) startAuction(n *Node) bool {
	if c.phase != clientIdle {
		return false
	}
	payload, err := json.Marshal(map[string]int{"input_length": defaultInputLength})
	if err != nil {
		logger.Warnf("client: marshal auction announcement: %v", err)
		return false
	}
	if err := n.Overlay.Publish(TopicAuction, payload); err != nil {
		logger.Warnf("client: publish auction: %v", err)
		return false
	}
	c.phase = clientAuctioning
	c.startedAt = time.Now()
	c.bids = container.NewBidHeap[chain.ProvisionBid]()
	logger.Infof("client: auction started")
	return true
}

// handleOverlay consumes gossip bids on the client's own peer-topic and the
// OpenStreamAck response it is waiting on; everything else falls through to
// the default handler.
func (c *clientState) handleOverlay(n *Node, ev overlay.Event) bool {
	switch {
	case ev.Gossip != nil && c.phase == clientAuctioning && ev.Gossip.Topic == string(n.Overlay.LocalPeerID()):
		var bid chain.ProvisionBid
		if err := json.Unmarshal(ev.Gossip.Data, &bid); err != nil {
			logger.Warnf("client: malformed bid from %s: %v", ev.Gossip.Source, err)
			return true
		}
		c.bids.Insert(bid)
		return true

	case ev.Response != nil && c.phase == clientAttemptingConnection &&
		ev.Response.Peer == c.provider && ev.Response.Response.ID == c.requestID:
		if ev.Response.Response.Opened {
			c.phase = clientConnected
			go c.runStream(n, c.provider)
		} else {
			logger.Infof("client: provider %s busy, returning to idle", c.provider)
			c.phase = clientIdle
		}
		return true

	default:
		return false
	}
}

// onTick enforces the auction window: a hard deadline after which the top
// bid (if any) is chosen, or the client returns to Idle with none.
func (c *clientState) onTick(n *Node, now time.Time) {
	if c.phase != clientAuctioning {
		return
	}
	if now.Sub(c.startedAt) < AuctionWindow {
		return
	}
	if c.bids.Len() == 0 {
		logger.Infof("client: auction window elapsed with no bids")
		c.phase = clientIdle
		return
	}
	top := c.bids.Pop()
	n.roleEvents <- clientChoseBidEvent{bid: top}
}

type clientChoseBidEvent struct{ bid chain.ProvisionBid }
type clientStreamDoneEvent struct{ content string }
type clientStreamErrorEvent struct{ err error }

func (c *clientState) handleRoleEvent(n *Node, ev any) {
	switch e := ev.(type) {
	case clientChoseBidEvent:
		c.provider = e.bid.Peer
		c.bidAmount = e.bid.Bid
		c.requestID = uuid.NewString()
		c.phase = clientAttemptingConnection
		pending := chain.NewPendingTransaction(time.Now().Unix(), n.Keypair.PeerID(), defaultInputContent)
		c.pending = &pending
		req := overlay.NetworkRequest{ID: c.requestID, Kind: overlay.KindOpenStream}
		if err := n.Overlay.SendRequest(e.bid.Peer, req); err != nil {
			logger.Warnf("client: send OpenStream to %s: %v", e.bid.Peer, err)
			c.phase = clientIdle
			c.pending = nil
		}
	case clientStreamDoneEvent:
		c.messages = append(c.messages, e.content)
		logger.Infof("client: stream complete, content=%q", e.content)
		c.settle(n)
		c.pending = nil
		c.phase = clientIdle
	case clientStreamErrorEvent:
		logger.Warnf("client: stream error: %v", e.err)
		c.pending = nil
		c.phase = clientIdle
	}
}

// settle builds an unsigned Transfer for the completed stream and gossips it
// on TopicPending so miners can include it in their next block (spec.md
// §2/§9.c: "completion drives a settled transfer"). None of the held
// PendingTransaction's fields are carried into the Transfer; the caller
// clears the pending record after settle returns. The client has
// no UTXO wallet of its own in this marketplace (only miners mint UTXOs, via
// Mint), so the Transfer carries no Inputs/Outputs of its own — it simply
// records that c.bidAmount tokens are owed to the provider for this
// completion, which passes ValidateAgainst's invariant (b) trivially (both
// sides are zero) and is exactly the record the provider pool share in
// providerShares is computed from.
func (c *clientState) settle(n *Node) {
	receiver, err := keys.ParseHex(string(c.provider))
	if err != nil {
		logger.Warnf("client: settle: bad provider peer %s: %v", c.provider, err)
		return
	}
	t := chain.NewTransfer(time.Now().Unix(), n.Keypair.Public, receiver, c.bidAmount, nil, nil)
	data, err := json.Marshal(t)
	if err != nil {
		logger.Warnf("client: settle: marshal transfer: %v", err)
		return
	}
	if err := n.Overlay.Publish(TopicPending, data); err != nil {
		logger.Warnf("client: settle: publish transfer: %v", err)
		return
	}
	logger.Infof("client: settled transfer %s to %s (%.2f tokens)", t.Hash, c.provider, t.Tokens)
}

// runStream dials provider (ensuring a connection exists), opens the
// STREAM_PROTOCOL byte-stream and runs the dialer side of the stream
// protocol, reporting its outcome back to the main loop via roleEvents.
func (c *clientState) runStream(n *Node, provider keys.PeerID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := n.Overlay.Connect(ctx, provider, ""); err != nil {
		n.roleEvents <- clientStreamErrorEvent{err: err}
		return
	}
	s, err := n.Overlay.OpenStream(ctx, provider, StreamProtocol)
	if err != nil {
		n.roleEvents <- clientStreamErrorEvent{err: err}
		return
	}
	content, err := runClientStream(s, defaultInputContent)
	if err != nil {
		n.roleEvents <- clientStreamErrorEvent{err: err}
		return
	}
	n.roleEvents <- clientStreamDoneEvent{content: content}
}
