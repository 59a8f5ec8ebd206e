package node

import (
	"context"
	"encoding/json"
	"time"

	"inferex/internal/chain"
	"inferex/internal/keys"
	"inferex/internal/overlay"
)

type providerPhase int

const (
	providerIdle providerPhase = iota
	providerAwaitingBidResponse
	providerListening
)

type providerState struct {
	phase        providerPhase
	awaitingPeer keys.PeerID
	startedAt    time.Time
	listenCancel context.CancelFunc
}

func newProviderState() *providerState {
	return &providerState{phase: providerIdle}
}

func (p *providerState) start(n *Node) {
	logger.Infof("provider: listening for auctions")
}

// handleOverlay bids on every auction gossip while Idle, and answers
// OpenStream requests: accept only if the requester matches the peer it is
// currently awaiting a response from and no stream task is already running
// (spec.md §4.6 "only one concurrent stream task per provider").
func (p *providerState) handleOverlay(n *Node, ev overlay.Event) bool {
	switch {
	case ev.Gossip != nil && ev.Gossip.Topic == TopicAuction && p.phase == providerIdle:
		bid := chain.ProvisionBid{
			Peer:     n.Overlay.LocalPeerID(),
			Distance: n.cfg.ProviderDistance,
			Bid:      n.cfg.ProviderBid,
		}
		data, err := json.Marshal(bid)
		if err != nil {
			logger.Warnf("provider: marshal bid: %v", err)
			return true
		}
		if err := n.Overlay.Publish(string(ev.Gossip.Source), data); err != nil {
			logger.Warnf("provider: publish bid to %s: %v", ev.Gossip.Source, err)
			return true
		}
		p.phase = providerAwaitingBidResponse
		p.awaitingPeer = ev.Gossip.Source
		p.startedAt = time.Now()
		return true

	case ev.Request != nil && ev.Request.Request.Kind == overlay.KindOpenStream:
		opened := p.phase == providerAwaitingBidResponse && ev.Request.Peer == p.awaitingPeer
		resp := overlay.NetworkResponse{ID: ev.Request.Request.ID, Kind: overlay.KindOpenStream, Opened: opened}
		if err := n.Overlay.SendResponse(ev.Request.Respond, resp); err != nil {
			logger.Warnf("provider: send OpenStreamAck: %v", err)
		}
		if opened {
			p.phase = providerListening
			ctx, cancel := context.WithCancel(context.Background())
			p.listenCancel = cancel
			if err := n.Overlay.Accept(StreamProtocol); err != nil {
				logger.Warnf("provider: accept %s: %v", StreamProtocol, err)
				p.phase = providerIdle
				cancel()
				return true
			}
			go p.listen(n, ctx)
		}
		return true

	default:
		return false
	}
}

// onTick enforces the await window: if no OpenStream request arrives from
// the peer this provider bid to within AwaitWindow, it returns to Idle.
func (p *providerState) onTick(n *Node, now time.Time) {
	if p.phase != providerAwaitingBidResponse {
		return
	}
	if now.Sub(p.startedAt) >= AwaitWindow {
		logger.Infof("provider: await window elapsed, returning to idle")
		p.phase = providerIdle
	}
}

type providerStreamDoneEvent struct{ err error }

func (p *providerState) handleRoleEvent(n *Node, ev any) {
	switch e := ev.(type) {
	case providerStreamDoneEvent:
		if e.err != nil {
			logger.Infof("provider: stream ended: %v", e.err)
		} else {
			logger.Infof("provider: stream completed")
		}
		p.phase = providerIdle
		if p.listenCancel != nil {
			p.listenCancel()
		}
		p.listenCancel = nil
	}
}

// listen waits for the single inbound stream this provider accepted and
// runs the listener side of the stream protocol against it, then stops
// accepting further streams and reports completion to the main loop.
func (p *providerState) listen(n *Node, ctx context.Context) {
	select {
	case inbound, ok := <-n.Overlay.Streams():
		if !ok {
			n.Overlay.StopAccepting(StreamProtocol)
			return
		}
		err := runProviderStream(inbound.Stream)
		n.Overlay.StopAccepting(StreamProtocol)
		n.roleEvents <- providerStreamDoneEvent{err: err}
	case <-ctx.Done():
		n.Overlay.StopAccepting(StreamProtocol)
	}
}
