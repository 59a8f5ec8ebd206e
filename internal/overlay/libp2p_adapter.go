package overlay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	ma "github.com/multiformats/go-multiaddr"
	log "github.com/sirupsen/logrus"

	"inferex/internal/keys"
)

// keys.PeerID is the hex-encoded Ed25519 public key (keys.DerivePeerID), the
// domain identity carried in bids, auctions and chain messages. libp2p's own
// peer.ID is a multihash of the marshaled public key — a different encoding
// of the same identity. Because Ed25519 public keys marshal to fewer than 42
// bytes, libp2p inlines them as "identity" multihashes, so the two are
// losslessly convertible without a peerstore round-trip.

// libp2pPeerID derives the libp2p peer.ID that corresponds to a keys.PeerID,
// for dialing and stream operations.
func libp2pPeerID(p keys.PeerID) (peer.ID, error) {
	raw, err := hex.DecodeString(string(p))
	if err != nil {
		return "", fmt.Errorf("overlay: decode peer id: %w", err)
	}
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(raw)
	if err != nil {
		return "", fmt.Errorf("overlay: unmarshal peer public key: %w", err)
	}
	return peer.IDFromPublicKey(pub)
}

// domainPeerID recovers the keys.PeerID (hex pubkey) encoded in a libp2p
// peer.ID.
func domainPeerID(pid peer.ID) keys.PeerID {
	pub, err := pid.ExtractPublicKey()
	if err != nil {
		// Not an inline identity hash (shouldn't happen for the Ed25519
		// keys this overlay deals exclusively in); fall back to the raw
		// libp2p encoding rather than losing the event.
		return keys.PeerID(pid.String())
	}
	raw, err := pub.Raw()
	if err != nil {
		return keys.PeerID(pid.String())
	}
	return keys.PeerID(hex.EncodeToString(raw))
}

// reqRespProtocol carries NetworkRequest/NetworkResponse exchanges: one
// stream per request, grounded on the reference stack's
// core/peer_management.go SendAsync (one libp2p stream per message) rather
// than multiplexing many requests over one long-lived stream, since the
// workload here is low-frequency (one OpenStream per auction, one Chain
// request per catch-up).
const reqRespProtocol = protocol.ID("/inferex/reqresp/1.0")

var logger = log.New()

// SetLogger overrides the package logger.
func SetLogger(l *log.Logger) { logger = l }

// Libp2pOverlay implements Overlay on top of a go-libp2p host and a
// go-libp2p-pubsub router. Grounded on core/network.go's NewNode/Subscribe/
// Broadcast and core/peer_management.go's SendAsync/host.NewStream.
type Libp2pOverlay struct {
	ctx    context.Context
	cancel context.CancelFunc
	h      host.Host
	ps     *pubsub.PubSub

	mu       sync.Mutex
	topics   map[string]*pubsub.Topic
	subs     map[string]*pubsub.Subscription
	accepted map[protocol.ID]bool

	events  chan Event
	streams chan InboundStream
}

// NewLibp2pOverlay constructs a host bound to kp's identity, joins no
// topics yet, and starts listening for the request/response protocol and
// swarm notifications. bootstrapPeers are dialed best-effort.
func NewLibp2pOverlay(ctx context.Context, kp *keys.Keypair, listenAddr string, bootstrapPeers []string) (*Libp2pOverlay, error) {
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(kp.Private)
	if err != nil {
		return nil, fmt.Errorf("overlay: bind identity: %w", err)
	}

	hctx, cancel := context.WithCancel(ctx)
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr), libp2p.Identity(priv))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("overlay: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(hctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("overlay: create pubsub: %w", err)
	}

	o := &Libp2pOverlay{
		ctx: hctx, cancel: cancel, h: h, ps: ps,
		topics:   make(map[string]*pubsub.Topic),
		subs:     make(map[string]*pubsub.Subscription),
		accepted: make(map[protocol.ID]bool),
		events:   make(chan Event, 64),
		streams:  make(chan InboundStream, 8),
	}

	h.SetStreamHandler(reqRespProtocol, o.handleReqRespStream)
	h.Network().Notify(&swarmNotifiee{o: o})

	for _, addr := range bootstrapPeers {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			logger.Warnf("overlay: invalid bootstrap addr %s: %v", addr, err)
			continue
		}
		if err := h.Connect(hctx, *pi); err != nil {
			logger.Warnf("overlay: bootstrap dial %s failed: %v", addr, err)
			continue
		}
		logger.Infof("overlay: bootstrapped to %s", addr)
	}

	return o, nil
}

func (o *Libp2pOverlay) LocalPeerID() keys.PeerID {
	return domainPeerID(o.h.ID())
}

func (o *Libp2pOverlay) Subscribe(topic string) error {
	o.mu.Lock()
	if _, ok := o.subs[topic]; ok {
		o.mu.Unlock()
		return nil
	}
	t, ok := o.topics[topic]
	var err error
	if !ok {
		t, err = o.ps.Join(topic)
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("overlay: join topic %s: %w", topic, err)
		}
		o.topics[topic] = t
	}
	sub, err := t.Subscribe()
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("overlay: subscribe topic %s: %w", topic, err)
	}
	o.subs[topic] = sub
	o.mu.Unlock()

	go o.pumpSubscription(topic, sub)
	return nil
}

func (o *Libp2pOverlay) pumpSubscription(topic string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(o.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == o.h.ID() {
			continue
		}
		o.emit(Event{Gossip: &GossipMessage{
			Topic:  topic,
			Data:   msg.Data,
			Source: domainPeerID(msg.GetFrom()),
		}})
	}
}

func (o *Libp2pOverlay) Publish(topic string, data []byte) error {
	o.mu.Lock()
	t, ok := o.topics[topic]
	var err error
	if !ok {
		t, err = o.ps.Join(topic)
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("overlay: join topic %s: %w", topic, err)
		}
		o.topics[topic] = t
	}
	o.mu.Unlock()
	return t.Publish(o.ctx, data)
}

// reqRespWire is the length-delimited JSON body exchanged on a
// reqRespProtocol stream, carrying either a request (from dialer to
// listener) or a response (the listener's reply, same stream).
type reqRespWire struct {
	IsResponse bool            `json:"is_response"`
	Request    *NetworkRequest `json:"request,omitempty"`
	Response   *NetworkResponse `json:"response,omitempty"`
}

// handleReqRespStream reads the inbound request and hands the listener's
// reply to the node's main loop as a closure; the stream must stay open
// until that closure actually runs (respond is called asynchronously, from
// a later Run() loop iteration, not before this function returns), so the
// stream is only closed once a reply is written or the request is malformed.
func (o *Libp2pOverlay) handleReqRespStream(s network.Stream) {
	frame, err := ReadFrame(s)
	if err != nil {
		logger.Warnf("overlay: reqresp read: %v", err)
		s.Close()
		return
	}
	var w reqRespWire
	if err := json.Unmarshal(frame, &w); err != nil || w.Request == nil {
		logger.Warnf("overlay: reqresp decode: %v", err)
		s.Close()
		return
	}
	peerID := domainPeerID(s.Conn().RemotePeer())
	respond := func(resp NetworkResponse) error {
		defer s.Close()
		out, err := json.Marshal(reqRespWire{IsResponse: true, Response: &resp})
		if err != nil {
			return err
		}
		return WriteFrame(s, out)
	}
	o.emit(Event{Request: &InboundRequest{Peer: peerID, Request: *w.Request, Respond: respond}})
}

func (o *Libp2pOverlay) SendRequest(p keys.PeerID, req NetworkRequest) error {
	pid, err := libp2pPeerID(p)
	if err != nil {
		return err
	}
	s, err := o.h.NewStream(o.ctx, pid, reqRespProtocol)
	if err != nil {
		return ErrUnsupportedProtocol
	}
	out, err := json.Marshal(reqRespWire{Request: &req})
	if err != nil {
		s.Close()
		return err
	}
	if err := WriteFrame(s, out); err != nil {
		s.Close()
		return err
	}
	go o.awaitResponse(s, p)
	return nil
}

func (o *Libp2pOverlay) awaitResponse(s network.Stream, p keys.PeerID) {
	defer s.Close()
	frame, err := ReadFrame(s)
	if err != nil {
		// Responses may never arrive (spec.md §4.3); the caller is
		// responsible for timing out, so we simply stop waiting.
		return
	}
	var w reqRespWire
	if err := json.Unmarshal(frame, &w); err != nil || w.Response == nil {
		return
	}
	o.emit(Event{Response: &InboundResponse{Peer: p, Response: *w.Response}})
}

func (o *Libp2pOverlay) SendResponse(respond func(NetworkResponse) error, resp NetworkResponse) error {
	return respond(resp)
}

func (o *Libp2pOverlay) Accept(proto string) error {
	pid := protocol.ID(proto)
	o.mu.Lock()
	o.accepted[pid] = true
	o.mu.Unlock()
	o.h.SetStreamHandler(pid, func(s network.Stream) {
		o.mu.Lock()
		ok := o.accepted[pid]
		o.mu.Unlock()
		if !ok {
			s.Reset()
			return
		}
		select {
		case o.streams <- InboundStream{Peer: domainPeerID(s.Conn().RemotePeer()), Stream: s}:
		case <-o.ctx.Done():
			s.Close()
		}
	})
	return nil
}

func (o *Libp2pOverlay) StopAccepting(proto string) {
	o.mu.Lock()
	o.accepted[protocol.ID(proto)] = false
	o.mu.Unlock()
}

func (o *Libp2pOverlay) Streams() <-chan InboundStream { return o.streams }

func (o *Libp2pOverlay) OpenStream(ctx context.Context, p keys.PeerID, proto string) (Stream, error) {
	pid, err := libp2pPeerID(p)
	if err != nil {
		return nil, err
	}
	s, err := o.h.NewStream(ctx, pid, protocol.ID(proto))
	if err != nil {
		return nil, ErrUnsupportedProtocol
	}
	return s, nil
}

func (o *Libp2pOverlay) Connect(ctx context.Context, p keys.PeerID, addr string) error {
	pid, err := libp2pPeerID(p)
	if err != nil {
		return err
	}
	if len(o.h.Network().ConnsToPeer(pid)) > 0 {
		return nil
	}
	if addr != "" {
		if pi, err := peer.AddrInfoFromString(addr); err == nil {
			return o.h.Connect(ctx, *pi)
		}
	}
	return o.h.Connect(ctx, peer.AddrInfo{ID: pid})
}

func (o *Libp2pOverlay) Events() <-chan Event { return o.events }

func (o *Libp2pOverlay) emit(e Event) {
	select {
	case o.events <- e:
	case <-o.ctx.Done():
	}
}

func (o *Libp2pOverlay) Close() error {
	o.cancel()
	return o.h.Close()
}

// swarmNotifiee bridges libp2p's network.Notifiee callbacks to Events,
// grounded on core/network.go's mdns.Notifee wiring style (one small
// adapter struct per event source feeding one channel).
type swarmNotifiee struct {
	o *Libp2pOverlay
}

func (n *swarmNotifiee) Listen(_ network.Network, addr ma.Multiaddr) {
	n.o.emit(Event{Swarm: &SwarmEvent{Kind: NewListenAddr, Addr: addr.String()}})
}
func (n *swarmNotifiee) ListenClose(network.Network, ma.Multiaddr) {}
func (n *swarmNotifiee) Connected(_ network.Network, c network.Conn) {
	n.o.emit(Event{Swarm: &SwarmEvent{Kind: ConnectionEstablished, Peer: domainPeerID(c.RemotePeer())}})
}
func (n *swarmNotifiee) Disconnected(_ network.Network, c network.Conn) {
	n.o.emit(Event{Swarm: &SwarmEvent{Kind: ConnectionClosed, Peer: domainPeerID(c.RemotePeer())}})
}
