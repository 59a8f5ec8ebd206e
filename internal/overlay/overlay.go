// Package overlay defines the capability interface the node runtime uses
// to reach the network — gossip, request/response and byte-streams — and
// a concrete implementation backed by go-libp2p and go-libp2p-pubsub
// (see libp2p_adapter.go). spec.md §4.3 treats the overlay as an external
// collaborator described only through this interface; SPEC_FULL.md §4.3
// fixes the concrete transport so the module builds and runs end to end.
package overlay

import (
	"context"

	"inferex/internal/keys"
)

// GossipMessage is an inbound message delivered on a subscribed topic.
type GossipMessage struct {
	Topic  string
	Data   []byte
	Source keys.PeerID
}

// RequestKind distinguishes the two request/response message shapes
// spec.md §4.3 names.
type RequestKind string

const (
	KindOpenStream RequestKind = "OpenStream"
	KindChain      RequestKind = "Chain"
)

// NetworkRequest is an outbound or inbound typed request. It has no body:
// OpenStream and Chain are both argument-less requests whose interest is
// carried entirely by Kind; see NetworkResponse for the reply bodies.
type NetworkRequest struct {
	ID   string
	Kind RequestKind
}

// NetworkResponse is the reply to a NetworkRequest.
type NetworkResponse struct {
	ID      string
	Kind    RequestKind
	Opened  bool   // valid when Kind == KindOpenStream
	ChainJSON []byte // valid when Kind == KindChain: JSON-encoded []*chain.Block
}

// InboundRequest is delivered to the node runtime when a peer sends us a
// NetworkRequest. Respond must be called exactly once.
type InboundRequest struct {
	Peer    keys.PeerID
	Request NetworkRequest
	Respond func(NetworkResponse) error
}

// InboundResponse correlates a NetworkResponse back to the request-id that
// produced it.
type InboundResponse struct {
	Peer     keys.PeerID
	Response NetworkResponse
}

// Stream is a bidirectional, ordered, reliable, closable byte stream.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	CloseWrite() error
}

// InboundStream pairs an accepted stream with the peer that opened it.
type InboundStream struct {
	Peer   keys.PeerID
	Stream Stream
}

// Event is the union of everything the node runtime's main loop selects
// over from the overlay: gossip messages, inbound requests, inbound
// responses, and swarm connectivity events.
type Event struct {
	Gossip   *GossipMessage
	Request  *InboundRequest
	Response *InboundResponse
	Swarm    *SwarmEvent
}

// SwarmEventKind enumerates the connectivity events spec.md §4.3 names.
type SwarmEventKind int

const (
	NewListenAddr SwarmEventKind = iota
	ConnectionEstablished
	ConnectionClosed
)

// SwarmEvent is a connectivity notification.
type SwarmEvent struct {
	Kind  SwarmEventKind
	Peer  keys.PeerID
	Addr  string
	Cause error
}

// Sentinel transport errors per SPEC_FULL.md §7's "Transport" taxonomy.
var (
	ErrUnsupportedProtocol = transportError("overlay: unsupported protocol")
	ErrDisconnected        = transportError("overlay: disconnected")
	ErrStreamClosed        = transportError("overlay: stream closed")
)

type transportError string

func (e transportError) Error() string { return string(e) }

// Overlay is the capability interface the node runtime depends on.
// Implementations must deliver Events on the returned channel until ctx is
// canceled or Close is called.
type Overlay interface {
	// LocalPeerID returns this node's stable peer identifier.
	LocalPeerID() keys.PeerID

	// Subscribe joins a gossip topic; inbound messages arrive as Events
	// with Gossip set.
	Subscribe(topic string) error
	// Publish sends data on a topic this node has joined (joining
	// implicitly if needed).
	Publish(topic string, data []byte) error

	// SendRequest sends req to peer and returns immediately; the response,
	// if any, arrives as an Event with Response set correlated by req.ID.
	SendRequest(peer keys.PeerID, req NetworkRequest) error
	// SendResponse completes a pending inbound request.
	SendResponse(respond func(NetworkResponse) error, resp NetworkResponse) error

	// Accept registers this node as willing to accept inbound byte-streams
	// for protocol; accepted streams are not delivered as Events but on the
	// Streams() channel.
	Accept(protocol string) error
	// StopAccepting undoes Accept; at most one stream task should be
	// running per provider at a time (spec.md §4.6), enforced by the
	// caller, not by this interface.
	StopAccepting(protocol string)
	// Streams returns the channel of freshly accepted inbound streams.
	Streams() <-chan InboundStream
	// OpenStream dials peer and opens a stream for protocol.
	OpenStream(ctx context.Context, peer keys.PeerID, protocol string) (Stream, error)
	// Connect ensures a connection to peer exists, dialing addr if given.
	Connect(ctx context.Context, peer keys.PeerID, addr string) error

	// Events returns the channel of gossip/request/response/swarm events.
	Events() <-chan Event

	// Close tears down the overlay.
	Close() error
}
