package node

import (
	"context"
	"errors"

	"inferex/internal/keys"
	"inferex/internal/overlay"
)

// fakeOverlay is a minimal in-memory overlay.Overlay used to drive the
// client/provider/miner state machines without a real libp2p transport, per
// SPEC_FULL.md §8's "in-memory overlay fakes for the role/protocol tests"
// note.
type fakeOverlay struct {
	peer        keys.PeerID
	events      chan overlay.Event
	streams     chan overlay.InboundStream
	published   []fakePublish
	requests    []overlay.NetworkRequest
	subscribed  map[string]bool
	accepting   map[string]bool
}

type fakePublish struct {
	topic string
	data  []byte
}

func newFakeOverlay(peer keys.PeerID) *fakeOverlay {
	return &fakeOverlay{
		peer:       peer,
		events:     make(chan overlay.Event, 16),
		streams:    make(chan overlay.InboundStream, 4),
		subscribed: make(map[string]bool),
		accepting:  make(map[string]bool),
	}
}

func (f *fakeOverlay) LocalPeerID() keys.PeerID { return f.peer }

func (f *fakeOverlay) Subscribe(topic string) error {
	f.subscribed[topic] = true
	return nil
}

func (f *fakeOverlay) Publish(topic string, data []byte) error {
	f.published = append(f.published, fakePublish{topic: topic, data: data})
	return nil
}

func (f *fakeOverlay) SendRequest(_ keys.PeerID, req overlay.NetworkRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeOverlay) SendResponse(respond func(overlay.NetworkResponse) error, resp overlay.NetworkResponse) error {
	return respond(resp)
}

func (f *fakeOverlay) Accept(protocol string) error {
	f.accepting[protocol] = true
	return nil
}

func (f *fakeOverlay) StopAccepting(protocol string) {
	f.accepting[protocol] = false
}

func (f *fakeOverlay) Streams() <-chan overlay.InboundStream { return f.streams }

func (f *fakeOverlay) OpenStream(_ context.Context, _ keys.PeerID, _ string) (overlay.Stream, error) {
	return nil, errors.New("fakeOverlay: OpenStream not supported")
}

func (f *fakeOverlay) Connect(_ context.Context, _ keys.PeerID, _ string) error { return nil }

func (f *fakeOverlay) Events() <-chan overlay.Event { return f.events }

func (f *fakeOverlay) Close() error { return nil }

var _ overlay.Overlay = (*fakeOverlay)(nil)
