package node

import (
	"testing"
	"time"

	"inferex/internal/overlay"
)

func TestProviderBidsOnAuctionGossip(t *testing.T) {
	n, ov := newTestNode(KindProvider)

	consumed := n.provider.handleOverlay(n, overlay.Event{
		Gossip: &overlay.GossipMessage{Topic: TopicAuction, Source: "client-1", Data: []byte(`{}`)},
	})
	if !consumed {
		t.Fatalf("provider did not consume auction gossip")
	}
	if n.provider.phase != providerAwaitingBidResponse {
		t.Fatalf("phase = %v, want providerAwaitingBidResponse", n.provider.phase)
	}
	if n.provider.awaitingPeer != "client-1" {
		t.Fatalf("awaitingPeer = %s, want client-1", n.provider.awaitingPeer)
	}
	if len(ov.published) != 1 || ov.published[0].topic != "client-1" {
		t.Fatalf("expected bid published to client-1, got %+v", ov.published)
	}
}

// TestBusyProviderRejectsSecondOpenStream exercises spec.md §8 scenario C:
// a provider already listening for one client's stream rejects a second
// OpenStream request with opened:false rather than accepting both.
func TestBusyProviderRejectsSecondOpenStream(t *testing.T) {
	n, ov := newTestNode(KindProvider)
	n.provider.phase = providerListening

	var gotResp overlay.NetworkResponse
	consumed := n.provider.handleOverlay(n, overlay.Event{
		Request: &overlay.InboundRequest{
			Peer:    "second-client",
			Request: overlay.NetworkRequest{ID: "req-2", Kind: overlay.KindOpenStream},
			Respond: func(r overlay.NetworkResponse) error { gotResp = r; return nil },
		},
	})
	if !consumed {
		t.Fatalf("provider did not consume the second OpenStream request")
	}
	if gotResp.Opened {
		t.Fatalf("busy provider accepted a second stream")
	}
	if n.provider.phase != providerListening {
		t.Fatalf("phase changed while already listening: %v", n.provider.phase)
	}
	if ov.accepting[StreamProtocol] {
		t.Fatalf("provider re-accepted the stream protocol while busy")
	}
}

func TestProviderAcceptsMatchingOpenStream(t *testing.T) {
	n, ov := newTestNode(KindProvider)
	n.provider.phase = providerAwaitingBidResponse
	n.provider.awaitingPeer = "client-1"

	var gotResp overlay.NetworkResponse
	n.provider.handleOverlay(n, overlay.Event{
		Request: &overlay.InboundRequest{
			Peer:    "client-1",
			Request: overlay.NetworkRequest{ID: "req-1", Kind: overlay.KindOpenStream},
			Respond: func(r overlay.NetworkResponse) error { gotResp = r; return nil },
		},
	})
	if !gotResp.Opened {
		t.Fatalf("provider rejected the peer it was awaiting")
	}
	if n.provider.phase != providerListening {
		t.Fatalf("phase = %v, want providerListening", n.provider.phase)
	}
	if !ov.accepting[StreamProtocol] {
		t.Fatalf("provider did not Accept the stream protocol")
	}
}

func TestProviderAwaitWindowExpires(t *testing.T) {
	n, _ := newTestNode(KindProvider)
	n.provider.phase = providerAwaitingBidResponse
	n.provider.startedAt = time.Now().Add(-2 * AwaitWindow)

	n.provider.onTick(n, time.Now())

	if n.provider.phase != providerIdle {
		t.Fatalf("phase = %v, want providerIdle after await window elapsed", n.provider.phase)
	}
}
