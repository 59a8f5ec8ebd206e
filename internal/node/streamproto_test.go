package node

import (
	"net"
	"testing"
	"time"

	"inferex/internal/overlay"
)

// pipeStream adapts a net.Conn (from net.Pipe) to overlay.Stream. net.Pipe
// has no half-close, so CloseWrite is a no-op; the stream protocol only
// relies on CloseWrite to signal "no more writes", which Close's full
// teardown satisfies well enough for this in-memory test.
type pipeStream struct{ net.Conn }

func (p pipeStream) CloseWrite() error { return nil }

func TestStreamProtocolEchoRoundTrip(t *testing.T) {
	clientConn, providerConn := net.Pipe()
	defer clientConn.Close()
	defer providerConn.Close()

	done := make(chan error, 1)
	go func() {
		done <- runProviderStream(pipeStream{providerConn})
	}()

	got, err := runClientStream(pipeStream{clientConn}, "Hello World")
	if err != nil {
		t.Fatalf("runClientStream: %v", err)
	}
	if got != "Hello World" {
		t.Fatalf("echoed content = %q, want %q", got, "Hello World")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runProviderStream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("provider side did not return after Close")
	}
}

func TestReadStreamMessageRejectsMalformedFrame(t *testing.T) {
	clientConn, providerConn := net.Pipe()
	defer clientConn.Close()
	defer providerConn.Close()

	go func() {
		overlay.WriteFrame(clientConn, []byte("not json"))
	}()

	_, err := readStreamMessage(pipeStream{providerConn})
	if err != ErrProtocolError {
		t.Fatalf("err = %v, want ErrProtocolError", err)
	}
}
