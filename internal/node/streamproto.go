package node

import (
	"encoding/json"
	"errors"

	"inferex/internal/overlay"
)

// StreamMessageKind tags the three shapes a StreamMessage can take, per
// spec.md §4.8's "Open | Content(String) | Close".
type StreamMessageKind string

const (
	StreamOpen    StreamMessageKind = "open"
	StreamContent StreamMessageKind = "content"
	StreamClose   StreamMessageKind = "close"
)

// StreamMessage is one length-delimited JSON value exchanged over the
// STREAM_PROTOCOL byte-stream.
type StreamMessage struct {
	Kind    StreamMessageKind `json:"kind"`
	Content string            `json:"content,omitempty"`
}

// ErrProtocolError is returned when a stream peer sends something that does
// not decode as a StreamMessage, per SPEC_FULL.md §7's Protocol taxonomy.
var ErrProtocolError = errors.New("node: stream protocol error")

func writeStreamMessage(s overlay.Stream, m StreamMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return overlay.WriteFrame(s, body)
}

func readStreamMessage(s overlay.Stream) (StreamMessage, error) {
	frame, err := overlay.ReadFrame(s)
	if err != nil {
		return StreamMessage{}, err
	}
	var m StreamMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return StreamMessage{}, ErrProtocolError
	}
	return m, nil
}

// runProviderStream is the listener side of the stream protocol (spec.md
// §4.8): echo every Content message back verbatim until Close, then close.
// The "real LLM inference" non-goal means the echo IS the provider's
// response — a placeholder for a model's completion.
func runProviderStream(s overlay.Stream) error {
	defer s.Close()
	for {
		msg, err := readStreamMessage(s)
		if err != nil {
			return err
		}
		switch msg.Kind {
		case StreamContent:
			if err := writeStreamMessage(s, StreamMessage{Kind: StreamContent, Content: msg.Content}); err != nil {
				return err
			}
		case StreamClose:
			return s.CloseWrite()
		default:
			return ErrProtocolError
		}
	}
}

// runClientStream is the dialer side: send one Content message, wait for
// its echo, then Close and half-close. Returns the echoed content.
func runClientStream(s overlay.Stream, content string) (string, error) {
	defer s.Close()
	if err := writeStreamMessage(s, StreamMessage{Kind: StreamContent, Content: content}); err != nil {
		return "", err
	}
	msg, err := readStreamMessage(s)
	if err != nil {
		return "", err
	}
	if msg.Kind != StreamContent {
		return "", ErrProtocolError
	}
	if err := writeStreamMessage(s, StreamMessage{Kind: StreamClose}); err != nil {
		return "", err
	}
	return msg.Content, s.CloseWrite()
}
