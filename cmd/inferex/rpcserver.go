package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"

	log "github.com/sirupsen/logrus"

	"inferex/internal/node"
)

// newRPCListener binds the control-plane TCP address (spec.md §4.9).
func newRPCListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// serveRPC accepts connections and hands each to its own goroutine; every
// connection is an independent request/response stream of JSON objects
// (spec.md §4.9's "simplest wire": one JSON object per Decode/Encode call).
func serveRPC(ctx context.Context, ln net.Listener, n *node.Node) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("rpc: accept: %v", err)
			continue
		}
		go handleRPCConn(ctx, conn, n)
	}
}

func handleRPCConn(ctx context.Context, conn net.Conn, n *node.Node) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req node.RPCRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(node.RPCResponse{JSONRPC: "2.0", Error: &node.RPCError{Code: "-32700", Message: "parse error"}})
			return
		}
		resp, err := n.SubmitRPC(ctx, req)
		if err != nil {
			return
		}
		if err := enc.Encode(resp); err != nil {
			log.Warnf("rpc: write response: %v", err)
			return
		}
	}
}
