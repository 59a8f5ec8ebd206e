package node

import (
	"encoding/json"
	"fmt"
	"time"
)

// RPCRequest mirrors JSON-RPC 2.0's request shape. Method is
// "<namespace>_<method>", e.g. "chain_getBalance".
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object. Code is a string rather than an
// int so chain_getBalance's empty-chain case can return the literal "1"
// spec.md §8 pins, alongside the numeric JSON-RPC codes below.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RPCResponse mirrors JSON-RPC 2.0's response shape.
type RPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// Standard JSON-RPC 2.0 error codes, per SPEC_FULL.md §7.
const (
	codeParseError     = "-32700"
	codeInvalidRequest = "-32600"
	codeMethodNotFound = "-32601"
	codeInvalidParams  = "-32602"
	codeInternalError  = "-32603"
)

func errResponse(id, code, message string) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func okResponse(id string, result any) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// rpcHandler processes one request's params and returns a result or an
// error; the dispatcher wraps it into a full RPCResponse.
type rpcHandler func(n *Node, params json.RawMessage) (any, *RPCError)

// dispatchTable holds the handlers a node's role makes available, keyed by
// "<namespace>_<method>", registered at construction time per role (spec.md
// §4.9: "a node accepts only methods whose namespace matches its role or
// the shared namespaces").
type dispatchTable map[string]rpcHandler

func sharedMethods() dispatchTable {
	return dispatchTable{
		"net_peerCount":    handlePeerCount,
		"chain_getBalance": handleGetBalance,
	}
}

// dispatch decodes req.Method against n's dispatch table and runs the
// matching handler, translating panics/mismatches into the RPC error
// taxonomy of spec.md §7. Every call, matched or not, is wrapped by
// logMethod so the control plane logs method/id/duration/outcome the way
// the reference stack's HTTP middleware logs every route.
func (n *Node) dispatch(req RPCRequest) RPCResponse {
	return n.logMethod(req, n.dispatchMethod)
}

// logMethod wraps a dispatch call with a single Info-level log line
// recording the method, request id, elapsed time and error code (if any),
// grounded on the reference stack's walletserver/middleware/logger.go
// request-wrapping pattern, translated from HTTP request/response logging to
// JSON-RPC request/response logging.
func (n *Node) logMethod(req RPCRequest, next func(RPCRequest) RPCResponse) RPCResponse {
	start := time.Now()
	resp := next(req)
	if resp.Error != nil {
		logger.Infof("rpc: %s id=%s %s error=%s", req.Method, req.ID, time.Since(start), resp.Error.Code)
	} else {
		logger.Infof("rpc: %s id=%s %s ok", req.Method, req.ID, time.Since(start))
	}
	return resp
}

func (n *Node) dispatchMethod(req RPCRequest) (resp RPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = errResponse(req.ID, codeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errResponse(req.ID, codeInvalidRequest, "invalid request")
	}
	h, ok := n.methods[req.Method]
	if !ok {
		return errResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
	result, rpcErr := h(n, req.Params)
	if rpcErr != nil {
		return RPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return okResponse(req.ID, result)
}

func handlePeerCount(n *Node, _ json.RawMessage) (any, *RPCError) {
	return map[string]uint32{"count": n.peerCount()}, nil
}

type getBalanceParams struct {
	Address string `json:"address"`
}

func handleGetBalance(n *Node, params json.RawMessage) (any, *RPCError) {
	var p getBalanceParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
		}
	}
	addr, err := decodeAddress(p.Address)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	qty, err := n.Chain.BalanceScanChain(addr)
	if err != nil {
		// spec.md §8's literal boundary behavior: a string code "1", not
		// one of the numeric JSON-RPC codes above.
		return nil, &RPCError{Code: "1", Message: "Empty chain"}
	}
	return map[string]float64{"quantity": qty}, nil
}

type startAuctionResult struct {
	Started bool `json:"started"`
}

func handleStartAuction(n *Node, _ json.RawMessage) (any, *RPCError) {
	if n.client == nil {
		return nil, &RPCError{Code: codeMethodNotFound, Message: "not a client node"}
	}
	started := n.client.startAuction(n)
	return startAuctionResult{Started: started}, nil
}
