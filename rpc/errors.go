package rpc

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures so callers can distinguish an unreachable
// node from rejected credentials, a malformed response, or an error reported
// by the node itself.
type Kind int

const (
	// KindConnection covers transport failures: unreachable host, timeouts,
	// cancelled contexts.
	KindConnection Kind = iota
	// KindAuth covers credential rejection by the node's HTTP layer.
	KindAuth
	// KindProtocol covers responses that are not valid JSON-RPC or that are
	// missing the expected result shape.
	KindProtocol
	// KindNode covers errors reported by the node in the JSON-RPC error field.
	KindNode
)

// String returns the outcome label used by the stats tracker.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// Error is the adapter error type. Op is the RPC method (or "connect" style
// pseudo-op) that failed; Err carries the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrKind reports the Kind of err when it is (or wraps) an adapter Error.
func ErrKind(err error) (Kind, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an adapter error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := ErrKind(err)
	return ok && k == kind
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
