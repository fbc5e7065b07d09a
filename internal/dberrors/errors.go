// Package dberrors defines the typed error taxonomy shared by every layer of
// the client: the wire codec, the handshake engine, the connection pool, and
// the façade all return these types (wrapped with fmt.Errorf("...: %w", err)
// at each boundary) rather than ad hoc strings, so callers can use
// errors.As to branch on failure kind per §7.
package dberrors

import "fmt"

// InvalidArgument reports a caller-side precondition failure. It never
// touches the wire.
type InvalidArgument struct {
	Reason string
}

func (e *InvalidArgument) Error() string { return "invalid argument: " + e.Reason }

// NewInvalidArgument builds an *InvalidArgument with a formatted reason.
func NewInvalidArgument(format string, args ...any) *InvalidArgument {
	return &InvalidArgument{Reason: fmt.Sprintf(format, args...)}
}

// HandshakeFailed reports that the server rejected login, or that the
// connection phase desynced before login completed.
type HandshakeFailed struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *HandshakeFailed) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("handshake failed: #%s (%d): %s", e.SQLState, e.Code, e.Message)
	}
	return fmt.Sprintf("handshake failed: (%d): %s", e.Code, e.Message)
}

// ConnectionLost reports that a send/receive failed or the peer closed the
// connection mid-stream. The façade retries exactly once against a fresh
// session on this error.
type ConnectionLost struct {
	Cause error
}

func (e *ConnectionLost) Error() string { return fmt.Sprintf("connection lost: %v", e.Cause) }
func (e *ConnectionLost) Unwrap() error  { return e.Cause }

// ProtocolError reports an unexpected frame shape, an out-of-sequence
// packet, or malformed column metadata. Like ConnectionLost it triggers one
// automatic retry.
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Cause)
	}
	return "protocol error: " + e.Reason
}
func (e *ProtocolError) Unwrap() error { return e.Cause }

// ServerError reports a well-formed Error packet from the server. It is
// never retried automatically.
type ServerError struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ServerError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("server error #%s (%d): %s", e.SQLState, e.Code, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// Timeout reports that the query-response deadline was exceeded.
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string { return fmt.Sprintf("timeout waiting for %s", e.Op) }

// ResourceExhausted reports that a connection pool wait timed out.
type ResourceExhausted struct {
	Reason string
}

func (e *ResourceExhausted) Error() string { return "resource exhausted: " + e.Reason }
