// Package rpcerr defines the engine's error taxonomy: the wire-visible
// RpcError enum surfaced to remote callers, and the local Error kinds
// (IoError, ParseError, TransportError, Canceled, Internal) that never
// cross the wire but classify failures for the caller of Client/Server.
//
// Wrapping follows the teacher's op-tagged convention (see
// github.com/spiral/errors, used throughout the teacher's codec and relay
// code): every exported function that can fail opens with a const Op and
// wraps the underlying error with that op, so error messages read as a
// breadcrumb trail back to the failing call site.
package rpcerr

import (
	"errors"
	"fmt"
)

// Op names the operation an Error occurred in, e.g. "frame: read".
type Op string

// Kind classifies a local (non-wire) engine error.
type Kind int

const (
	// KindUnknown is the zero value; never produced intentionally.
	KindUnknown Kind = iota
	// KindIO marks a failure of the underlying transport.
	KindIO
	// KindParse marks a (de)serialization failure.
	KindParse
	// KindTransport marks a framing, magic, or length-prefix violation.
	KindTransport
	// KindCanceled marks a client call cancelled locally.
	KindCanceled
	// KindInternal marks an engine invariant violation, e.g. a dropped
	// channel or a pending-map inconsistency.
	KindInternal
	// KindRPC marks a semantic error surfaced by the remote peer; the
	// wire-visible RpcError is attached as Err.
	KindRPC
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindTransport:
		return "transport"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	case KindRPC:
		return "rpc"
	default:
		return "unknown"
	}
}

// Error is the engine-local error type returned to users of Client and
// Server. It is never itself what goes on the wire; RpcError is.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error from an Op and a Kind and/or a wrapped error, mirroring
// the teacher's errors.E(op, ...) constructor: extra arguments are inspected
// by type so call sites stay terse.
func E(op Op, args ...interface{}) *Error {
	e := &Error{Op: op}
	for _, a := range args {
		switch v := a.(type) {
		case Kind:
			e.Kind = v
		case error:
			e.Err = v
		case string:
			e.Err = errors.New(v)
		}
	}
	return e
}

// Is reports whether err is an *Error of the given Kind, unwrapping through
// any number of wrapping *Error layers.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		if e.Err == nil {
			return false
		}
		err = e.Err
	}
	return false
}

// RpcError is the wire-visible error enum, serialized with the same codec
// as ordinary payloads and returned to the caller as the body of an
// is_error response.
type RpcError struct {
	Code    RpcErrorCode `msgpack:"code" json:"code"`
	Message string       `msgpack:"message,omitempty" json:"message,omitempty"`
}

// RpcErrorCode enumerates the wire-visible error kinds from spec §6.
type RpcErrorCode uint8

const (
	ECParseError RpcErrorCode = iota
	ECInvalidRequest
	ECMethodNotFound
	ECInvalidParams
	ECInternalError
	ECServerError
)

func (e *RpcError) Error() string {
	switch e.Code {
	case ECParseError:
		return "parse error"
	case ECInvalidRequest:
		return "invalid request"
	case ECMethodNotFound:
		return "method not found"
	case ECInvalidParams:
		return "invalid params"
	case ECInternalError:
		return "internal error"
	case ECServerError:
		return "server error: " + e.Message
	default:
		return "unknown rpc error"
	}
}

// Convenience constructors, one per RpcError variant named in spec §6.
func ParseError() *RpcError      { return &RpcError{Code: ECParseError} }
func InvalidRequest() *RpcError  { return &RpcError{Code: ECInvalidRequest} }
func MethodNotFound() *RpcError  { return &RpcError{Code: ECMethodNotFound} }
func InvalidParams() *RpcError   { return &RpcError{Code: ECInvalidParams} }
func InternalError() *RpcError   { return &RpcError{Code: ECInternalError} }
func ServerError(msg string) *RpcError {
	return &RpcError{Code: ECServerError, Message: msg}
}

// AsRpcError unwraps err down to an *RpcError if one is present anywhere in
// its chain, otherwise wraps err's message as a ServerError, matching the
// server engine's "wrap as RpcError::ServerError(e.to_string())" fallback
// from spec §4.5.
func AsRpcError(err error) *RpcError {
	if err == nil {
		return nil
	}
	var rpc *RpcError
	if errors.As(err, &rpc) {
		return rpc
	}
	return ServerError(err.Error())
}
