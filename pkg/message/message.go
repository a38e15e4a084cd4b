// Package message defines the typed request/response headers exchanged by
// the RPC engine, and the cancellation sentinel used to tear down an
// in-flight call without an extra wire opcode.
package message

import (
	"strconv"
	"strings"
)

// MessageId couples a request to its response. It is assigned by the client,
// monotonically, modulo 2^16; a client must not reuse an id while a call
// with that id is still in flight.
type MessageId = uint16

// CANCELLATION_TOKEN is the literal service_method value that marks a
// request as a cancellation sentinel rather than an ordinary call.
const CANCELLATION_TOKEN = "!CANCEL"

// CANCELLATION_TOKEN_DELIM separates the sentinel token from the decimal
// MessageId of the call being cancelled, e.g. "!CANCEL.7".
const CANCELLATION_TOKEN_DELIM = "."

// RequestHeader is the header sub-frame (frame_id 0) of a logical request
// message.
type RequestHeader struct {
	Id            MessageId `msgpack:"id"`
	ServiceMethod string    `msgpack:"service_method"`
}

// ResponseHeader is the header sub-frame (frame_id 0) of a logical response
// message.
type ResponseHeader struct {
	Id      MessageId `msgpack:"id"`
	IsError bool      `msgpack:"is_error"`
}

// IsCancellation reports whether h is the cancellation sentinel.
func (h RequestHeader) IsCancellation() bool {
	return h.ServiceMethod == CANCELLATION_TOKEN
}

// SplitServiceMethod splits "service.method" at the rightmost '.', as
// required by spec: the dot separator is the rightmost one so that service
// names may themselves contain dots (a method name never contains one).
func SplitServiceMethod(serviceMethod string) (service, method string, ok bool) {
	pos := strings.LastIndex(serviceMethod, ".")
	if pos < 0 {
		return "", "", false
	}
	return serviceMethod[:pos], serviceMethod[pos+1:], true
}

// CancellationBody builds the UTF-8 body of a cancellation sentinel request
// for the given target id: "!CANCEL.<id>".
func CancellationBody(target MessageId) string {
	return CANCELLATION_TOKEN + CANCELLATION_TOKEN_DELIM + strconv.FormatUint(uint64(target), 10)
}

// ParseCancellationBody parses a cancellation sentinel body of the form
// "!CANCEL.<id>" and returns the target MessageId.
func ParseCancellationBody(body string) (MessageId, bool) {
	prefix := CANCELLATION_TOKEN + CANCELLATION_TOKEN_DELIM
	if !strings.HasPrefix(body, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(body[len(prefix):], 10, 16)
	if err != nil {
		return 0, false
	}
	return MessageId(id), true
}
