// Package registry implements the engine's name-to-handler map: a
// build-time-only registration surface that becomes an immutable,
// concurrently-shareable routing table once built, matching spec §4.4.
//
// The registry itself only resolves the first ("service") half of
// "service.method"; routing within a service's methods is pushed into the
// Handler so the engine core stays codec- and type-agnostic (spec §4.4
// rationale).
package registry

import (
	"context"

	"github.com/spiral/relayrpc/pkg/codec"
	"github.com/spiral/relayrpc/pkg/message"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// Handler is a per-service dispatch object: given a method name and the
// erased deserializer for the request body, it produces either a
// serializable reply or an error. Handlers are free to run concurrently
// across calls; the server engine spawns one goroutine per request.
//
// ctx is cancelled when the server receives a cancellation sentinel for
// this call's MessageId (spec §4.5); handlers that do any blocking work
// should select on ctx.Done() at their cooperative suspension points. A
// handler that ignores ctx still behaves correctly — spec requires only
// best-effort, cooperative cancellation.
type Handler interface {
	Call(ctx context.Context, method string, dec *codec.Decoder) (reply interface{}, err error)
}

// HandlerFunc adapts a plain function to Handler, for services that do
// their own method switch inline rather than via ReflectHandler.
type HandlerFunc func(ctx context.Context, method string, dec *codec.Decoder) (interface{}, error)

func (f HandlerFunc) Call(ctx context.Context, method string, dec *codec.Decoder) (interface{}, error) {
	return f(ctx, method, dec)
}

// Registry is the immutable, build-time-populated service table.
type Registry struct {
	services map[string]Handler
}

// Builder accumulates registrations before Build() freezes them.
type Builder struct {
	services map[string]Handler
}

// NewBuilder starts a fresh Builder.
func NewBuilder() *Builder {
	return &Builder{services: make(map[string]Handler)}
}

// Register adds a named service handler. Later calls with the same name
// overwrite the earlier one, matching a plain map's semantics.
func (b *Builder) Register(serviceName string, h Handler) *Builder {
	b.services[serviceName] = h
	return b
}

// Build freezes the registrations into an immutable Registry.
func (b *Builder) Build() *Registry {
	frozen := make(map[string]Handler, len(b.services))
	for k, v := range b.services {
		frozen[k] = v
	}
	return &Registry{services: frozen}
}

// Resolve splits "service.method" at the rightmost '.', looks up the
// service, and returns its Handler along with the bare method name. Per
// spec §4.4: no dot, or an unknown service, both yield MethodNotFound;
// unknown methods within a known service are the Handler's own concern.
func (r *Registry) Resolve(serviceMethod string) (h Handler, method string, rpcErr *rpcerr.RpcError) {
	serviceName, methodName, ok := message.SplitServiceMethod(serviceMethod)
	if !ok {
		return nil, "", rpcerr.MethodNotFound()
	}
	h, ok = r.services[serviceName]
	if !ok {
		return nil, "", rpcerr.MethodNotFound()
	}
	return h, methodName, nil
}
