package client

import (
	"context"

	"github.com/spiral/relayrpc/pkg/message"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// Call is a handle to one in-flight RPC. It resolves exactly once, either
// with a decoded Res or with an error classified per spec §7.
type Call[Res any] struct {
	id     message.MessageId
	done   chan struct{}
	result Res
	err    error

	cancel chan struct{}
}

// Done reports, via channel closure, when the call has resolved.
func (c *Call[Res]) Done() <-chan struct{} { return c.done }

// Result blocks until the call resolves and returns its value or error.
// Callers wanting a deadline should race this against their own
// context.Context or timer — spec §5 leaves timeouts to the caller's own
// utility around the call future, not the engine.
func (c *Call[Res]) Result() (Res, error) {
	<-c.done
	return c.result, c.err
}

// Cancel requests cancellation of the call: the underlying call goroutine
// sends a cancellation sentinel to the server and resolves this Call with
// a Canceled error. Per spec §9's Open Question, if the server's reply
// happens to race the cancellation and arrives first, the normal reply
// wins — cancellation only affects calls still pending locally when it is
// processed. Calling Cancel more than once is a no-op.
func (c *Call[Res]) Cancel() {
	select {
	case c.cancel <- struct{}{}:
	default:
	}
}

// Go issues an asynchronous call and returns immediately with a handle;
// this is the "spawn-task" variant from spec §4.6, and also the core the
// synchronous Invoke wrapper is built on.
func Go[Res any](c *Client, method string, args interface{}) *Call[Res] {
	call := &Call[Res]{
		done:   make(chan struct{}),
		cancel: make(chan struct{}, 1),
	}

	id, err := c.allocateID()
	if err != nil {
		call.err = err
		close(call.done)
		return call
	}
	call.id = id

	respCh := make(chan pendingResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	header := message.RequestHeader{Id: id, ServiceMethod: method}
	select {
	case c.requests <- outboundRequest{header: header, body: args}:
	case <-c.stop:
		c.removePending(id)
		call.err = rpcerr.E("client: call", rpcerr.KindInternal, "client is closed")
		close(call.done)
		return call
	}

	go awaitCall(c, call, respCh)
	return call
}

func (c *Client) removePending(id message.MessageId) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// awaitCall is a free function rather than a method because Go methods
// cannot introduce their own type parameters beyond the receiver's.
func awaitCall[Res any](c *Client, call *Call[Res], respCh chan pendingResult) {
	select {
	case <-call.cancel:
		c.removePending(call.id)
		c.sendCancellation(call.id)
		call.err = rpcerr.E("client: call", rpcerr.KindCanceled, "call cancelled")
		close(call.done)

	case res := <-respCh:
		decodeInto(call, res)
		close(call.done)
	}
}

func (c *Client) sendCancellation(target message.MessageId) {
	header := message.RequestHeader{
		Id:            target,
		ServiceMethod: message.CANCELLATION_TOKEN,
	}
	body := message.CancellationBody(target)
	select {
	case c.requests <- outboundRequest{header: header, body: body}:
	case <-c.stop:
	}
}

func decodeInto[Res any](call *Call[Res], res pendingResult) {
	if res.dec == nil {
		call.err = rpcerr.E("client: call", rpcerr.KindIO, "connection lost")
		return
	}
	if res.isError {
		var rpcErr rpcerr.RpcError
		if err := res.dec.Decode(&rpcErr); err != nil {
			call.err = rpcerr.E("client: call", rpcerr.KindParse, err)
			return
		}
		call.err = rpcerr.E("client: call", rpcerr.KindRPC, &rpcErr)
		return
	}
	var reply Res
	if err := res.dec.Decode(&reply); err != nil {
		call.err = rpcerr.E("client: call", rpcerr.KindParse, err)
		return
	}
	call.result = reply
}

// Invoke issues a call and blocks until it resolves or ctx is done,
// cancelling the call in the latter case; this is the "synchronous-style"
// variant from spec §4.6, built on the same async core as Go.
func Invoke[Res any](ctx context.Context, c *Client, method string, args interface{}) (Res, error) {
	call := Go[Res](c, method, args)
	select {
	case <-call.Done():
		return call.Result()
	case <-ctx.Done():
		call.Cancel()
		<-call.Done()
		var zero Res
		if call.err != nil {
			return zero, call.err
		}
		return zero, rpcerr.E("client: invoke", rpcerr.KindCanceled, ctx.Err())
	}
}
