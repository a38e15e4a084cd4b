package registry_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiral/relayrpc/pkg/codec"
	"github.com/spiral/relayrpc/pkg/message"
	"github.com/spiral/relayrpc/pkg/registry"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// decoderFor round-trips v through a real gob codec over an in-memory pipe
// so tests exercise the same erased Decoder a live connection would hand a
// handler, rather than constructing one by hand.
func decoderFor(t *testing.T, v interface{}) *codec.Decoder {
	t.Helper()
	c1, c2 := net.Pipe()
	cc1, err := codec.New(c1, "gob")
	require.NoError(t, err)
	cc2, err := codec.New(c2, "gob")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc1.Close(); _ = cc2.Close() })

	done := make(chan *codec.Decoder, 1)
	go func() {
		_, err := cc2.ReadRequestHeader()
		require.NoError(t, err)
		dec, err := cc2.ReadRequestBody()
		require.NoError(t, err)
		done <- dec
	}()

	req := message.RequestHeader{Id: 1, ServiceMethod: "Echo.Echo"}
	require.NoError(t, cc1.WriteRequest(req, v))
	return <-done
}

type echoSvc struct{}

func (echoSvc) Echo(n int) (int, error) { return n, nil }

func (echoSvc) EchoCtx(ctx context.Context, n int) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
		return n, nil
	}
}

func TestReflectHandlerDispatch(t *testing.T) {
	h := registry.NewReflectHandler(echoSvc{})
	dec := decoderFor(t, 13)

	reply, err := h.Call(context.Background(), "Echo", dec)
	require.NoError(t, err)
	assert.Equal(t, 13, reply)
}

func TestReflectHandlerUnknownMethod(t *testing.T) {
	h := registry.NewReflectHandler(echoSvc{})
	_, err := h.Call(context.Background(), "NoSuchMethod", nil)
	require.Error(t, err)
	var rpcErr *rpcerr.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpcerr.ECMethodNotFound, rpcErr.Code)
}

func TestRegistryResolveUnknownService(t *testing.T) {
	reg := registry.NewBuilder().Build()
	_, _, rpcErr := reg.Resolve("NoSuch.method")
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpcerr.ECMethodNotFound, rpcErr.Code)
}

func TestRegistryResolveNoDot(t *testing.T) {
	reg := registry.NewBuilder().Build()
	_, _, rpcErr := reg.Resolve("NoDot")
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpcerr.ECMethodNotFound, rpcErr.Code)
}

func TestRegistryResolveKnownService(t *testing.T) {
	h := registry.NewReflectHandler(echoSvc{})
	reg := registry.NewBuilder().Register("Echo", h).Build()

	resolved, method, rpcErr := reg.Resolve("Echo.Echo")
	require.Nil(t, rpcErr)
	assert.Equal(t, "Echo", method)
	assert.Same(t, h, resolved)
}
