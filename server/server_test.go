package server_test

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
	"github.com/spiral/relayrpc/server"
)

type identityService struct{}

func (identityService) Identity(n int) (int, error) { return n, nil }

func buildServer() *server.Server {
	return server.NewBuilder().
		Codec("json").
		Register("Id", registry.NewReflectHandler(identityService{})).
		Build()
}

func TestServeCodecUnknownServiceReturnsMethodNotFound(t *testing.T) {
	c1, c2 := net.Pipe()
	srv := buildServer()

	serverDone := make(chan error, 1)
	serverCodec, err := codec.New(c2, "json")
	require.NoError(t, err)
	go func() { serverDone <- srv.ServeCodec(serverCodec) }()

	clientCodec, err := codec.New(c1, "json")
	require.NoError(t, err)

	require.NoError(t, clientCodec.WriteRequest(
		message.RequestHeader{Id: 1, ServiceMethod: "NoSuch.method"}, 1))

	h, err := clientCodec.ReadResponseHeader()
	require.NoError(t, err)
	assert.True(t, h.IsError)

	dec, err := clientCodec.ReadResponseBody()
	require.NoError(t, err)
	var rpcErr rpcerr.RpcError
	require.NoError(t, dec.Decode(&rpcErr))
	assert.Equal(t, rpcerr.ECMethodNotFound, rpcErr.Code)

	_ = clientCodec.Close()
	<-serverDone
}

func TestServeCodecCleanEOFEndsLoopWithoutError(t *testing.T) {
	c1, c2 := net.Pipe()
	srv := buildServer()

	serverCodec, err := codec.New(c2, "json")
	require.NoError(t, err)
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ServeCodec(serverCodec) }()

	clientCodec, err := codec.New(c1, "json")
	require.NoError(t, err)

	// Spec §8 scenario 6 is literally "two complete requests, then a clean
	// close" — exercise both requests before closing, not just one.
	require.NoError(t, clientCodec.WriteRequest(
		message.RequestHeader{Id: 1, ServiceMethod: "Id.Identity"}, 7))
	h, err := clientCodec.ReadResponseHeader()
	require.NoError(t, err)
	assert.False(t, h.IsError)
	dec, err := clientCodec.ReadResponseBody()
	require.NoError(t, err)
	var reply int
	require.NoError(t, dec.Decode(&reply))
	assert.Equal(t, 7, reply)

	require.NoError(t, clientCodec.WriteRequest(
		message.RequestHeader{Id: 2, ServiceMethod: "Id.Identity"}, 42))
	h2, err := clientCodec.ReadResponseHeader()
	require.NoError(t, err)
	assert.False(t, h2.IsError)
	dec2, err := clientCodec.ReadResponseBody()
	require.NoError(t, err)
	var reply2 int
	require.NoError(t, dec2.Decode(&reply2))
	assert.Equal(t, 42, reply2)

	require.NoError(t, clientCodec.Close())
	require.NoError(t, <-serverDone)
}

func TestHandlerPlainErrorWrappedAsServerError(t *testing.T) {
	h := registry.HandlerFunc(func(ctx context.Context, method string, dec *codec.Decoder) (interface{}, error) {
		return nil, assertErr{}
	})
	srv := server.NewBuilder().Codec("json").Register("Fail", h).Build()

	c1, c2 := net.Pipe()
	serverCodec, err := codec.New(c2, "json")
	require.NoError(t, err)
	go func() { _ = srv.ServeCodec(serverCodec) }()

	clientCodec, err := codec.New(c1, "json")
	require.NoError(t, err)
	defer clientCodec.Close()

	require.NoError(t, clientCodec.WriteRequest(
		message.RequestHeader{Id: 1, ServiceMethod: "Fail.whatever"}, 0))

	respHeader, err := clientCodec.ReadResponseHeader()
	require.NoError(t, err)
	assert.True(t, respHeader.IsError)

	dec, err := clientCodec.ReadResponseBody()
	require.NoError(t, err)
	var rpcErr rpcerr.RpcError
	require.NoError(t, dec.Decode(&rpcErr))
	assert.Equal(t, rpcerr.ECServerError, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
