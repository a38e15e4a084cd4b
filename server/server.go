// Package server implements the per-connection accept loop, request
// dispatch, and cancellation handling described in spec §4.5: read a
// request header, resolve it to a registered handler, read its body,
// invoke the handler concurrently with other in-flight requests on the
// same connection, and write exactly one response per non-cancellation
// request.
package server

import (
	"context"
	"io"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spiral/relayrpc/pkg/codec"
	"github.com/spiral/relayrpc/pkg/message"
	"github.com/spiral/relayrpc/pkg/registry"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// defaultCodec is the body codec used when a Builder does not select one
// explicitly; gob requires no schema negotiation, mirroring the teacher's
// own CodecGob fallback in storeCodec.
const defaultCodec = "gob"

// Server dispatches incoming requests on accepted connections to handlers
// resolved from an immutable Registry.
type Server struct {
	registry  *registry.Registry
	codecName string
	logger    *zap.Logger
}

// Builder accumulates service registrations and options before Build()
// freezes them, matching spec §6's "Server::builder().register(name,
// handler).build()" surface.
type Builder struct {
	reg       *registry.Builder
	codecName string
	logger    *zap.Logger
}

// NewBuilder starts a fresh Builder.
func NewBuilder() *Builder {
	return &Builder{
		reg:       registry.NewBuilder(),
		codecName: defaultCodec,
	}
}

// Register adds a named service handler.
func (b *Builder) Register(serviceName string, h registry.Handler) *Builder {
	b.reg.Register(serviceName, h)
	return b
}

// Codec selects the named body codec backend for all connections this
// server accepts (spec §4.2: fixed per connection, chosen at setup time).
func (b *Builder) Codec(name string) *Builder {
	b.codecName = name
	return b
}

// Logger installs a zap logger; the default is a no-op logger so logging
// configuration is never a required surface (spec §1 keeps "logging
// configuration" out of scope as a deliverable).
func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Build freezes the Builder into a Server.
func (b *Builder) Build() *Server {
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry:  b.reg.Build(),
		codecName: b.codecName,
		logger:    logger,
	}
}

// Serve accepts connections from ln in a loop, serving each on its own
// goroutine, until ln.Accept returns an error (typically from Close).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.logger.Info("accepted connection", zap.String("remote", conn.RemoteAddr().String()))
		go func() {
			if err := s.ServeConn(conn); err != nil {
				s.logger.Info("connection closed", zap.Error(err))
			}
		}()
	}
}

// ServeConn builds a codec over rwc using the server's configured codec
// and serves requests from it until the connection closes.
func (s *Server) ServeConn(rwc io.ReadWriteCloser) error {
	c, err := codec.New(rwc, s.codecName)
	if err != nil {
		return err
	}
	return s.ServeCodec(c)
}

// ServeCodec serves requests from an already-built codec. It is exposed
// directly so callers that need a non-default codec per connection can
// build one themselves.
func (s *Server) ServeCodec(c *codec.Codec) error {
	conn := newConnState(c, s.registry, s.logger)
	defer conn.close()
	return conn.loop()
}

// connState holds per-connection bookkeeping: the write lock serializing
// frames from concurrently-running handler goroutines, the in-flight
// cancellation signals, and a WaitGroup so the connection can drain
// running handlers before it tears down.
type connState struct {
	codec    *codec.Codec
	registry *registry.Registry
	logger   *zap.Logger

	writeMu sync.Mutex

	cancelMu  sync.Mutex
	cancels   map[message.MessageId]context.CancelFunc
	cancelled map[message.MessageId]bool

	wg sync.WaitGroup
}

func newConnState(c *codec.Codec, reg *registry.Registry, logger *zap.Logger) *connState {
	return &connState{
		codec:     c,
		registry:  reg,
		logger:    logger,
		cancels:   make(map[message.MessageId]context.CancelFunc),
		cancelled: make(map[message.MessageId]bool),
	}
}

func (cs *connState) close() {
	cs.wg.Wait()
	_ = cs.codec.Close()
}

// loop is the per-connection accept/dispatch loop from spec §4.5.
func (cs *connState) loop() error {
	for {
		header, err := cs.codec.ReadRequestHeader()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if header.IsCancellation() {
			cs.handleCancellation()
			continue
		}

		cs.handleRequest(*header)
	}
}

func (cs *connState) handleCancellation() {
	dec, err := cs.codec.ReadRequestBody()
	if err != nil {
		cs.logger.Debug("failed to read cancellation body", zap.Error(err))
		return
	}
	var body string
	if err := dec.Decode(&body); err != nil {
		cs.logger.Debug("failed to decode cancellation body", zap.Error(err))
		return
	}
	target, ok := message.ParseCancellationBody(body)
	if !ok {
		cs.logger.Debug("malformed cancellation body", zap.String("body", body))
		return
	}

	cs.cancelMu.Lock()
	cancel, ok := cs.cancels[target]
	// Only mark the id cancelled when a handler is actually in flight for
	// it. MessageId is a wrap-around, client-reused 16-bit id (spec §3/§9):
	// a stray or late cancellation for an id that already completed (or
	// never existed) must not poison cs.cancelled, or a later unrelated
	// request that reuses the same id would have its valid reply silently
	// dropped by writeResponse.
	if ok {
		cs.cancelled[target] = true
	}
	cs.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

func (cs *connState) handleRequest(header message.RequestHeader) {
	handler, method, rpcErr := cs.registry.Resolve(header.ServiceMethod)

	// Always read the body to stay framed, per spec §4.5 step 1/2, even
	// when the service couldn't be resolved.
	dec, err := cs.codec.ReadRequestBody()
	if err != nil {
		cs.logger.Warn("failed to read request body; connection desynced", zap.Error(err))
		return
	}

	if rpcErr != nil {
		cs.writeResponse(header.Id, nil, rpcErr)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs.cancelMu.Lock()
	cs.cancels[header.Id] = cancel
	cs.cancelMu.Unlock()

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		defer func() {
			// Clear both maps for this id as one lifecycle step: a
			// cancellation sentinel arriving in the narrow window after
			// writeResponse has already run but before this cleanup fires
			// must not leave a cs.cancelled entry that nothing will ever
			// clear again for this (now-reusable) id.
			cs.cancelMu.Lock()
			delete(cs.cancels, header.Id)
			delete(cs.cancelled, header.Id)
			cs.cancelMu.Unlock()
			cancel()
		}()

		reply, err := handler.Call(ctx, method, dec)
		cs.writeResponse(header.Id, reply, err)
	}()
}

// writeResponse writes exactly one response for id, translating a non-nil
// err into the wire-visible RpcError per spec §4.5's response-encoding
// rule: an *RpcError is used verbatim, anything else is wrapped as
// ServerError(e.to_string()). A response for an id that was cancelled
// mid-flight is dropped rather than sent (spec §4.5, §8 scenario 4).
func (cs *connState) writeResponse(id message.MessageId, reply interface{}, err error) {
	cs.cancelMu.Lock()
	wasCancelled := cs.cancelled[id]
	delete(cs.cancelled, id)
	cs.cancelMu.Unlock()
	if wasCancelled {
		return
	}

	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()

	if err != nil {
		h := message.ResponseHeader{Id: id, IsError: true}
		if werr := cs.codec.WriteResponse(h, rpcerr.AsRpcError(err)); werr != nil {
			cs.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	h := message.ResponseHeader{Id: id, IsError: false}
	if werr := cs.codec.WriteResponse(h, reply); werr != nil {
		cs.logger.Error("failed to write response", zap.Error(werr))
	}
}

// ServeAll serves every listener in ln concurrently and returns once all of
// them stop, combining their terminal errors with multierr — useful for a
// host process that offers, say, TCP and a TLS listener side by side.
func (s *Server) ServeAll(ln ...net.Listener) error {
	var wg sync.WaitGroup
	errs := make([]error, len(ln))
	wg.Add(len(ln))
	for i, l := range ln {
		i, l := i, l
		go func() {
			defer wg.Done()
			errs[i] = s.Serve(l)
		}()
	}
	wg.Wait()
	return multierr.Combine(errs...)
}
