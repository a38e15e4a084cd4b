// Package codec serializes and deserializes typed headers and bodies on
// top of the frame layer, presenting the split reader/writer pair the
// server and client engines need.
//
// Concrete backends (json, msgpack, gob, proto) are registered by name in a small
// factory registry, mirroring the teacher's own flag-byte dispatch in
// pkg/rpc/codec.go (storeCodec / the CodecJSON|CodecMsgpack|CodecGob switch)
// but as named constructors instead of bit flags, since a Go connection
// picks exactly one codec up front rather than per-request.
package codec

import (
	"io"
	"sync"

	"github.com/spiral/relayrpc/pkg/frame"
	"github.com/spiral/relayrpc/pkg/message"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// Marshal serializes v into bytes for the wire.
type Marshal func(v interface{}) ([]byte, error)

// Unmarshal deserializes data from the wire into v.
type Unmarshal func(data []byte, v interface{}) error

// Backend names one (de)serialization strategy for message bodies. The
// FrameHeader itself is always fixed-width little-endian regardless of
// which Backend a connection picked (spec §4.2/§6).
type Backend struct {
	Name      string
	Marshal   Marshal
	Unmarshal Unmarshal
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{}
)

// Register adds a Backend under its Name so it can be selected by the
// transport adapter at connection setup time (spec §9's "runtime registry
// of codec factories").
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Name] = b
}

// Lookup returns the registered Backend with the given name.
func Lookup(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// Decoder is the erased deserializer handed to a handler: the body's raw
// bytes paired with the backend that knows how to decode them, usable
// without further I/O (spec §4.2 requires the codec to buffer the whole
// body frame before returning it). This is strategy (b) from spec §9: raw
// bytes + a codec tag, decoded by the caller into a concrete type, since Go
// has no idiomatic equivalent of erased_serde's trait-object deserializer.
type Decoder struct {
	payload []byte
	backend Backend
}

// Decode unmarshals the buffered body into out.
func (d *Decoder) Decode(out interface{}) error {
	const op = rpcerr.Op("codec: decode body")
	if len(d.payload) == 0 {
		return nil
	}
	if err := d.backend.Unmarshal(d.payload, out); err != nil {
		return rpcerr.E(op, rpcerr.KindParse, err)
	}
	return nil
}

// Codec reads and writes RequestHeader/ResponseHeader and bodies over a
// frame Reader/Writer pair, using one fixed Backend for the lifetime of the
// connection (spec §4.2: "chosen by the transport adapter at setup time").
type Codec struct {
	backend Backend
	reader  *frame.Reader
	writer  *frame.Writer
	closer  io.Closer
}

// New builds a Codec over rwc using the named backend.
func New(rwc io.ReadWriteCloser, backendName string) (*Codec, error) {
	const op = rpcerr.Op("codec: new")
	b, ok := Lookup(backendName)
	if !ok {
		return nil, rpcerr.E(op, rpcerr.KindInternal, "unknown codec backend: "+backendName)
	}
	return &Codec{
		backend: b,
		reader:  frame.NewReader(rwc),
		writer:  frame.NewWriter(rwc),
		closer:  rwc,
	}, nil
}

// Close closes the underlying transport.
func (c *Codec) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Codec) marshalHeaderFrame(id message.MessageId, v interface{}) (frame.Frame, error) {
	const op = rpcerr.Op("codec: marshal header")
	b, err := c.backend.Marshal(v)
	if err != nil {
		return frame.Frame{}, rpcerr.E(op, rpcerr.KindParse, err)
	}
	return frame.Frame{
		MessageId:   id,
		FrameId:     frame.HeaderFrameId,
		PayloadType: frame.PayloadHeader,
		Payload:     b,
	}, nil
}

func (c *Codec) marshalBodyFrame(id message.MessageId, v interface{}) (frame.Frame, error) {
	const op = rpcerr.Op("codec: marshal body")
	b, err := c.backend.Marshal(v)
	if err != nil {
		return frame.Frame{}, rpcerr.E(op, rpcerr.KindParse, err)
	}
	return frame.Frame{
		MessageId:   id,
		FrameId:     frame.BodyFrameId,
		PayloadType: frame.PayloadData,
		Payload:     b,
	}, nil
}

// WriteRequest writes a logical request message: header sub-frame then body
// sub-frame, sharing the request's MessageId (client side).
func (c *Codec) WriteRequest(h message.RequestHeader, body interface{}) error {
	const op = rpcerr.Op("codec: write request")
	hf, err := c.marshalHeaderFrame(h.Id, h)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(hf); err != nil {
		return rpcerr.E(op, rpcerr.KindIO, err)
	}
	bf, err := c.marshalBodyFrame(h.Id, body)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(bf); err != nil {
		return rpcerr.E(op, rpcerr.KindIO, err)
	}
	return nil
}

// WriteResponse writes a logical response message (server side).
func (c *Codec) WriteResponse(h message.ResponseHeader, body interface{}) error {
	const op = rpcerr.Op("codec: write response")
	hf, err := c.marshalHeaderFrame(h.Id, h)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(hf); err != nil {
		return rpcerr.E(op, rpcerr.KindIO, err)
	}
	bf, err := c.marshalBodyFrame(h.Id, body)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(bf); err != nil {
		return rpcerr.E(op, rpcerr.KindIO, err)
	}
	return nil
}

// ReadRequestHeader reads the next request's header sub-frame (server
// side). It returns io.EOF when the underlying stream is cleanly closed
// before a new logical message begins.
func (c *Codec) ReadRequestHeader() (*message.RequestHeader, error) {
	const op = rpcerr.Op("codec: read request header")
	f, err := c.reader.ReadFrame()
	if err != nil {
		return nil, err
	}
	var h message.RequestHeader
	if err := c.backend.Unmarshal(f.Payload, &h); err != nil {
		return nil, rpcerr.E(op, rpcerr.KindParse, err)
	}
	return &h, nil
}

// ReadRequestBody reads the body sub-frame following a header read via
// ReadRequestHeader and returns it as an erased Decoder (server side).
func (c *Codec) ReadRequestBody() (*Decoder, error) {
	const op = rpcerr.Op("codec: read request body")
	f, err := c.reader.ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, rpcerr.E(op, rpcerr.KindIO, "unexpected EOF reading request body")
		}
		return nil, err
	}
	return &Decoder{payload: f.Payload, backend: c.backend}, nil
}

// ReadResponseHeader reads the next response's header sub-frame (client
// side). Returns io.EOF on clean close.
func (c *Codec) ReadResponseHeader() (*message.ResponseHeader, error) {
	const op = rpcerr.Op("codec: read response header")
	f, err := c.reader.ReadFrame()
	if err != nil {
		return nil, err
	}
	var h message.ResponseHeader
	if err := c.backend.Unmarshal(f.Payload, &h); err != nil {
		return nil, rpcerr.E(op, rpcerr.KindParse, err)
	}
	return &h, nil
}

// ReadResponseBody reads the body sub-frame following a header read via
// ReadResponseHeader (client side).
func (c *Codec) ReadResponseBody() (*Decoder, error) {
	const op = rpcerr.Op("codec: read response body")
	f, err := c.reader.ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, rpcerr.E(op, rpcerr.KindIO, "unexpected EOF reading response body")
		}
		return nil, err
	}
	return &Decoder{payload: f.Payload, backend: c.backend}, nil
}

// Reader is the read-only half of a split Codec, owned by a connection's
// reader goroutine.
type Reader struct {
	codec *Codec
}

// Writer is the write-only half of a split Codec, owned by a connection's
// writer goroutine.
type Writer struct {
	codec *Codec
}

// Split returns independent reader/writer halves so the client engine can
// run concurrent read and write loops without head-of-line blocking
// between sending new requests and receiving responses (spec §4.2 "Why
// split"). The underlying transport is never accessed by both halves at
// once: Reader only reads, Writer only writes.
func (c *Codec) Split() (*Reader, *Writer) {
	return &Reader{codec: c}, &Writer{codec: c}
}

func (r *Reader) ReadResponseHeader() (*message.ResponseHeader, error) { return r.codec.ReadResponseHeader() }
func (r *Reader) ReadResponseBody() (*Decoder, error)                  { return r.codec.ReadResponseBody() }

func (w *Writer) WriteRequest(h message.RequestHeader, body interface{}) error {
	return w.codec.WriteRequest(h, body)
}
