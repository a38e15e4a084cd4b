// Package frame implements length-delimited framing over any ordered byte
// stream: a 1-byte magic, a fixed-width little-endian FrameHeader, and a
// payload. It is the bottom layer the codec layer builds messages on top of.
package frame

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// Magic is written as the first byte of every frame; a mismatch on read
// means the peer is speaking a different protocol or version.
const Magic byte = 0x0D

// HeaderSize is the fixed wire size of a FrameHeader: u16 + u8 + u8 + u32.
const HeaderSize = 2 + 1 + 1 + 4

// PayloadType tags what a frame's payload contains. Unknown values decode
// to Trailer, per spec.
type PayloadType uint8

const (
	PayloadHeader PayloadType = iota
	PayloadData
	PayloadTrailer
)

func payloadTypeFromByte(b byte) PayloadType {
	switch b {
	case 0:
		return PayloadHeader
	case 1:
		return PayloadData
	default:
		return PayloadTrailer
	}
}

// FrameId identifies a sub-frame within a logical message: 0 = header,
// 1 = body. Other values are reserved.
type FrameId = uint8

const (
	HeaderFrameId FrameId = 0
	BodyFrameId   FrameId = 1
)

// FrameHeader is the fixed-width record preceding every frame's payload.
type FrameHeader struct {
	MessageId   uint16
	FrameId     FrameId
	PayloadType PayloadType
	PayloadLen  uint32
}

func (h FrameHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.MessageId)
	buf[2] = h.FrameId
	buf[3] = byte(h.PayloadType)
	binary.LittleEndian.PutUint32(buf[4:8], h.PayloadLen)
}

func decodeHeader(buf []byte) FrameHeader {
	return FrameHeader{
		MessageId:   binary.LittleEndian.Uint16(buf[0:2]),
		FrameId:     buf[2],
		PayloadType: payloadTypeFromByte(buf[3]),
		PayloadLen:  binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// Frame is a single length-prefixed unit on the wire.
type Frame struct {
	MessageId   uint16
	FrameId     FrameId
	PayloadType PayloadType
	Payload     []byte
}

var headerBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, HeaderSize)
		return &b
	},
}

// Reader reads frames off an underlying byte stream. It is not safe for
// concurrent use; callers own it exclusively (typically the reader goroutine
// of a split codec).
type Reader struct {
	r io.Reader
}

// NewReader wraps r as a frame Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads one frame. It returns io.EOF (and a nil Frame) on a clean
// close observed before the magic byte, which callers should treat as
// spec's "None" case — the end of the logical stream, not an error.
// Any other read or decode failure is returned as a classified *rpcerr.Error.
func (fr *Reader) ReadFrame() (*Frame, error) {
	const op = rpcerr.Op("frame: read")

	magic := make([]byte, 1)
	if _, err := io.ReadFull(fr.r, magic); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	if magic[0] != Magic {
		return nil, rpcerr.E(op, rpcerr.KindTransport,
			"magic byte mismatch: client may be using a different protocol or version")
	}

	hbufp := headerBufPool.Get().(*[]byte)
	hbuf := *hbufp
	defer headerBufPool.Put(hbufp)

	if _, err := io.ReadFull(fr.r, hbuf); err != nil {
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	h := decodeHeader(hbuf)

	var payload []byte
	if h.PayloadLen > 0 {
		payload = make([]byte, h.PayloadLen)
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, rpcerr.E(op, rpcerr.KindIO, err)
		}
	}

	return &Frame{
		MessageId:   h.MessageId,
		FrameId:     h.FrameId,
		PayloadType: h.PayloadType,
		Payload:     payload,
	}, nil
}

// Writer writes frames to an underlying byte stream, flushing each frame
// before returning. It is not safe for concurrent use; callers are expected
// to serialize writes through a single owner (the server's per-connection
// writer, the client's writer goroutine).
type Writer struct {
	w io.Writer
}

// NewWriter wraps w as a frame Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes magic + header + payload as one logical operation. A
// payload longer than math.MaxUint32 is rejected before any byte is written.
func (fw *Writer) WriteFrame(f Frame) error {
	const op = rpcerr.Op("frame: write")

	if uint64(len(f.Payload)) > math.MaxUint32 {
		return rpcerr.E(op, rpcerr.KindTransport,
			"payload length exceeds maximum frame size")
	}

	h := FrameHeader{
		MessageId:   f.MessageId,
		FrameId:     f.FrameId,
		PayloadType: f.PayloadType,
		PayloadLen:  uint32(len(f.Payload)),
	}

	buf := make([]byte, 1+HeaderSize+len(f.Payload))
	buf[0] = Magic
	h.encode(buf[1 : 1+HeaderSize])
	copy(buf[1+HeaderSize:], f.Payload)

	if _, err := fw.w.Write(buf); err != nil {
		return rpcerr.E(op, rpcerr.KindIO, err)
	}
	if flusher, ok := fw.w.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return rpcerr.E(op, rpcerr.KindIO, err)
		}
	}
	return nil
}
