package transport

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// wsConn adapts a *websocket.Conn to io.ReadWriteCloser carrying exactly
// one binary message per logical frame.Reader/frame.Writer read or write,
// per spec §6: "a WebSocket stream carrying binary frames. Text frames
// MUST be rejected as a transport error. A WebSocket Close frame is
// treated as clean EOF."
type wsConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	writeMu sync.Mutex
	pending *bytes.Reader
}

// NewWebsocketConn wraps an established *websocket.Conn.
func NewWebsocketConn(c *websocket.Conn) io.ReadWriteCloser {
	return &wsConn{conn: c}
}

func (w *wsConn) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	const op = rpcerr.Op("transport: websocket read")
	for w.pending == nil || w.pending.Len() == 0 {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, rpcerr.E(op, rpcerr.KindIO, err)
		}
		if mt != websocket.BinaryMessage {
			return 0, rpcerr.E(op, rpcerr.KindTransport,
				"received a non-binary websocket frame")
		}
		w.pending = bytes.NewReader(data)
	}
	return w.pending.Read(p)
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	const op = rpcerr.Op("transport: websocket write")
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, rpcerr.E(op, rpcerr.KindIO, err)
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// Upgrader is a gorilla upgrader with 4 KiB read/write buffers that accepts
// requests from any origin; it does not restrict the message type, so
// binary-only enforcement happens in wsConn.Read. A caller's HTTP host
// (explicitly out of scope per spec §1) is expected to call Upgrade from
// within its own handler.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
