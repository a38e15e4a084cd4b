// Package transport ships concrete adapters satisfying spec §6's transport
// contract: "any bidirectional ordered byte stream suffices". The engine
// packages pkg/frame, pkg/codec and server never import this package — they
// only need an io.ReadWriteCloser; client imports it solely for its Dial
// convenience — but a runnable module needs real adapters to dial and
// listen with.
package transport

import (
	"crypto/tls"
	"net"

	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// DialTCP opens a plain TCP connection to addr.
func DialTCP(addr string) (net.Conn, error) {
	const op = rpcerr.Op("transport: dial tcp")
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	return conn, nil
}

// DialTLS opens a TLS-wrapped TCP connection to addr.
func DialTLS(addr string, cfg *tls.Config) (net.Conn, error) {
	const op = rpcerr.Op("transport: dial tls")
	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	return conn, nil
}

// ListenTCP opens a plain TCP listener on addr.
func ListenTCP(addr string) (net.Listener, error) {
	const op = rpcerr.Op("transport: listen tcp")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	return ln, nil
}

// ListenTLS opens a TLS-wrapped TCP listener on addr.
func ListenTLS(addr string, cfg *tls.Config) (net.Listener, error) {
	const op = rpcerr.Op("transport: listen tls")
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, rpcerr.E(op, rpcerr.KindIO, err)
	}
	return ln, nil
}
