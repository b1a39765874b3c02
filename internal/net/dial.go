package net

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/coder/websocket"
)

// maxFrameBytes bounds a single websocket message; full-map updates are large.
const maxFrameBytes = 4 << 20

// Dial opens a byte stream to addr. Addresses starting with ws:// or wss://
// are dialed as websockets carrying text frames, anything else as TCP.
func Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return dialWebsocket(ctx, addr)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}

func dialWebsocket(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	ws, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connect websocket %s: %w", addr, err)
	}
	ws.SetReadLimit(maxFrameBytes)
	// The dial context only bounds the handshake; the stream outlives it.
	return websocket.NetConn(context.Background(), ws, websocket.MessageText), nil
}
