// Package web bridges websocket clients to a TCP game server. Browsers and
// ws:// sessions connect to /ws; each websocket text message carries one
// JSON frame.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxFrameBytes bounds one websocket message; full-map updates are large.
const maxFrameBytes = 4 << 20

// Gateway proxies websocket connections to one upstream game server.
type Gateway struct {
	upstream    string
	logger      *zap.Logger
	dialTimeout time.Duration
	mux         *http.ServeMux

	// OriginPatterns lists extra browser origins allowed to connect.
	OriginPatterns []string

	active atomic.Int64
	total  atomic.Int64
}

// NewGateway creates a gateway for the game server at upstream (host:port).
func NewGateway(upstream string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		upstream:    upstream,
		logger:      logger,
		dialTimeout: 10 * time.Second,
		mux:         http.NewServeMux(),
	}
	g.mux.HandleFunc("GET /ws", g.handleWebSocket)
	g.mux.HandleFunc("GET /healthz", g.handleHealth)
	return g
}

// Handler returns the HTTP handler serving the gateway routes.
func (g *Gateway) Handler() http.Handler { return g.mux }

// ListenAndServe serves until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: g.mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Health is the /healthz body.
type Health struct {
	Upstream string `json:"upstream"`
	Active   int64  `json:"active"`
	Total    int64  `json:"total"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Health{
		Upstream: g.upstream,
		Active:   g.active.Load(),
		Total:    g.total.Load(),
	})
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.OriginPatterns,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer wsConn.CloseNow()
	wsConn.SetReadLimit(maxFrameBytes)

	id := uuid.NewString()
	logger := g.logger.With(zap.String("peer", id), zap.String("remote", r.RemoteAddr))
	g.active.Add(1)
	g.total.Add(1)
	defer g.active.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	d := net.Dialer{Timeout: g.dialTimeout}
	tcpConn, err := d.DialContext(ctx, "tcp", g.upstream)
	if err != nil {
		logger.Warn("upstream dial failed", zap.String("upstream", g.upstream), zap.Error(err))
		wsConn.Close(websocket.StatusTryAgainLater, "game server unavailable")
		return
	}
	defer tcpConn.Close()
	logger.Info("peer connected")

	done := make(chan error, 2)
	go func() { done <- upstreamToPeer(ctx, tcpConn, wsConn) }()
	go func() { done <- peerToUpstream(ctx, wsConn, tcpConn) }()

	err = <-done
	switch {
	case err == nil || errors.Is(err, io.EOF):
		wsConn.Close(websocket.StatusNormalClosure, "game server closed")
	case websocket.CloseStatus(err) != -1:
		// The peer hung up.
	default:
		logger.Info("proxy stopped", zap.Error(err))
		wsConn.Close(websocket.StatusInternalError, "proxy error")
	}
	logger.Info("peer disconnected")
}

// upstreamToPeer forwards each JSON document from the server as one text
// message, newline terminated like the TCP stream.
func upstreamToPeer(ctx context.Context, tcpConn net.Conn, wsConn *websocket.Conn) error {
	dec := json.NewDecoder(tcpConn)
	for {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		msg = append(msg, '\n')
		if err := wsConn.Write(ctx, websocket.MessageText, msg); err != nil {
			return fmt.Errorf("websocket write: %w", err)
		}
	}
}

// peerToUpstream writes each websocket message to the server, adding the
// line terminator when the peer left it off.
func peerToUpstream(ctx context.Context, wsConn *websocket.Conn, tcpConn net.Conn) error {
	for {
		typ, data, err := wsConn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			return fmt.Errorf("unexpected %v message", typ)
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		if _, err := tcpConn.Write(data); err != nil {
			return fmt.Errorf("upstream write: %w", err)
		}
	}
}
