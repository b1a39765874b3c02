package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/peterkuimelis/colonia/internal/message"
)

type recordedFrame struct {
	flow Flow
	kind message.FrameKind
	tag  string
}

type memRecorder struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (r *memRecorder) Record(_ string, flow Flow, f message.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := ""
	if f.Msg != nil {
		tag = f.Msg.Tag
	}
	r.frames = append(r.frames, recordedFrame{flow: flow, kind: f.Kind, tag: tag})
}

func (r *memRecorder) snapshot() []recordedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFrame(nil), r.frames...)
}

// pipePair connects two started Connections over an in-memory pipe.
func pipePair(t *testing.T, client, server Handler, clientOpts Options) (*Connection, *Connection) {
	t.Helper()
	a, b := net.Pipe()
	if clientOpts.Name == "" {
		clientOpts.Name = "client"
	}
	cc := NewConnection(a, clientOpts)
	sc := NewConnection(b, Options{Name: "server"})
	if client != nil {
		cc.SetHandler(client)
	}
	if server != nil {
		sc.SetHandler(server)
	}
	cc.Start()
	sc.Start()
	t.Cleanup(func() {
		cc.Close()
		sc.Close()
	})
	return cc, sc
}

// echoServer replies to every request with its "seq" attribute.
func echoServer() *Registry {
	r := NewRegistry("echo", nil)
	r.Register(message.TagMove, func(_ *Connection, m *message.Message) (*message.Message, error) {
		return message.New(message.TagOK, "seq", m.Attr("seq")), nil
	})
	return r
}

func waitClosed(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s did not close", c.Name())
	}
}

func TestAskRepliesInRequestOrder(t *testing.T) {
	cc, _ := pipePair(t, nil, echoServer(), Options{})
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		reply, err := cc.Ask(ctx, message.New(message.TagMove, "seq", strconv.Itoa(i)))
		if err != nil {
			t.Fatalf("ask %d: %v", i, err)
		}
		if got := reply.Int("seq", -1); got != i {
			t.Fatalf("ask %d got reply for %d", i, got)
		}
	}
	if cc.Pending() != 0 {
		t.Fatalf("pending = %d after all replies", cc.Pending())
	}
}

func TestConcurrentAsksEachGetOwnReply(t *testing.T) {
	cc, _ := pipePair(t, nil, echoServer(), Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := cc.Ask(ctx, message.New(message.TagMove, "seq", strconv.Itoa(i)))
			if err != nil {
				errs <- err
				return
			}
			if got := reply.Int("seq", -1); got != i {
				errs <- fmt.Errorf("request %d got reply %d", i, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRequestWithoutReplyDataGetsOK(t *testing.T) {
	r := NewRegistry("server", nil)
	r.Register(message.TagEndTurn, func(*Connection, *message.Message) (*message.Message, error) {
		return nil, nil
	})
	cc, _ := pipePair(t, nil, r, Options{})

	reply, err := cc.Ask(context.Background(), message.New(message.TagEndTurn))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Tag() != message.TagOK {
		t.Fatalf("reply = %s, want ok", reply)
	}
	if err := cc.SendAndWait(context.Background(), message.New("unknownIntent")); err != nil {
		t.Fatalf("send and wait on unknown tag: %v", err)
	}
}

func TestPushInterleavedWithAsk(t *testing.T) {
	got := make(chan *message.Message, 4)
	client := NewRegistry("client", nil)
	client.Register(message.TagNewTurn, func(_ *Connection, m *message.Message) (*message.Message, error) {
		got <- m
		return nil, nil
	})

	server := NewRegistry("server", nil)
	server.Register(message.TagMove, func(c *Connection, m *message.Message) (*message.Message, error) {
		// Push before answering: the client must still match the reply.
		if err := c.Send(context.Background(), message.New(message.TagNewTurn, "turn", "9")); err != nil {
			return nil, err
		}
		return message.New(message.TagOK, "seq", m.Attr("seq")), nil
	})
	cc, _ := pipePair(t, client, server, Options{})

	reply, err := cc.Ask(context.Background(), message.New(message.TagMove, "seq", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Attr("seq") != "1" {
		t.Fatalf("reply = %s", reply)
	}
	select {
	case m := <-got:
		if m.Int("turn", 0) != 9 {
			t.Fatalf("push = %s", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("push never dispatched")
	}
}

// A stalled dispatcher must not hold back replies queued behind pushes.
func TestReplyOvertakesStalledDispatch(t *testing.T) {
	const pushes = 200
	release := make(chan struct{})
	var mu sync.Mutex
	handled := 0
	client := NewRegistry("client", nil)
	client.Register(message.TagChat, func(*Connection, *message.Message) (*message.Message, error) {
		<-release
		mu.Lock()
		handled++
		mu.Unlock()
		return nil, nil
	})

	server := NewRegistry("server", nil)
	server.Register(message.TagMove, func(c *Connection, m *message.Message) (*message.Message, error) {
		for i := 0; i < pushes; i++ {
			if err := c.Send(context.Background(), message.New(message.TagChat, "message", strconv.Itoa(i))); err != nil {
				return nil, err
			}
		}
		return message.New(message.TagOK, "seq", m.Attr("seq")), nil
	})
	cc, _ := pipePair(t, client, server, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := cc.Ask(context.Background(), message.New(message.TagMove, "seq", "1"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reply stuck behind undispatched pushes")
	}
	if n := cc.Backlog(); n < pushes-1 {
		t.Fatalf("backlog = %d, want the pushes still queued", n)
	}

	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := handled
		mu.Unlock()
		if n == pushes {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled %d of %d pushes", n, pushes)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if cc.Backlog() != 0 {
		t.Fatalf("backlog = %d after draining", cc.Backlog())
	}
}

func TestPushReplyIsSentBack(t *testing.T) {
	answers := make(chan *message.Message, 1)
	server := NewRegistry("server", nil)
	server.Register(message.TagMonarchAction, func(_ *Connection, m *message.Message) (*message.Message, error) {
		answers <- m
		return nil, nil
	})
	client := NewRegistry("client", nil)
	client.Register(message.TagMonarchAction, func(*Connection, *message.Message) (*message.Message, error) {
		return message.New(message.TagMonarchAction, "accepted", "true"), nil
	})
	_, sc := pipePair(t, client, server, Options{})

	if err := sc.Send(context.Background(), message.New(message.TagMonarchAction, "action", "RAISE_TAX")); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-answers:
		if !m.Bool("accepted") {
			t.Fatalf("answer = %s", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no answer to push")
	}
}

func TestFatalHandlerClosesConnection(t *testing.T) {
	client := NewRegistry("client", nil)
	client.Register(message.TagLostCityRumour, func(*Connection, *message.Message) (*message.Message, error) {
		return nil, fmt.Errorf("unknown rumour: %w", ErrFatalProtocol)
	})
	cc, sc := pipePair(t, client, nil, Options{})

	if err := sc.Send(context.Background(), message.New(message.TagLostCityRumour, "type", "DRAGONS")); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, cc)
	if !errors.Is(cc.Err(), ErrFatalProtocol) {
		t.Fatalf("close reason = %v", cc.Err())
	}
	if _, err := cc.Ask(context.Background(), message.New(message.TagMove)); !errors.Is(err, ErrClosed) {
		t.Fatalf("ask after close: %v", err)
	}
}

func TestOutstandingAskFailsWhenPeerCloses(t *testing.T) {
	block := make(chan struct{})
	server := NewRegistry("server", nil)
	server.Register(message.TagMove, func(c *Connection, _ *message.Message) (*message.Message, error) {
		<-block
		return nil, nil
	})
	cc, sc := pipePair(t, nil, server, Options{})
	defer close(block)

	errc := make(chan error, 1)
	go func() {
		_, err := cc.Ask(context.Background(), message.New(message.TagMove))
		errc <- err
	}()

	for cc.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	sc.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("ask error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ask did not fail after peer closed")
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	cc, _ := pipePair(t, nil, echoServer(), Options{RateLimit: 1, Burst: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cc.Send(ctx, message.New(message.TagChat)); !errors.Is(err, context.Canceled) {
		t.Fatalf("send with cancelled ctx = %v", err)
	}
}

func TestRecorderSeesBothDirections(t *testing.T) {
	rec := &memRecorder{}
	cc, _ := pipePair(t, nil, echoServer(), Options{Recorder: rec})

	if _, err := cc.Ask(context.Background(), message.New(message.TagMove, "seq", "1")); err != nil {
		t.Fatal(err)
	}
	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("recorded %d frames: %+v", len(frames), frames)
	}
	if frames[0] != (recordedFrame{Outbound, message.KindRequest, "move"}) {
		t.Errorf("first frame = %+v", frames[0])
	}
	if frames[1] != (recordedFrame{Inbound, message.KindReply, "ok"}) {
		t.Errorf("second frame = %+v", frames[1])
	}
}

func TestServerAcceptsTCP(t *testing.T) {
	srv := &Server{Addr: "127.0.0.1:0", NewHandler: func(*Connection) Handler { return echoServer() }}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	rwc, err := Dial(ctx, srv.ListenAddr())
	if err != nil {
		t.Fatal(err)
	}
	cc := NewConnection(rwc, Options{Name: "tcp-client"})
	cc.Start()
	defer cc.Close()

	reply, err := cc.Ask(ctx, message.New(message.TagMove, "seq", "42"))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Int("seq", 0) != 42 {
		t.Fatalf("reply = %s", reply)
	}
}
