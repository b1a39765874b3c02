package journal

import (
	"bytes"
	"context"
	"errors"
	stdnet "net"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

func readAll(t *testing.T, r *bytes.Buffer) []Entry {
	t.Helper()
	var out []Entry
	if err := Read(r, func(e Entry) error {
		out = append(out, e)
		return nil
	}); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	buf := &bufCloser{}
	w, err := NewWriter(buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	move := message.New(message.TagMove, "unit", "unit:1", "direction", "N")
	w.Record("c1", net.Outbound, message.Frame{Kind: message.KindRequest, Msg: move.ToWire()})
	w.Record("c1", net.Inbound, message.Frame{Kind: message.KindReply, Msg: message.New(message.TagOK).ToWire()})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !buf.closed {
		t.Fatal("underlying writer not closed")
	}

	entries := readAll(t, &buf.Buffer)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.Conn != "c1" || first.Flow != net.Outbound || first.Frame.Kind != message.KindRequest {
		t.Fatalf("first = %+v", first)
	}
	if got := message.FromWire(first.Frame.Msg); !got.Equal(move) {
		t.Fatalf("decoded %s, want %s", message.FromWire(first.Frame.Msg), move)
	}
	if entries[1].Frame.Kind != message.KindReply || entries[1].Flow != net.Inbound {
		t.Fatalf("second = %+v", entries[1])
	}
}

func TestRecordAfterCloseKeepsError(t *testing.T) {
	w, err := NewWriter(&bufCloser{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	w.Record("c1", net.Outbound, message.Frame{Kind: message.KindPush})
	if !errors.Is(w.Err(), ErrClosedJournal) {
		t.Fatalf("Err = %v", w.Err())
	}
	if w.Count() != 0 {
		t.Fatalf("count = %d", w.Count())
	}
}

func TestReadStopsOnCallbackError(t *testing.T) {
	buf := &bufCloser{}
	w, _ := NewWriter(buf, nil)
	for i := 0; i < 3; i++ {
		w.Record("c1", net.Outbound, message.Frame{Kind: message.KindPush, Msg: message.New(message.TagChat).ToWire()})
	}
	_ = w.Close()

	stop := errors.New("stop")
	seen := 0
	err := Read(&buf.Buffer, func(Entry) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Fatalf("err = %v, seen = %d", err, seen)
	}
}

func TestJournalRecordsConnectionTraffic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	w, err := Create(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	a, b := stdnet.Pipe()
	server := net.NewConnection(b, net.Options{Name: "server"})
	reg := net.NewRegistry("server", nil)
	reg.Register(message.TagMove, func(*net.Connection, *message.Message) (*message.Message, error) {
		return message.New(message.TagOK), nil
	})
	server.SetHandler(reg)
	server.Start()
	defer server.Close()

	client := net.NewConnection(a, net.Options{Name: "client", Recorder: w})
	client.SetHandler(net.NewRegistry("client", nil))
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ask(ctx, message.New(message.TagMove, "unit", "unit:1")); err != nil {
		t.Fatal(err)
	}
	client.Close()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var flows []net.Flow
	if err := ReadFile(path, func(e Entry) error {
		if e.Conn != client.ID() {
			t.Errorf("conn = %q, want %q", e.Conn, client.ID())
		}
		flows = append(flows, e.Flow)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(flows) != 2 || flows[0] != net.Outbound || flows[1] != net.Inbound {
		t.Fatalf("flows = %v", flows)
	}
}
