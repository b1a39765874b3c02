package net

import (
	"errors"
	"fmt"
	"testing"

	"github.com/peterkuimelis/colonia/internal/message"
)

func TestDispatchSwallowsHandlerFailures(t *testing.T) {
	r := NewRegistry("test", nil)
	r.Register(message.TagUpdate, func(*Connection, *message.Message) (*message.Message, error) {
		panic("boom")
	})
	r.Register(message.TagRemove, func(*Connection, *message.Message) (*message.Message, error) {
		return message.New(message.TagOK), errors.New("bad remove")
	})
	r.Register(message.TagChat, func(*Connection, *message.Message) (*message.Message, error) {
		var m map[string]int
		m["x"]++ // nil map write
		return nil, nil
	})

	for _, tag := range []message.Tag{message.TagUpdate, message.TagRemove, message.TagChat} {
		reply, err := r.Dispatch(nil, message.New(tag))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tag, err)
		}
		if reply != nil {
			t.Fatalf("%s: expected nil reply, got %s", tag, reply)
		}
	}
}

func TestDispatchUnknownTag(t *testing.T) {
	called := false
	r := NewRegistry("test", nil)
	r.Register(message.TagUpdate, func(*Connection, *message.Message) (*message.Message, error) {
		called = true
		return nil, nil
	})

	reply, err := r.Dispatch(nil, message.New("noSuchTag"))
	if reply != nil || err != nil {
		t.Fatalf("unknown tag: got (%s, %v), want (nil, nil)", reply, err)
	}
	if called {
		t.Fatal("unknown tag reached an unrelated handler")
	}
}

func TestDispatchFatalPropagates(t *testing.T) {
	r := NewRegistry("test", nil)
	r.Register(message.TagLostCityRumour, func(*Connection, *message.Message) (*message.Message, error) {
		return nil, fmt.Errorf("rumour %q: %w", "DRAGONS", ErrFatalProtocol)
	})

	_, err := r.Dispatch(nil, message.New(message.TagLostCityRumour))
	if !errors.Is(err, ErrFatalProtocol) {
		t.Fatalf("expected fatal protocol error, got %v", err)
	}

	// Also through the multiple wrapper.
	wrapped := message.Collapse(message.New(message.TagChat), message.New(message.TagLostCityRumour))
	if _, err := r.Dispatch(nil, wrapped); !errors.Is(err, ErrFatalProtocol) {
		t.Fatalf("expected fatal protocol error through multiple, got %v", err)
	}
}

func TestDispatchMultipleInOrder(t *testing.T) {
	var order []string
	r := NewRegistry("test", nil)
	r.Register(message.TagNewTurn, func(_ *Connection, m *message.Message) (*message.Message, error) {
		order = append(order, "newTurn:"+m.Attr("turn"))
		return nil, nil
	})
	r.Register(message.TagMonarchAction, func(_ *Connection, m *message.Message) (*message.Message, error) {
		order = append(order, "monarch:"+m.Attr("action"))
		return message.New(message.TagMonarchAction, "accepted", "true"), nil
	})

	msg := message.Collapse(
		message.New(message.TagNewTurn, "turn", "4"),
		message.New(message.TagMonarchAction, "action", "RAISE_TAX"),
		message.New(message.TagNewTurn, "turn", "5"),
	)
	reply, err := r.Dispatch(nil, msg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"newTurn:4", "monarch:RAISE_TAX", "newTurn:5"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	// A single child reply is returned as-is, not wrapped.
	if reply.Tag() != message.TagMonarchAction {
		t.Fatalf("reply = %s", reply)
	}
}

func TestDispatchMultipleCollapsesReplies(t *testing.T) {
	r := NewRegistry("test", nil)
	r.Register(message.TagChat, func(_ *Connection, m *message.Message) (*message.Message, error) {
		return message.New(message.TagChat, "echo", m.Attr("text")), nil
	})

	reply, err := r.Dispatch(nil, message.Collapse(
		message.New(message.TagChat, "text", "a"),
		message.New(message.TagChat, "text", "b"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Tag() != message.TagMultiple || len(reply.Children()) != 2 {
		t.Fatalf("reply = %s", reply)
	}
	if reply.Children()[1].Attr("echo") != "b" {
		t.Fatalf("reply order lost: %s", reply)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry("test", nil)
	h := func(*Connection, *message.Message) (*message.Message, error) { return nil, nil }
	r.Register(message.TagChat, h)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(message.TagChat, h)
}

func TestTagsIncludesMultiple(t *testing.T) {
	r := NewRegistry("test", nil)
	r.Register(message.TagUpdate, func(*Connection, *message.Message) (*message.Message, error) { return nil, nil })
	tags := r.Tags()
	if len(tags) != 2 || tags[0] != message.TagMultiple || tags[1] != message.TagUpdate {
		t.Fatalf("tags = %v", tags)
	}
}
