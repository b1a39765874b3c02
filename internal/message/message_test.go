package message

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestBuilderProducesImmutableMessage(t *testing.T) {
	b := NewBuilder(TagMove).Attr("unit", "unit:7").Attr("direction", "EAST")
	m := b.Build()

	if m.Tag() != TagMove {
		t.Fatalf("tag = %q, want move", m.Tag())
	}
	if m.Attr("unit") != "unit:7" || m.Attr("direction") != "EAST" {
		t.Fatalf("unexpected attributes: %s", m)
	}

	children := m.Children()
	if children != nil {
		t.Fatalf("expected no children, got %d", len(children))
	}
}

func TestTypedAccessors(t *testing.T) {
	m := NewBuilder(TagUpdate).Int("gold", 120).Bool("dead", true).Attr("bad", "x").Build()

	if got := m.Int("gold", -1); got != 120 {
		t.Errorf("Int(gold) = %d", got)
	}
	if got := m.Int("missing", -1); got != -1 {
		t.Errorf("Int(missing) = %d, want default", got)
	}
	if got := m.Int("bad", 5); got != 5 {
		t.Errorf("Int(bad) = %d, want default for malformed", got)
	}
	if !m.Bool("dead") {
		t.Error("Bool(dead) = false")
	}
	if m.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestCollapse(t *testing.T) {
	a := New(TagNewTurn, "turn", "3")
	b := New(TagSetCurrentPlayer, "player", "player:1")

	if Collapse() != nil {
		t.Error("Collapse() should be nil")
	}
	if got := Collapse(nil, a, nil); got != a {
		t.Errorf("single message should collapse to itself, got %s", got)
	}

	m := Collapse(a, nil, b)
	if m.Tag() != TagMultiple {
		t.Fatalf("tag = %q, want multiple", m.Tag())
	}
	if len(m.Children()) != 2 || m.Children()[0] != a || m.Children()[1] != b {
		t.Fatalf("children not preserved in order: %s", m)
	}
}

func TestJSONRoundTripPreservesChildOrder(t *testing.T) {
	m := NewBuilder(TagUpdate).
		Child(New(TagUnit, "id", "unit:1", "movesLeft", "3")).
		Child(New(TagUnit, "id", "unit:2")).
		Child(New(TagTile, "id", "tile:4:5")).
		Build()

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Equal(m) {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", &got, m)
	}
	if got.Children()[2].Attr("id") != "tile:4:5" {
		t.Fatalf("child order lost: %s", &got)
	}
}

func TestString(t *testing.T) {
	m := NewBuilder(TagMove).Attr("unit", "u1").Attr("direction", "EAST").Build()
	want := `<move direction="EAST" unit="u1"/>`
	if m.String() != want {
		t.Errorf("String() = %s, want %s", m, want)
	}
}

func TestEncodedFramesMatchWireSchema(t *testing.T) {
	raw, err := WireSchema()
	if err != nil {
		t.Fatalf("reflect schema: %v", err)
	}
	schema, err := jsonschema.CompileString("frame.schema.json", string(raw))
	if err != nil {
		t.Fatalf("compile schema: %v\n%s", err, raw)
	}

	frames := []Frame{
		{Kind: KindRequest, Msg: New(TagMove, "unit", "unit:1", "direction", "EAST").ToWire()},
		{Kind: KindReply},
		{Kind: KindPush, Msg: Collapse(
			New(TagNewTurn, "turn", "2"),
			NewBuilder(TagUpdate).Child(New(TagUnit, "id", "unit:1")).Build(),
		).ToWire()},
	}
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal frame: %v", err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if err := schema.Validate(doc); err != nil {
			t.Errorf("frame %s does not validate: %v", data, err)
		}
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"kind":"shout"}`), &bad)
	if err := schema.Validate(bad); err == nil {
		t.Error("expected unknown frame kind to be rejected")
	}
}
