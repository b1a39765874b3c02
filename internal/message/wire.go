package message

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Wire is the JSON form of a Message.
type Wire struct {
	Tag      string            `json:"tag" jsonschema:"required,minLength=1"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Wire           `json:"children,omitempty"`
}

// FrameKind says how the receiver must treat a frame.
type FrameKind string

const (
	// KindPush is a fire-and-forget message; a non-nil handler reply is
	// sent back as another push.
	KindPush FrameKind = "push"
	// KindRequest demands exactly one reply frame.
	KindRequest FrameKind = "request"
	// KindReply answers the oldest outstanding request on the connection.
	KindReply FrameKind = "reply"
)

// Frame is the unit written to the byte stream, one JSON document per line.
type Frame struct {
	Kind FrameKind `json:"kind" jsonschema:"required,enum=push,enum=request,enum=reply"`
	Msg  *Wire     `json:"msg,omitempty"`
}

// ToWire converts a message to its JSON form.
func (m *Message) ToWire() *Wire {
	if m == nil {
		return nil
	}
	w := &Wire{Tag: string(m.tag)}
	if len(m.attrs) > 0 {
		w.Attrs = make(map[string]string, len(m.attrs))
		for k, v := range m.attrs {
			w.Attrs[k] = v
		}
	}
	for _, c := range m.children {
		w.Children = append(w.Children, c.ToWire())
	}
	return w
}

// FromWire converts the JSON form back into an immutable message.
func FromWire(w *Wire) *Message {
	if w == nil {
		return nil
	}
	b := NewBuilder(Tag(w.Tag))
	for k, v := range w.Attrs {
		b.Attr(k, v)
	}
	for _, c := range w.Children {
		b.Child(FromWire(c))
	}
	return b.Build()
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = *FromWire(&w)
	return nil
}

// WireSchema returns the JSON schema of a Frame.
func WireSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	return json.Marshal(r.Reflect(&Frame{}))
}
