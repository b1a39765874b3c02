// Package message defines the tagged message that is the sole unit of
// exchange between client and server.
package message

import (
	"sort"
	"strconv"
	"strings"
)

// Message is an immutable tagged unit of data: a tag, a set of named
// attributes and an ordered list of child messages.
type Message struct {
	tag      Tag
	attrs    map[string]string
	children []*Message
}

// New creates a message with the given tag and attribute pairs
// (key, value, key, value, ...). A trailing odd key is ignored.
func New(tag Tag, kv ...string) *Message {
	b := NewBuilder(tag)
	for i := 0; i+1 < len(kv); i += 2 {
		b.Attr(kv[i], kv[i+1])
	}
	return b.Build()
}

// Tag returns the message tag.
func (m *Message) Tag() Tag {
	if m == nil {
		return ""
	}
	return m.tag
}

// Attr returns the named attribute, or "" if absent.
func (m *Message) Attr(name string) string {
	if m == nil {
		return ""
	}
	return m.attrs[name]
}

// Has reports whether the named attribute is present.
func (m *Message) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.attrs[name]
	return ok
}

// Int returns the named attribute parsed as an int, or def if it is
// absent or malformed.
func (m *Message) Int(name string, def int) int {
	v, ok := m.lookup(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the named attribute parsed as a bool (false if absent).
func (m *Message) Bool(name string) bool {
	v, ok := m.lookup(name)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func (m *Message) lookup(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.attrs[name]
	return v, ok
}

// AttrNames returns the attribute keys in sorted order.
func (m *Message) AttrNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.attrs))
	for k := range m.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Children returns the child messages in order. The returned slice must
// not be modified.
func (m *Message) Children() []*Message {
	if m == nil {
		return nil
	}
	return m.children
}

// Child returns the first child with the given tag, or nil.
func (m *Message) Child(tag Tag) *Message {
	for _, c := range m.Children() {
		if c.tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all children with the given tag.
func (m *Message) ChildrenOf(tag Tag) []*Message {
	var result []*Message
	for _, c := range m.Children() {
		if c.tag == tag {
			result = append(result, c)
		}
	}
	return result
}

// IsError reports whether the message is a server error reply.
func (m *Message) IsError() bool {
	return m != nil && m.tag == TagError
}

// Equal reports whether two messages have the same tag, attributes and
// children (children compared in order).
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.tag != o.tag || len(m.attrs) != len(o.attrs) || len(m.children) != len(o.children) {
		return false
	}
	for k, v := range m.attrs {
		if ov, ok := o.attrs[k]; !ok || ov != v {
			return false
		}
	}
	for i := range m.children {
		if !m.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}

// String renders the message in a compact, deterministic form for logs.
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	var sb strings.Builder
	m.writeTo(&sb)
	return sb.String()
}

func (m *Message) writeTo(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(string(m.tag))
	for _, k := range m.AttrNames() {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(m.attrs[k])
		sb.WriteByte('"')
	}
	if len(m.children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	for _, c := range m.children {
		c.writeTo(sb)
	}
	sb.WriteString("</")
	sb.WriteString(string(m.tag))
	sb.WriteByte('>')
}

// Collapse wraps several messages into a single "multiple" message whose
// children are processed in order. Nil entries are skipped; a single
// message collapses to itself and no messages collapse to nil.
func Collapse(msgs ...*Message) *Message {
	var kept []*Message
	for _, m := range msgs {
		if m != nil {
			kept = append(kept, m)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	b := NewBuilder(TagMultiple)
	for _, m := range kept {
		b.Child(m)
	}
	return b.Build()
}
