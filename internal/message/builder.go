package message

import "strconv"

// Builder constructs a Message incrementally. A Builder must not be used
// after Build.
type Builder struct {
	tag      Tag
	attrs    map[string]string
	children []*Message
}

// NewBuilder starts a message with the given tag.
func NewBuilder(tag Tag) *Builder {
	return &Builder{tag: tag, attrs: make(map[string]string)}
}

// Attr sets a string attribute. Empty values are kept.
func (b *Builder) Attr(name, value string) *Builder {
	b.attrs[name] = value
	return b
}

// AttrIf sets a string attribute only if value is non-empty.
func (b *Builder) AttrIf(name, value string) *Builder {
	if value != "" {
		b.attrs[name] = value
	}
	return b
}

// Int sets an integer attribute.
func (b *Builder) Int(name string, value int) *Builder {
	b.attrs[name] = strconv.Itoa(value)
	return b
}

// Bool sets a boolean attribute.
func (b *Builder) Bool(name string, value bool) *Builder {
	b.attrs[name] = strconv.FormatBool(value)
	return b
}

// Child appends a child message; nil is ignored.
func (b *Builder) Child(c *Message) *Builder {
	if c != nil {
		b.children = append(b.children, c)
	}
	return b
}

// Children appends several child messages.
func (b *Builder) Children(cs ...*Message) *Builder {
	for _, c := range cs {
		b.Child(c)
	}
	return b
}

// Build returns the finished, immutable message.
func (b *Builder) Build() *Message {
	m := &Message{tag: b.tag, attrs: b.attrs}
	if len(b.children) > 0 {
		m.children = append([]*Message(nil), b.children...)
	}
	b.attrs = nil
	b.children = nil
	return m
}
