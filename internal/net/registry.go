package net

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/message"
)

// HandlerFunc handles one inbound message of a registered tag.
type HandlerFunc func(conn *Connection, msg *message.Message) (*message.Message, error)

// Registry maps message tags to handlers. It is filled at construction and
// must not be changed once installed on a connection.
type Registry struct {
	name     string
	handlers map[message.Tag]HandlerFunc
	logger   *zap.Logger
}

// NewRegistry returns a registry with the "multiple" wrapper pre-registered.
func NewRegistry(name string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		name:     name,
		handlers: make(map[message.Tag]HandlerFunc),
		logger:   logger.With(zap.String("registry", name)),
	}
	r.handlers[message.TagMultiple] = r.dispatchMultiple
	return r
}

// Name returns the registry name used in logs.
func (r *Registry) Name() string { return r.name }

// Register associates a handler with a tag. Registering the same tag twice
// is a programming error and panics.
func (r *Registry) Register(tag message.Tag, h HandlerFunc) {
	if _, dup := r.handlers[tag]; dup {
		panic(fmt.Sprintf("registry %s: duplicate handler for %q", r.name, tag))
	}
	r.handlers[tag] = h
}

// Handles reports whether a handler is registered for tag.
func (r *Registry) Handles(tag message.Tag) bool {
	_, ok := r.handlers[tag]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []message.Tag {
	tags := make([]message.Tag, 0, len(r.handlers))
	for t := range r.handlers {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Dispatch invokes the handler for msg. Unknown tags, handler errors and
// handler panics are logged and produce a nil reply. Only errors wrapping
// ErrFatalProtocol are returned.
func (r *Registry) Dispatch(conn *Connection, msg *message.Message) (reply *message.Message, err error) {
	h, ok := r.handlers[msg.Tag()]
	if !ok {
		r.logger.Warn("no handler for message", zap.String("tag", string(msg.Tag())), zap.Stringer("msg", msg))
		return nil, nil
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked",
				zap.String("tag", string(msg.Tag())),
				zap.Any("panic", p),
				zap.Stringer("msg", msg))
			reply, err = nil, nil
		}
	}()

	reply, err = h(conn, msg)
	if err != nil {
		if errors.Is(err, ErrFatalProtocol) {
			return nil, err
		}
		r.logger.Warn("handler failed", zap.String("tag", string(msg.Tag())), zap.Error(err))
		return nil, nil
	}
	return reply, nil
}

// dispatchMultiple unwraps a "multiple" message and dispatches each child
// in order, collapsing the replies.
func (r *Registry) dispatchMultiple(conn *Connection, msg *message.Message) (*message.Message, error) {
	var replies []*message.Message
	for _, child := range msg.Children() {
		reply, err := r.Dispatch(conn, child)
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return message.Collapse(replies...), nil
}
