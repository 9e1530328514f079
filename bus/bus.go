// bus.go
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"uartbridge-go/errcode"
	"uartbridge-go/x/conv"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of string tokens. Subscription topics may use the
// wildcards "+" (exactly one token) and "#" (trailing, zero or more tokens).
// Publish topics are always literal.
type Topic []string

// T builds a topic from tokens.
func T(parts ...string) Topic { return Topic(parts) }

const (
	wildOne = "+"
	wildAny = "#"
)

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender attached a reply topic.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	root     *node
	qLen     int
	replyCtr atomic.Uint32
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message bound to no particular connection.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// addSubscription inserts a subscription into the trie. Wildcard tokens are
// stored as ordinary edges; matching happens at publish time.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Deliver retained messages matching the pattern.
	var matched []*Message
	collectRetained(b.root, sub.topic, 0, &matched)
	for _, m := range matched {
		deliver(sub, m)
	}
}

// Publish delivers a message to all subscribers whose pattern matches its
// (literal) topic, then stores or clears the retained copy.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matchSubs(b.root, msg.Topic, 0, msg)

	if !msg.Retained {
		return
	}
	// Store retained at the literal path; nil payload clears.
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			if msg.Payload == nil {
				return // clearing a topic that was never retained
			}
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// matchSubs walks the trie, following literal, "+" and "#" edges.
func matchSubs(n *node, topic Topic, i int, msg *Message) {
	if n == nil {
		return
	}
	if i == len(topic) {
		for _, sub := range n.subs {
			deliver(sub, msg)
		}
		// "a/#" also matches "a".
		if h := n.children[wildAny]; h != nil {
			for _, sub := range h.subs {
				deliver(sub, msg)
			}
		}
		return
	}
	if n.children == nil {
		return
	}
	matchSubs(n.children[topic[i]], topic, i+1, msg)
	matchSubs(n.children[wildOne], topic, i+1, msg)
	if h := n.children[wildAny]; h != nil {
		for _, sub := range h.subs {
			deliver(sub, msg)
		}
	}
}

// collectRetained gathers retained messages under a subscription pattern.
func collectRetained(n *node, pattern Topic, i int, out *[]*Message) {
	if n == nil {
		return
	}
	if i == len(pattern) {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch pattern[i] {
	case wildAny:
		subtreeRetained(n, out)
	case wildOne:
		for _, child := range n.children {
			collectRetained(child, pattern, i+1, out)
		}
	default:
		if n.children != nil {
			collectRetained(n.children[pattern[i]], pattern, i+1, out)
		}
	}
}

func subtreeRetained(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, child := range n.children {
		subtreeRetained(child, out)
	}
}

// deliver enqueues without blocking; drops the oldest entry when full.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, tok := range sub.topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message for publication via this connection.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// Reply publishes a response to the request's ReplyTo topic.
// It is a no-op when the request carries no reply topic.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// Request assigns a unique ReplyTo topic, subscribes to it, and publishes the
// request. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	var nb [20]byte
	msg.ReplyTo = Topic{"$reply", c.id, string(conv.Utoa(nb[:], uint64(c.bus.replyCtr.Add(1))))}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes a request and waits for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case reply, ok := <-sub.ch:
		if !ok {
			return nil, errcode.SessionClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, errcode.Timeout
	}
}
