// hostlink/sender.go
package hostlink

import (
	"uartbridge-go/bus"
	"uartbridge-go/errcode"
)

// busTopicRoot prefixes everything destined for the host link on the
// internal bus; the live session forwards {"tx","#"}.
const busTopicRoot = "tx"

// Host-visible topics.
const (
	TopicUartRx = "uart/rx"
	TopicLog    = "log/uptime"
)

// Sender is a cloneable publish capability bound to the server's outbound
// channel. Clones publish independently and concurrently. Publishing is
// best-effort: with no host session attached, messages are absorbed.
type Sender struct {
	b    *bus.Bus
	conn *bus.Connection
}

// Clone returns an independent sender over the same outbound channel.
func (s Sender) Clone() Sender {
	return Sender{b: s.b, conn: s.b.NewConnection(s.conn.ID() + "'")}
}

// Publish enqueues payload for the host under topic, tagged with seq.
// The payload is copied; callers may reuse their buffer immediately.
func (s Sender) Publish(topic string, seq uint16, data []byte) error {
	if len(topic) > 0xFF || 3+len(topic)+len(data) > maxFramePayload {
		return errcode.FrameTooLarge
	}
	out := Outbound{Topic: topic, Seq: seq, Data: append([]byte(nil), data...)}
	s.conn.Publish(s.conn.NewMessage(busTopic(topic), out, false))
	return nil
}

// Outbound is one host-bound message as carried on the internal bus.
type Outbound struct {
	Topic string
	Seq   uint16
	Data  []byte
}

// busTopic maps a host topic like "uart/rx" to {"tx","uart","rx"}.
func busTopic(topic string) bus.Topic {
	t := bus.Topic{busTopicRoot}
	start := 0
	for i := 0; i <= len(topic); i++ {
		if i == len(topic) || topic[i] == '/' {
			if i > start {
				t = append(t, topic[start:i])
			}
			start = i + 1
		}
	}
	return t
}
