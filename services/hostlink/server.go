// hostlink/server.go
//
// Host-facing command/telemetry session. One Run is one session; Serve
// restarts the session forever, because host disconnects are normal
// lifecycle, not failures.
package hostlink

import (
	"context"
	"io"
	"sync/atomic"

	"uartbridge-go/bus"
	"uartbridge-go/x/conv"
)

// Transport hands the server a byte stream to the host and owns whatever
// low-level pumping the platform needs (USB is interrupt-serviced on MCU
// builds, so Pump may be a no-op there).
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	Pump(ctx context.Context)
}

const senderQueueLen = 16

type Server struct {
	b      *bus.Bus
	serial string
	tr     Transport
	disp   *Dispatcher

	rd *reader // standing inbound reader, survives sessions on one stream

	attempts atomic.Uint32
	senderCt atomic.Uint32
}

// reader owns the inbound half of one transport stream. Exactly one
// reader ever reads a given stream: a second one would split a frame's
// header and payload between sessions and desync the framing for good.
// It outlives the session that started it and stops only when the
// stream itself errors out.
type reader struct {
	src  io.ReadWriteCloser
	in   chan Frame
	errs chan error
	done chan struct{}
}

func startReader(src io.ReadWriteCloser) *reader {
	r := &reader{
		src:  src,
		in:   make(chan Frame, 4),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *reader) loop() {
	fr := newFramedReader(r.src)
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			// Mark stopped before queueing the error so the next
			// session start never adopts a dying reader.
			close(r.done)
			r.errs <- err
			return
		}
		r.in <- f
	}
}

func (r *reader) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// New builds a server. serial is the device identity string sent in the
// hello frame as the connection label.
func New(serial string, tr Transport, disp *Dispatcher) *Server {
	return &Server{
		b:      bus.NewBus(senderQueueLen),
		serial: serial,
		tr:     tr,
		disp:   disp,
	}
}

// Sender returns a fresh publish capability bound to this server's
// outbound channel.
func (s *Server) Sender() Sender {
	var nb [20]byte
	id := "sender-" + string(conv.Utoa(nb[:], uint64(s.senderCt.Add(1))))
	return Sender{b: s.b, conn: s.b.NewConnection(id)}
}

// Attempts reports how many sessions have been started so far.
func (s *Server) Attempts() uint32 { return s.attempts.Load() }

// Serve runs sessions forever. Each session's error is discarded; the
// only exit is ctx cancellation (which never happens on-device).
func (s *Server) Serve(ctx context.Context) {
	for {
		// If the host disconnects, Run returns an error. Just start
		// the next session and wait for the host to come back.
		_ = s.Run(ctx)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Run executes a single host session: hello, then forward outbound
// messages and service inbound frames until the transport errors out.
func (s *Server) Run(ctx context.Context) error {
	s.attempts.Add(1)

	rwc, err := s.tr.Open(ctx)
	if err != nil {
		return err
	}
	defer rwc.Close()

	// Real transports hand every session the same underlying stream
	// (Close is a no-op there), so the previous session's reader is
	// still the stream's owner. Adopt it; start fresh only for a new
	// or dead stream.
	if s.rd == nil || s.rd.src != rwc || s.rd.stopped() {
		s.rd = startReader(rwc)
	}
	rd := s.rd

	conn := s.b.NewConnection("session")
	sub := conn.Subscribe(bus.T(busTopicRoot, "#"))
	defer conn.Unsubscribe(sub)

	wr := newFramedWriter(rwc)

	if err := wr.WriteFrame(Frame{Type: frameHello, Payload: []byte(s.serial)}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return ctx.Err()
		case err := <-rd.errs:
			return err
		case m := <-sub.Channel():
			out, ok := m.Payload.(Outbound)
			if !ok {
				continue
			}
			p, err := encodePub(out.Topic, out.Seq, out.Data)
			if err != nil {
				continue // oversized: drop, never kill the session
			}
			if err := wr.WriteFrame(Frame{Type: framePub, Payload: p}); err != nil {
				return err
			}
		case f := <-rd.in:
			if err := s.handleFrame(ctx, wr, f); err != nil {
				return err
			}
		}
	}
}

// handleFrame services one inbound frame. Only transport write errors are
// returned; malformed frames are ignored.
func (s *Server) handleFrame(ctx context.Context, wr *framedWriter, f Frame) error {
	switch f.Type {
	case framePing:
		return wr.WriteFrame(Frame{Type: framePong})
	case frameReq:
		id, line, err := decodeReq(f.Payload)
		if err != nil {
			return nil
		}
		res, herr := s.disp.Dispatch(ctx, line)
		if herr != nil {
			return wr.WriteFrame(Frame{Type: frameRep, Payload: encodeRep(id, repErr, herr.Error())})
		}
		return wr.WriteFrame(Frame{Type: frameRep, Payload: encodeRep(id, repOK, res)})
	case frameClose:
		return io.EOF
	default:
		// hello/pong/unknown from the host: nothing to do.
		return nil
	}
}
