package hostlink

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"uartbridge-go/errcode"
)

// fakeTransport serves a scripted number of Open failures, then hands out
// pipe connections pushed by the test.
type fakeTransport struct {
	mu    sync.Mutex
	fails int
	conns chan io.ReadWriteCloser
}

func newFakeTransport(fails int) *fakeTransport {
	return &fakeTransport{fails: fails, conns: make(chan io.ReadWriteCloser, 4)}
}

func (t *fakeTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	t.mu.Lock()
	if t.fails > 0 {
		t.fails--
		t.mu.Unlock()
		return nil, errcode.NoSession
	}
	t.mu.Unlock()
	select {
	case c := <-t.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Pump(context.Context) {}

// connect pushes a fresh pipe and returns the host end.
func (t *fakeTransport) connect() net.Conn {
	host, dev := net.Pipe()
	t.conns <- dev
	return host
}

func readFrame(t *testing.T, rd *framedReader, d time.Duration) Frame {
	t.Helper()
	type res struct {
		f   Frame
		err error
	}
	ch := make(chan res, 1)
	go func() {
		f, err := rd.ReadFrame()
		ch <- res{f, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("ReadFrame: %v", r.err)
		}
		return r.f
	case <-time.After(d):
		t.Fatalf("timeout waiting for frame")
		return Frame{}
	}
}

func startServer(t *testing.T, fails int) (*Server, *fakeTransport, context.CancelFunc) {
	t.Helper()
	tr := newFakeTransport(fails)
	d := NewDispatcher()
	d.Register("ping", func(context.Context, []string) (string, error) { return "pong", nil })
	srv := New("00A1B2C3D4E5F607", tr, d)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv, tr, cancel
}

func TestSession_HelloCarriesIdentity(t *testing.T) {
	_, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()

	f := readFrame(t, newFramedReader(host), time.Second)
	if f.Type != frameHello || string(f.Payload) != "00A1B2C3D4E5F607" {
		t.Errorf("hello = %+v", f)
	}
}

func TestSession_RetryAfterFailures(t *testing.T) {
	const fails = 3
	srv, tr, cancel := startServer(t, fails)
	defer cancel()

	host := tr.connect()
	defer host.Close()

	// The server burns through the scripted failures, then session fails+1
	// comes up and greets us.
	readFrame(t, newFramedReader(host), time.Second)
	if got := srv.Attempts(); got != fails+1 {
		t.Errorf("attempts = %d, want %d", got, fails+1)
	}
}

func TestSession_RestartsAfterDisconnect(t *testing.T) {
	srv, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	readFrame(t, newFramedReader(host), time.Second)
	host.Close() // simulated host disconnect

	host2 := tr.connect()
	defer host2.Close()
	readFrame(t, newFramedReader(host2), time.Second)

	if got := srv.Attempts(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

// sharedTransport models the on-device link: every Open hands back the
// same underlying stream and Close is a no-op, like the USB CDC and
// host pipe transports.
type sharedTransport struct{ dev net.Conn }

type keepOpenConn struct{ net.Conn }

func (keepOpenConn) Close() error { return nil }

func newSharedTransport() (*sharedTransport, net.Conn) {
	host, dev := net.Pipe()
	return &sharedTransport{dev: dev}, host
}

func (t *sharedTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return keepOpenConn{t.dev}, nil
}

func (t *sharedTransport) Pump(context.Context) {}

func TestSession_CleanCloseThenReconnectStillServes(t *testing.T) {
	tr, host := newSharedTransport()
	defer host.Close()

	d := NewDispatcher()
	d.Register("ping", func(context.Context, []string) (string, error) { return "pong", nil })
	srv := New("00A1B2C3D4E5F607", tr, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	rd := newFramedReader(host)
	wr := newFramedWriter(host)
	readFrame(t, rd, time.Second) // session 1 hello

	// Clean shutdown from the host side ends session 1; session 2 comes
	// up on the very same stream.
	if err := wr.WriteFrame(Frame{Type: frameClose}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if f := readFrame(t, rd, time.Second); f.Type != frameHello {
		t.Fatalf("after close: frame type = %#x, want hello", f.Type)
	}
	if got := srv.Attempts(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}

	// The new session must answer every request; a stale reader from
	// session 1 stealing bytes would desync the framing here.
	for i := 0; i < 30; i++ {
		req := encodeReq(uint16(i), "ping")
		if err := wr.WriteFrame(Frame{Type: frameReq, Payload: req}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		f := readFrame(t, rd, time.Second)
		id, status, text, err := decodeRep(f.Payload)
		if f.Type != frameRep || err != nil || id != uint16(i) || status != repOK || text != "pong" {
			t.Fatalf("request %d: rep type=%#x id=%d status=%d text=%q err=%v", i, f.Type, id, status, text, err)
		}
	}
}

func TestPublish_ForwardedToHost(t *testing.T) {
	srv, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	readFrame(t, rd, time.Second) // hello

	sender := srv.Sender()
	if err := sender.Publish(TopicUartRx, 7, []byte("AB")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	f := readFrame(t, rd, time.Second)
	if f.Type != framePub {
		t.Fatalf("frame type = %#x", f.Type)
	}
	topic, seq, data, err := decodePub(f.Payload)
	if err != nil || topic != TopicUartRx || seq != 7 || string(data) != "AB" {
		t.Errorf("pub = %q %d %q err=%v", topic, seq, data, err)
	}
}

func TestPublish_AbsorbedWithoutSession(t *testing.T) {
	srv, tr, cancel := startServer(t, 0)
	defer cancel()

	sender := srv.Sender()
	if err := sender.Publish(TopicLog, 0, []byte("uptime 0.000s")); err != nil {
		t.Fatalf("Publish with no session: %v", err)
	}

	// A session opened later must not replay the absorbed message.
	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	readFrame(t, rd, time.Second) // hello

	got := make(chan Frame, 1)
	go func() {
		if f, err := rd.ReadFrame(); err == nil {
			got <- f
		}
	}()
	select {
	case f := <-got:
		t.Errorf("unexpected replayed frame: %+v", f)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestPublish_CopiesPayload(t *testing.T) {
	srv, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	readFrame(t, rd, time.Second) // hello

	buf := []byte("AB")
	sender := srv.Sender()
	if err := sender.Publish(TopicUartRx, 1, buf); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	buf[0] = 'Z' // caller reuses its buffer immediately

	f := readFrame(t, rd, time.Second)
	_, _, data, _ := decodePub(f.Payload)
	if string(data) != "AB" {
		t.Errorf("payload = %q, want %q (publish must copy)", data, "AB")
	}
}

func TestRequest_DispatchedAndReplied(t *testing.T) {
	_, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	wr := newFramedWriter(host)
	readFrame(t, rd, time.Second) // hello

	if err := wr.WriteFrame(Frame{Type: frameReq, Payload: encodeReq(9, "ping")}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f := readFrame(t, rd, time.Second)
	id, status, text, err := decodeRep(f.Payload)
	if f.Type != frameRep || err != nil || id != 9 || status != repOK || text != "pong" {
		t.Errorf("rep = type=%#x id=%d status=%d text=%q err=%v", f.Type, id, status, text, err)
	}
}

func TestRequest_UnknownCommand(t *testing.T) {
	_, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	wr := newFramedWriter(host)
	readFrame(t, rd, time.Second) // hello

	if err := wr.WriteFrame(Frame{Type: frameReq, Payload: encodeReq(1, "nope")}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f := readFrame(t, rd, time.Second)
	_, status, text, _ := decodeRep(f.Payload)
	if status != repErr || text != string(errcode.UnknownCommand) {
		t.Errorf("rep = status=%d text=%q", status, text)
	}
}

func TestPing_Pong(t *testing.T) {
	_, tr, cancel := startServer(t, 0)
	defer cancel()

	host := tr.connect()
	defer host.Close()
	rd := newFramedReader(host)
	wr := newFramedWriter(host)
	readFrame(t, rd, time.Second) // hello

	if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if f := readFrame(t, rd, time.Second); f.Type != framePong {
		t.Errorf("frame type = %#x, want pong", f.Type)
	}
}
