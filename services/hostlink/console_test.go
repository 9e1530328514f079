package hostlink

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"uartbridge-go/errcode"
	"uartbridge-go/serialmux"
)

// consolePort is the minimal serialmux.Port for console tests.
type consolePort struct {
	mu   sync.Mutex
	tx   bytes.Buffer
	baud uint32
}

func (p *consolePort) Buffered() int           { return 0 }
func (p *consolePort) ReadByte() (byte, error) { return 0, errcode.Timeout }
func (p *consolePort) Read([]byte) (int, error) { return 0, nil }
func (p *consolePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.Write(b)
}
func (p *consolePort) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
func (p *consolePort) SetBaudRate(br uint32) error { p.baud = br; return nil }

func newConsole(port serialmux.Port) (*Console, *Dispatcher) {
	c := &Console{
		Ident:  0x00A1B2C3D4E5F607,
		Start:  time.Now().Add(-3 * time.Second),
		Serial: serialmux.New(port),
	}
	d := NewDispatcher()
	c.Register(d)
	return c, d
}

func TestConsole_Ping(t *testing.T) {
	_, d := newConsole(&consolePort{})
	res, err := d.Dispatch(context.Background(), "ping")
	if err != nil || res != "pong" {
		t.Errorf("ping = %q, %v", res, err)
	}
}

func TestConsole_Ident(t *testing.T) {
	_, d := newConsole(&consolePort{})
	res, err := d.Dispatch(context.Background(), "ident")
	if err != nil || res != "00A1B2C3D4E5F607" {
		t.Errorf("ident = %q, %v", res, err)
	}
}

func TestConsole_Uptime(t *testing.T) {
	_, d := newConsole(&consolePort{})
	res, err := d.Dispatch(context.Background(), "uptime")
	if err != nil || !strings.HasSuffix(res, "s") {
		t.Errorf("uptime = %q, %v", res, err)
	}
}

func TestConsole_WriteGoesToUart(t *testing.T) {
	port := &consolePort{}
	_, d := newConsole(port)
	res, err := d.Dispatch(context.Background(), `write hello world`)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := port.tx.String(); got != "hello world" {
		t.Errorf("uart tx = %q", got)
	}
	if res != "11" {
		t.Errorf("byte count = %q, want %q", res, "11")
	}
}

func TestConsole_WriteQuoted(t *testing.T) {
	port := &consolePort{}
	_, d := newConsole(port)
	if _, err := d.Dispatch(context.Background(), `write "two words"`); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := port.tx.String(); got != "two words" {
		t.Errorf("uart tx = %q", got)
	}
}

func TestConsole_WriteWaitsForGuard(t *testing.T) {
	port := &consolePort{}
	c, d := newConsole(port)

	g, _ := c.Serial.Acquire(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(context.Background(), "write late")
	}()

	select {
	case <-done:
		t.Fatal("write completed while guard was held elsewhere")
	case <-time.After(50 * time.Millisecond):
	}
	if port.tx.Len() != 0 {
		t.Fatal("bytes written while guard was held elsewhere")
	}

	g.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write never completed after release")
	}
	if got := port.tx.String(); got != "late" {
		t.Errorf("uart tx = %q", got)
	}
}

func TestConsole_Baud(t *testing.T) {
	port := &consolePort{}
	_, d := newConsole(port)
	res, err := d.Dispatch(context.Background(), "baud 115200")
	if err != nil || res != "ok" {
		t.Fatalf("baud = %q, %v", res, err)
	}
	if port.baud != 115200 {
		t.Errorf("baud applied = %d", port.baud)
	}

	if _, err := d.Dispatch(context.Background(), "baud nope"); errcode.Of(err) != errcode.InvalidArgs {
		t.Errorf("expected invalid_args, got %v", err)
	}
}

func TestConsole_Seq(t *testing.T) {
	c := &Console{Seq: func() uint16 { return 41 }}
	d := NewDispatcher()
	c.Register(d)
	res, err := d.Dispatch(context.Background(), "seq")
	if err != nil || res != "41" {
		t.Errorf("seq = %q, %v", res, err)
	}

	// Without a probe the command is not installed.
	d2 := NewDispatcher()
	(&Console{}).Register(d2)
	if _, err := d2.Dispatch(context.Background(), "seq"); err != errcode.UnknownCommand {
		t.Errorf("seq without probe: %v", err)
	}
}

func TestDispatch_Errors(t *testing.T) {
	_, d := newConsole(&consolePort{})
	if _, err := d.Dispatch(context.Background(), ""); errcode.Of(err) != errcode.InvalidArgs {
		t.Errorf("empty line: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), "nope"); err != errcode.UnknownCommand {
		t.Errorf("unknown command: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), `write "unterminated`); errcode.Of(err) != errcode.InvalidArgs {
		t.Errorf("bad quoting: %v", err)
	}
}
