//go:build !rp2040

package platform

import (
	"context"
	"hash/fnv"
	"io"
	"net"
	"os"
	"sync"

	"github.com/denisbrodbeck/machineid"
)

func DefaultConfig() Config {
	return Config{Baud: 115200}
}

// Init builds the host-side stand-ins: a loopback serial port, a pipe
// transport shoveled to stdio, and a machine-id backed identity source.
func Init(cfg Config) (*Device, error) {
	return &Device{
		UID:    hostUID{},
		Serial: NewLoopPort(),
		Link:   newPipeTransport(),
	}, nil
}

// ---- hostUID: stable per-machine id for development builds ----

type hostUID struct{}

func (hostUID) UniqueID() (uint64, error) {
	id, err := machineid.ID()
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64(), nil
}

// ---- LoopPort: in-memory serial port, writes loop back to the receiver ----

type LoopPort struct {
	mu     sync.Mutex
	rx     []byte
	notify chan struct{}
}

func NewLoopPort() *LoopPort {
	return &LoopPort{notify: make(chan struct{}, 1)}
}

// Feed queues bytes as if they arrived on the wire.
func (p *LoopPort) Feed(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, b...)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *LoopPort) Buffered() int {
	p.mu.Lock()
	n := len(p.rx)
	p.mu.Unlock()
	return n
}

func (p *LoopPort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, io.EOF
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, nil
}

func (p *LoopPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *LoopPort) Write(b []byte) (int, error) {
	p.Feed(b)
	return len(b), nil
}

func (p *LoopPort) SetBaudRate(br uint32) error { return nil }

func (p *LoopPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.rx) > 0 {
			n := copy(buf, p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-p.notify:
		}
	}
}

// ---- pipeTransport: one long-lived in-process pipe, host end on stdio ----

type pipeTransport struct {
	dev  net.Conn
	host net.Conn
}

func newPipeTransport() *pipeTransport {
	dev, host := net.Pipe()
	return &pipeTransport{dev: dev, host: host}
}

func (t *pipeTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	// Sessions come and go; the pipe itself stays up across them.
	return nopCloseConn{t.dev}, nil
}

// Pump shovels the host end of the pipe to and from stdio so a tool on
// the other side of the terminal can speak the framed protocol.
func (t *pipeTransport) Pump(ctx context.Context) {
	go func() {
		_, _ = io.Copy(t.host, os.Stdin)
	}()
	go func() {
		_, _ = io.Copy(os.Stdout, t.host)
	}()
	<-ctx.Done()
	_ = t.host.Close()
	_ = t.dev.Close()
}

type nopCloseConn struct{ net.Conn }

func (nopCloseConn) Close() error { return nil }
