//go:build rp2040

package platform

import (
	"context"
	"encoding/binary"
	"io"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// Board defaults: UART1 on GP4/GP5 at 115200.
func DefaultConfig() Config {
	return Config{Baud: 115200, TX: 4, RX: 5}
}

// Init configures the bridged UART, the flash unique-id source and the
// USB CDC host link. Safe to call once at startup.
func Init(cfg Config) (*Device, error) {
	hw := uartx.UART1
	_ = hw.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(cfg.TX),
		RX:       machine.Pin(cfg.RX),
	})
	return &Device{
		UID:    flashUID{},
		Serial: &rp2Port{u: hw},
		Link:   &cdcTransport{},
	}, nil
}

// ---- flash unique id ----

type flashUID struct{}

func (flashUID) UniqueID() (uint64, error) {
	id := machine.DeviceID()
	if len(id) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint64(id[:8]), nil
}

// ---- rp2Port: adapts uartx to serialmux.Port (+optional baud configurator) ----

type rp2Port struct{ u *uartx.UART }

func (p *rp2Port) Buffered() int                 { return p.u.Buffered() }
func (p *rp2Port) Read(b []byte) (int, error)    { return p.u.Read(b) }
func (p *rp2Port) ReadByte() (byte, error)       { return p.u.ReadByte() }
func (p *rp2Port) Write(b []byte) (int, error)   { return p.u.Write(b) }
func (p *rp2Port) SetBaudRate(br uint32) error   { p.u.SetBaudRate(br); return nil }
func (p *rp2Port) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return p.u.RecvSomeContext(ctx, buf)
}

// ---- cdcTransport: host link over the USB CDC console ----

// The CDC endpoint is interrupt-driven under the hood; reads poll the
// ring buffer with short sleeps so other goroutines keep running.
type cdcTransport struct {
	conn *cdcConn
}

// Open hands every session the same CDC stream; the endpoint has no
// per-session lifecycle.
func (t *cdcTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if t.conn == nil {
		t.conn = &cdcConn{ctx: ctx}
	}
	return t.conn, nil
}

// Pump is a no-op: the USB stack services the endpoint from interrupts.
func (t *cdcTransport) Pump(ctx context.Context) {}

type cdcConn struct{ ctx context.Context }

func (c *cdcConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if machine.Serial.Buffered() > 0 {
			break
		}
		select {
		case <-c.ctx.Done():
			return 0, c.ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (c *cdcConn) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}

func (c *cdcConn) Close() error { return nil }
