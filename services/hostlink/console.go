// hostlink/console.go
package hostlink

import (
	"context"
	"time"

	"uartbridge-go/errcode"
	"uartbridge-go/identity"
	"uartbridge-go/serialmux"
	"uartbridge-go/x/conv"
	"uartbridge-go/x/timex"
)

// Console holds the device state the built-in commands operate on.
type Console struct {
	Ident  identity.ID
	Start  time.Time
	Serial *serialmux.Mutex
	Seq    func() uint16 // optional ingest counter probe
}

// Register installs the built-in command set on a dispatcher.
func (c *Console) Register(d *Dispatcher) {
	d.Register("ping", c.ping)
	d.Register("ident", c.ident)
	d.Register("uptime", c.uptime)
	d.Register("write", c.write)
	d.Register("baud", c.baud)
	if c.Seq != nil {
		d.Register("seq", c.seq)
	}
}

func (c *Console) ping(context.Context, []string) (string, error) {
	return "pong", nil
}

func (c *Console) ident(context.Context, []string) (string, error) {
	return c.Ident.String(), nil
}

func (c *Console) uptime(context.Context, []string) (string, error) {
	return timex.Uptime(time.Since(c.Start)), nil
}

func (c *Console) seq(context.Context, []string) (string, error) {
	var nb [20]byte
	return string(conv.Utoa(nb[:], uint64(c.Seq()))), nil
}

// write transmits its arguments (joined by a single space) on the shared
// UART. It contends with the ingest task for the serial guard.
func (c *Console) write(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", errcode.InvalidArgs
	}
	g, err := c.Serial.Acquire(ctx)
	if err != nil {
		return "", &errcode.E{C: errcode.PortBusy, Op: "console.write", Err: err}
	}
	defer g.Release()

	total := 0
	for i, a := range args {
		if i > 0 {
			if _, err := g.Port().Write([]byte{' '}); err != nil {
				return "", err
			}
			total++
		}
		n, err := g.Port().Write([]byte(a))
		total += n
		if err != nil {
			return "", err
		}
	}
	var nb [20]byte
	return string(conv.Utoa(nb[:], uint64(total))), nil
}

// baud retunes the UART where the platform port supports it.
func (c *Console) baud(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errcode.InvalidArgs
	}
	br, ok := parseUint32(args[0])
	if !ok || br == 0 {
		return "", errcode.InvalidArgs
	}
	g, err := c.Serial.Acquire(ctx)
	if err != nil {
		return "", &errcode.E{C: errcode.PortBusy, Op: "console.baud", Err: err}
	}
	defer g.Release()

	cfg, ok := g.Port().(serialmux.BaudConfigurator)
	if !ok {
		return "", errcode.Unsupported
	}
	if err := cfg.SetBaudRate(br); err != nil {
		return "", err
	}
	return "ok", nil
}

func parseUint32(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
		if n > 0xFFFFFFFF {
			return 0, false
		}
	}
	return uint32(n), true
}
