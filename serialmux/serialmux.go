// serialmux/serialmux.go
//
// Mutually-exclusive, asynchronously-acquirable ownership of one serial
// peripheral. Every reader and writer of the port goes through Acquire;
// nothing else holds a direct reference to the hardware.
package serialmux

import (
	"context"

	"tinygo.org/x/drivers"
)

// Port is the serial peripheral contract the guard arbitrates.
// The drivers.UART subset keeps it compatible with TinyGo machine UARTs;
// RecvSomeContext is the asynchronous bounded read (returns as soon as at
// least one byte is available, or when ctx ends).
type Port interface {
	drivers.UART
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// BaudConfigurator is optionally implemented by ports that can be retuned
// at runtime.
type BaudConfigurator interface {
	SetBaudRate(br uint32) error
}

// Mutex arbitrates exclusive access to a Port. Waiters suspend on a
// channel semaphore; wake order follows suspension order.
type Mutex struct {
	sem  chan struct{}
	port Port
}

func New(port Port) *Mutex {
	return &Mutex{sem: make(chan struct{}, 1), port: port}
}

// Acquire suspends the calling task until the port is free, then returns
// an exclusive guard. It fails only if ctx ends first.
func (m *Mutex) Acquire(ctx context.Context) (*Guard, error) {
	select {
	case m.sem <- struct{}{}:
		return &Guard{m: m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire returns a guard only if the port is free right now.
func (m *Mutex) TryAcquire() (*Guard, bool) {
	select {
	case m.sem <- struct{}{}:
		return &Guard{m: m}, true
	default:
		return nil, false
	}
}

// Guard is the exclusive capability over the port. Release is idempotent,
// so holders may release early and still defer it on every exit path.
type Guard struct {
	m        *Mutex
	released bool
}

// Port exposes the guarded peripheral to the current holder.
func (g *Guard) Port() Port { return g.m.port }

// Release returns ownership. Safe to call more than once.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	<-g.m.sem
}
