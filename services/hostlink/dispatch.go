// hostlink/dispatch.go
package hostlink

import (
	"context"
	"sync"

	"github.com/google/shlex"

	"uartbridge-go/errcode"
)

// HandlerFunc services one host command. args excludes the command name.
// The returned string travels back verbatim in the reply frame.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

// Dispatcher routes request frames to registered command handlers.
// Handlers are opaque to the link layer.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]HandlerFunc{}}
}

// Register adds (or replaces) a command handler.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

// Dispatch tokenises a command line and invokes the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", &errcode.E{C: errcode.InvalidArgs, Op: "hostlink.Dispatch", Err: err}
	}
	if len(args) == 0 {
		return "", errcode.InvalidArgs
	}
	d.mu.RLock()
	fn, ok := d.handlers[args[0]]
	d.mu.RUnlock()
	if !ok {
		return "", errcode.UnknownCommand
	}
	return fn(ctx, args[1:])
}
