// ingest/ingest.go
//
// Polls the shared UART on a fixed cadence and republishes whatever
// arrives as discrete, sequence-tagged chunks on the uart/rx topic.
package ingest

import (
	"context"
	"time"

	"uartbridge-go/serialmux"
	"uartbridge-go/x/mathx"
)

const (
	// DefaultInterval is the poll cadence.
	DefaultInterval = 10 * time.Millisecond
	// DefaultReadBuf bounds one read. Clamped to [MinReadBuf, MaxReadBuf].
	DefaultReadBuf = 128
	MinReadBuf     = 16
	MaxReadBuf     = 512
)

// Publisher is the outbound capability the task publishes frames on.
// Failures mean "dropped"; the task never retries or surfaces them.
type Publisher interface {
	Publish(topic string, seq uint16, data []byte) error
}

type Config struct {
	Serial   *serialmux.Mutex
	Out      Publisher
	Topic    string
	Interval time.Duration // zero means DefaultInterval
	ReadBuf  int           // zero means DefaultReadBuf
}

// Task owns the sequence counter; nothing else touches it.
type Task struct {
	cfg Config
	seq uint16
}

func New(cfg Config) *Task {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReadBuf == 0 {
		cfg.ReadBuf = DefaultReadBuf
	}
	cfg.ReadBuf = mathx.Clamp(cfg.ReadBuf, MinReadBuf, MaxReadBuf)
	return &Task{cfg: cfg}
}

// Seq reports the last assigned sequence number.
func (t *Task) Seq() uint16 { return t.seq }

// Run polls until ctx ends. Each tick drains the port in a burst while
// holding the serial guard; transient read conditions and publish
// failures defer to the next tick without surfacing.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	buf := make([]byte, t.cfg.ReadBuf)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.drain(ctx, buf)
		}
	}
}

// drain is one tick's critical section: acquire, read until the port
// runs dry, release. The guard is released on every path out.
func (t *Task) drain(ctx context.Context, buf []byte) {
	g, err := t.cfg.Serial.Acquire(ctx)
	if err != nil {
		return
	}
	defer g.Release()

	for {
		if g.Port().Buffered() <= 0 {
			return
		}
		n, err := g.Port().RecvSomeContext(ctx, buf)
		if err != nil || n == 0 {
			// Transient: not-ready, zero-length or read error all wait
			// for the next tick.
			return
		}
		t.seq++ // uint16 wraps at 65535 by definition
		_ = t.cfg.Out.Publish(t.cfg.Topic, t.seq, buf[:n])
	}
}
