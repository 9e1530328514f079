// heartbeat/heartbeat.go
//
// Periodic sign-of-life, independent of host sessions and serial traffic.
package heartbeat

import (
	"context"
	"time"

	"uartbridge-go/x/timex"
)

// DefaultInterval is the liveness cadence.
const DefaultInterval = 3 * time.Second

// Publisher matches the hostlink sender; failures are ignored.
type Publisher interface {
	Publish(topic string, seq uint16, data []byte) error
}

type Config struct {
	Out      Publisher
	Topic    string
	Interval time.Duration // zero means DefaultInterval
	Start    time.Time     // zero means now
}

type Task struct {
	cfg Config
}

func New(cfg Config) *Task {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	return &Task{cfg: cfg}
}

// Run emits an uptime message every interval until ctx ends. Liveness
// messages carry no sequence tag; elapsed time is measured from Start.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := "uptime " + timex.Uptime(time.Since(t.cfg.Start))
			_ = t.cfg.Out.Publish(t.cfg.Topic, 0, []byte(msg))
		}
	}
}
