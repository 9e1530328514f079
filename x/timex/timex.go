package timex

import (
	"time"

	"uartbridge-go/x/conv"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Uptime formats an elapsed duration as "<sec>.<ms>s" without fmt,
// e.g. 3.002s, 0.250s. Negative durations are coerced to zero.
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := uint64(d / time.Millisecond)
	sec := ms / 1000
	frac := ms % 1000

	var sb [20]byte
	out := make([]byte, 0, 26)
	out = append(out, conv.Utoa(sb[:], sec)...)
	out = append(out, '.')
	// zero-pad milliseconds to 3 digits
	if frac < 100 {
		out = append(out, '0')
	}
	if frac < 10 {
		out = append(out, '0')
	}
	out = append(out, conv.Utoa(sb[:], frac)...)
	out = append(out, 's')
	return string(out)
}
