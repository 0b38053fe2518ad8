// Package measure derives throughput figures from byte counts and elapsed time
// and renders them for display.
package measure

import (
	"fmt"
	"math"
	"time"
)

// Throughput is one directional result. It is derived locally and never sent.
type Throughput struct {
	Bytes   uint64
	Elapsed time.Duration
}

// BitsPerSecond returns bits transferred divided by elapsed seconds. A zero or
// negative elapsed time yields 0.
func (t Throughput) BitsPerSecond() float64 {
	secs := t.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(t.Bytes) * 8 / secs
}

func (t Throughput) String() string {
	return fmt.Sprintf("%s in %s (%s)", FormatBytes(t.Bytes), t.Elapsed.Round(time.Millisecond), FormatBps(t.BitsPerSecond()))
}

var (
	bpsUnits  = []string{"bps", "Kbps", "Mbps", "Gbps", "Tbps"}
	byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}
)

// FormatBps renders a bit rate with base-1024 scaling.
func FormatBps(bps float64) string {
	v, unit := scale(bps, bpsUnits)
	return fmt.Sprintf("%.2f %s", v, unit)
}

// FormatBytes renders a byte count with base-1024 scaling.
func FormatBytes(n uint64) string {
	v, unit := scale(float64(n), byteUnits)
	if unit == byteUnits[0] {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

func scale(v float64, units []string) (float64, string) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, units[0]
	}
	idx := 0
	for v >= 1024 && idx < len(units)-1 {
		v /= 1024
		idx++
	}
	return v, units[idx]
}
