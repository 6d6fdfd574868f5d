// Package mono provides a cheap monotonic clock used by the idle-timer and
// download-speed throttling math, so that those computations never observe
// wall-clock jumps (NTP steps, manual clock changes).
package mono

import "time"

var epoch = time.Now()

// NanoTime returns nanoseconds elapsed since the package was first loaded,
// monotonic for the lifetime of the process.
func NanoTime() int64 { return int64(time.Since(epoch)) }

// Since is a convenience wrapper returning a Duration from a NanoTime sample.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
