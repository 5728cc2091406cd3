package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide data channel traffic counter.
var Stats = &stats{}

type stats struct {
	MessagesSent atomic.Int64 // cumulative messages written to the data channel
	MessagesRecv atomic.Int64 // cumulative messages read from the data channel
	BytesSent    atomic.Int64 // cumulative bytes written to the data channel
	BytesRecv    atomic.Int64 // cumulative bytes read  from the data channel
}

func (s *stats) AddSent(n int) {
	s.MessagesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.MessagesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// Summary formats the cumulative counters.
func (s *stats) Summary() string {
	return formatStats(
		s.MessagesSent.Load(), s.MessagesRecv.Load(),
		float64(s.BytesSent.Load()), float64(s.BytesRecv.Load()),
	)
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// statsInterval is how often StartStatsReporter samples the counters.
const statsInterval = 30 * time.Second

// StartStatsReporter launches a goroutine that logs channel statistics
// every statsInterval, skipping idle intervals. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		var prevMsgSent, prevMsgRecv, prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				msgSent := Stats.MessagesSent.Load()
				msgRecv := Stats.MessagesRecv.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				if msgSent != prevMsgSent || msgRecv != prevMsgRecv {
					pterm.DefaultLogger.Info(formatStats(
						msgSent-prevMsgSent, msgRecv-prevMsgRecv,
						float64(sent-prevSent), float64(recv-prevRecv),
					))
				}

				prevMsgSent = msgSent
				prevMsgRecv = msgRecv
				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of one interval's traffic for the logger.
func formatStats(msgOut, msgIn int64, bytesOut, bytesIn float64) string {
	return fmt.Sprintf("Out: %3d msg (%s) | In: %3d msg (%s)",
		msgOut,
		formatBytes(bytesOut),
		msgIn,
		formatBytes(bytesIn),
	)
}
