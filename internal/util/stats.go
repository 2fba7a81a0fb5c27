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

// Stats is the process-wide traffic/connection counter.
var Stats = &stats{}

type stats struct {
	OpenedConns     atomic.Int64 // cumulative count of connections handed to a hub
	ClosedConns     atomic.Int64 // cumulative count of torn-down connections
	BytesSent       atomic.Int64 // cumulative bytes written to connections
	BytesRecv       atomic.Int64 // cumulative bytes read from connections
	FramesDelivered atomic.Int64 // frames handed to local listeners
	FramesRelayed   atomic.Int64 // frames re-emitted by a host on behalf of a player
	FramesDropped   atomic.Int64 // undecodable or unroutable frames
}

func (s *stats) AddConn()      { s.OpenedConns.Add(1) }
func (s *stats) RemoveConn()   { s.ClosedConns.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddDelivered() { s.FramesDelivered.Add(1) }
func (s *stats) AddRelayed()   { s.FramesRelayed.Add(1) }
func (s *stats) AddDropped()   { s.FramesDropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs bus statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if cur.changedFrom(prev) {
					pterm.DefaultLogger.Info(formatStats(cur, prev))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	opened, closed, sent, recv, delivered, relayed, dropped int64
}

func takeSnapshot() snapshot {
	return snapshot{
		opened:    Stats.OpenedConns.Load(),
		closed:    Stats.ClosedConns.Load(),
		sent:      Stats.BytesSent.Load(),
		recv:      Stats.BytesRecv.Load(),
		delivered: Stats.FramesDelivered.Load(),
		relayed:   Stats.FramesRelayed.Load(),
		dropped:   Stats.FramesDropped.Load(),
	}
}

func (s snapshot) changedFrom(prev snapshot) bool {
	return s != prev
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

// formatStats returns a formatted string of the 10-second deltas for display in the logger.
func formatStats(cur, prev snapshot) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Conn: %2d↑ %2d↓ | Frames: %d local, %d relayed, %d dropped",
		formatBytes(float64(cur.recv-prev.recv)/10.0),
		formatBytes(float64(cur.sent-prev.sent)/10.0),
		cur.opened-prev.opened,
		cur.closed-prev.closed,
		cur.delivered-prev.delivered,
		cur.relayed-prev.relayed,
		cur.dropped-prev.dropped,
	)
}
