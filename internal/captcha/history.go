package captcha

import (
	"sync"
	"time"

	"github.com/trose/ice-locator-go/internal/types"
)

// maxHistoryEntries bounds the in-memory challenge log.
const maxHistoryEntries = 1000

// History is an in-memory record of handled challenges, kept for statistics.
type History struct {
	mu      sync.RWMutex
	entries []Challenge
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Record appends a challenge. The oldest entries are dropped once the bound
// is reached.
func (h *History) Record(ch *Challenge) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, *ch)
	if len(h.entries) > maxHistoryEntries {
		h.entries = h.entries[len(h.entries)-maxHistoryEntries:]
	}
}

// Len returns the number of recorded challenges.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Stats summarizes totals, per-variant success rates, and mean solve time.
// Solved and bypassed challenges both count as resolved.
func (h *History) Stats() types.ChallengeStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := types.ChallengeStats{
		Total:     len(h.entries),
		ByVariant: make(map[string]types.VariantStats),
	}
	if len(h.entries) == 0 {
		return stats
	}

	var totalSolveTime time.Duration
	var timed int
	for _, ch := range h.entries {
		resolved := ch.Status == StatusSolved || ch.Status == StatusBypassed
		if resolved {
			stats.Solved++
		}

		vs := stats.ByVariant[string(ch.Variant)]
		vs.Total++
		if resolved {
			vs.Solved++
		}
		stats.ByVariant[string(ch.Variant)] = vs

		if ch.SolveTime > 0 {
			totalSolveTime += ch.SolveTime
			timed++
		}
	}

	stats.SuccessRate = float64(stats.Solved) / float64(stats.Total)
	if timed > 0 {
		stats.AvgSolveTimeMs = totalSolveTime.Milliseconds() / int64(timed)
	}
	return stats
}
