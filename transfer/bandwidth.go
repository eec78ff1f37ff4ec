package transfer

import (
	"sync"
	"time"
)

// bandwidthLedger tracks per-peer download volume per UTC day. Counters
// reset implicitly at the day rollover by keying on the day string.
type bandwidthLedger struct {
	limit int64

	mu   sync.Mutex
	day  string
	used map[string]int64
}

func newBandwidthLedger(limit int64) *bandwidthLedger {
	return &bandwidthLedger{limit: limit, used: map[string]int64{}}
}

func utcDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// rollover clears the counters when the UTC day has changed. Caller holds mu.
func (b *bandwidthLedger) rollover(now time.Time) {
	day := utcDay(now)
	if day != b.day {
		b.day = day
		b.used = map[string]int64{}
	}
}

// reserve charges n bytes against the peer's daily budget if they fit,
// reporting whether the charge was taken. Check and charge are one step so
// concurrent downloads cannot each pass the check against the same
// headroom. A non-positive limit disables the quota.
func (b *bandwidthLedger) reserve(pubkey string, n int64, now time.Time) bool {
	if b.limit <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(now)
	if b.used[pubkey]+n > b.limit {
		return false
	}
	b.used[pubkey] += n
	return true
}

// refund returns n undelivered bytes to the peer's budget after an aborted
// transfer. The counter never goes below zero; a refund landing after the
// day rollover is simply dropped.
func (b *bandwidthLedger) refund(pubkey string, n int64, now time.Time) {
	if b.limit <= 0 || n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(now)
	if b.used[pubkey] < n {
		b.used[pubkey] = 0
		return
	}
	b.used[pubkey] -= n
}

// usedToday returns the peer's counted bytes for the current UTC day.
func (b *bandwidthLedger) usedToday(pubkey string, now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(now)
	return b.used[pubkey]
}
