package aggregator

import (
	"sync"

	"github.com/flyingMooncake/SentinelKarma-sub000/telemetry"
)

// WindowKey identifies one independent statistical series.
type WindowKey struct {
	Region string
	ASN    int
	Method string
}

// maxReservoir bounds the raw latency samples kept per window between ticks.
// Once full, the oldest samples are overwritten so the reservoir always
// holds the most recent observations.
const maxReservoir = 2000

// windowState accumulates one key's events between ticks. Raw samples are
// cleared at each emission; the EMA baselines persist for the life of the
// key. Mutated only under mu, and only by Ingest and the tick snapshot.
type windowState struct {
	mu      sync.Mutex
	samples []float64
	next    int // ring position once the reservoir is full
	errs    int
	count   int
	sample  string // fingerprint of the most recent client seen

	latEMA *ema
	errEMA *ema
}

func newWindowState(latAlpha, errAlpha float64) *windowState {
	return &windowState{
		samples: make([]float64, 0, 64),
		latEMA:  newEMA(latAlpha),
		errEMA:  newEMA(errAlpha),
	}
}

// add records one event. Hot path: a single short critical section.
func (w *windowState) add(ev telemetry.Event) {
	w.mu.Lock()
	if len(w.samples) < maxReservoir {
		w.samples = append(w.samples, ev.LatencyMS)
	} else {
		w.samples[w.next] = ev.LatencyMS
		w.next = (w.next + 1) % maxReservoir
	}
	w.count++
	if ev.Error {
		w.errs++
	}
	if ev.ClientFingerprint != "" {
		w.sample = ev.ClientFingerprint
	}
	w.mu.Unlock()
}

// windowSnapshot is the copied-out state of one window at a tick boundary.
type windowSnapshot struct {
	samples []float64
	errs    int
	count   int
	sample  string
}

// snapshotAndReset copies out the raw samples and counters and clears them,
// holding the lock only for the copy. Returns ok=false when the window saw
// no events since the last emission, in which case nothing is cleared and
// the baselines are untouched.
func (w *windowState) snapshotAndReset() (windowSnapshot, bool) {
	w.mu.Lock()
	if w.count == 0 {
		w.mu.Unlock()
		return windowSnapshot{}, false
	}
	snap := windowSnapshot{
		samples: append([]float64(nil), w.samples...),
		errs:    w.errs,
		count:   w.count,
		sample:  w.sample,
	}
	w.samples = w.samples[:0]
	w.next = 0
	w.errs = 0
	w.count = 0
	w.mu.Unlock()
	return snap, true
}
