package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Heartbeat periodically publishes a liveness record for this node so other
// operators can see the sentinel is up even when traffic is quiet.
type Heartbeat struct {
	Pub      Publisher
	Topic    string
	Region   string
	ASN      int
	Interval time.Duration
	Log      *slog.Logger
}

type heartbeatMsg struct {
	Ts     int64  `json:"ts"`
	Region string `json:"region"`
	ASN    int    `json:"asn"`
	Status string `json:"status"`
}

// Run publishes until ctx is cancelled. Publish failures are logged and the
// loop keeps going; the heartbeat is best-effort like everything else on the
// broker.
func (h *Heartbeat) Run(ctx context.Context) error {
	interval := h.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			payload, _ := json.Marshal(heartbeatMsg{
				Ts:     time.Now().Unix(),
				Region: h.Region,
				ASN:    h.ASN,
				Status: "ok",
			})
			if err := h.Pub.Publish(h.Topic, payload); err != nil && h.Log != nil {
				h.Log.Warn("heartbeat publish failed", "err", err)
			}
		}
	}
}
