package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// RawEvent is the wire shape of one RPC request record as produced by the
// external log source, one JSON object per line.
type RawEvent struct {
	Time      string  `json:"time"`
	IP        string  `json:"ip"`
	Method    string  `json:"method"`
	LatencyMS float64 `json:"lat_ms"`
	Status    int     `json:"status"`
}

// ParseRawEvent decodes and validates one log line. Lines missing required
// fields or carrying non-numeric latency/status are rejected here, at the
// deserialization boundary, so nothing downstream sees a malformed record.
func ParseRawEvent(line []byte) (*RawEvent, error) {
	var ev RawEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if ev.Method == "" {
		return nil, fmt.Errorf("event missing method")
	}
	if ev.LatencyMS < 0 {
		return nil, fmt.Errorf("negative latency %v", ev.LatencyMS)
	}
	if ev.Status < 100 || ev.Status > 599 {
		return nil, fmt.Errorf("status %d out of range", ev.Status)
	}
	return &ev, nil
}

// Event is one validated telemetry record attributed to this node's
// region and ASN. Immutable; produced externally, consumed once.
type Event struct {
	Ts                time.Time
	Region            string
	ASN               int
	Method            string
	LatencyMS         float64
	Error             bool
	ClientFingerprint string
}

// ToEvent converts a validated raw record into an internal Event.
// Requests with a 5xx status count as errors. The client IP is replaced by
// its salted fingerprint before the record enters the pipeline.
func (r *RawEvent) ToEvent(region string, asn int, salt string) Event {
	ts, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		ts = time.Now().UTC()
	}
	return Event{
		Ts:                ts,
		Region:            region,
		ASN:               asn,
		Method:            r.Method,
		LatencyMS:         r.LatencyMS,
		Error:             r.Status >= 500,
		ClientFingerprint: Fingerprint(r.IP, salt),
	}
}

// Fingerprint derives a short salted hash identifying a client without
// revealing its address: "iphash:" + hex(blake2b-48(ip|salt)).
func Fingerprint(ip, salt string) string {
	h, _ := blake2b.New(6, nil)
	h.Write([]byte(ip))
	h.Write([]byte("|"))
	h.Write([]byte(salt))
	return fmt.Sprintf("iphash:%x", h.Sum(nil))
}
