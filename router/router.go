package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/broker"
	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
	"github.com/flyingMooncake/SentinelKarma-sub000/telemetry"
)

// Config configures the classifier-router and its two rotation tracks.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds"`

	// NormalDir and MaliciousDir hold the rotated files per track.
	NormalDir    string `yaml:"normal_dir"`
	MaliciousDir string `yaml:"malicious_dir"`

	// Rotation periods per track.
	NormalWindow    time.Duration `yaml:"normal_window"`
	MaliciousWindow time.Duration `yaml:"malicious_window"`

	// Retention TTLs for sealed files; zero keeps them forever.
	NormalTTL    time.Duration `yaml:"normal_ttl"`
	MaliciousTTL time.Duration `yaml:"malicious_ttl"`

	// RetentionInterval is how often the sweepers run; zero means one
	// minute.
	RetentionInterval time.Duration `yaml:"retention_interval"`

	// Topic is the broker subscription filter.
	Topic string `yaml:"topic"`

	// Log is the structured logger for router operations.
	Log *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the deployed defaults: 30min normal rotation with a
// 2h TTL, 3min malicious rotation kept forever.
func DefaultConfig() *Config {
	return &Config{
		Thresholds:      DefaultThresholds(),
		NormalDir:       "/data/logs_normal",
		MaliciousDir:    "/data/malicious_logs",
		NormalWindow:    30 * time.Minute,
		MaliciousWindow: 3 * time.Minute,
		NormalTTL:       2 * time.Hour,
		MaliciousTTL:    0,
		Topic:           broker.TopicAll,
	}
}

// Router subscribes to the Diagnostic stream, classifies each message and
// appends it to the matching rotation track.
type Router struct {
	cfg *Config
	log *slog.Logger

	normalCh    chan []byte
	maliciousCh chan []byte
	fatalCh     chan error
}

// New creates a router; Run wires it to a broker.
func New(cfg *Config) *Router {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		cfg:         cfg,
		log:         log,
		normalCh:    make(chan []byte, 1024),
		maliciousCh: make(chan []byte, 1024),
		fatalCh:     make(chan error, 2),
	}
}

// Run subscribes to the configured topic and processes Diagnostics until
// ctx is cancelled or a track hits an unrecoverable file failure. A non-nil
// error other than ctx.Err() means classified data is at risk and the
// process should restart rather than continue.
func (rt *Router) Run(ctx context.Context, b broker.Broker) error {
	normal, err := newTrackWriter(Normal.String(), rt.cfg.NormalDir, rt.cfg.NormalWindow)
	if err != nil {
		return err
	}
	malicious, err := newTrackWriter(Malicious.String(), rt.cfg.MaliciousDir, rt.cfg.MaliciousWindow)
	if err != nil {
		return err
	}

	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweepEvery := rt.cfg.RetentionInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}

	go rt.runTrack(trackCtx, normal, rt.normalCh)
	go rt.runTrack(trackCtx, malicious, rt.maliciousCh)
	go runRetention(trackCtx, rt.cfg.NormalDir, rt.cfg.NormalTTL, sweepEvery, normal.currentPath, rt.log)
	go runRetention(trackCtx, rt.cfg.MaliciousDir, rt.cfg.MaliciousTTL, sweepEvery, malicious.currentPath, rt.log)

	if err := b.Subscribe(rt.cfg.Topic, rt.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", rt.cfg.Topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-rt.fatalCh:
		return err
	}
}

// handle classifies one broker message and hands it to its track. Health
// heartbeats and malformed payloads never reach a file.
func (rt *Router) handle(topic string, payload []byte) {
	if strings.HasPrefix(topic, broker.TopicHealth) {
		return
	}

	d, err := telemetry.DecodeDiagnostic(payload)
	if err != nil {
		metrics.MalformedPayloads.Inc()
		rt.log.Debug("dropping malformed payload", "topic", topic, "err", err)
		return
	}

	outcome := Classify(d, rt.cfg.Thresholds)
	// Operator-raised alerts are evidence regardless of their metrics.
	if strings.HasPrefix(topic, broker.TopicAlerts) {
		outcome = Malicious
	}

	line := append([]byte(nil), payload...)
	if outcome == Malicious {
		rt.maliciousCh <- line
	} else {
		rt.normalCh <- line
	}
	metrics.DiagnosticsRouted.WithLabelValues(outcome.String()).Inc()
}

// runTrack is the single owner of one track's file state.
func (rt *Router) runTrack(ctx context.Context, w *trackWriter, lines <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			if err := w.close(); err != nil {
				rt.log.Error("closing track on shutdown", "track", w.track, "err", err)
			}
			return
		case line := <-lines:
			if err := w.append(line, time.Now()); err != nil {
				rt.log.Error("track writer failed", "track", w.track, "err", err)
				select {
				case rt.fatalCh <- err:
				default:
				}
				return
			}
		}
	}
}
