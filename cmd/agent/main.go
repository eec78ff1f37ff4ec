// Command agent runs the node-side telemetry sentinel.
//
// It tails the local RPC request log, aggregates events into short
// per-(region, asn, method) windows and publishes one Diagnostic per active
// window per tick on the MQTT broker, plus a periodic heartbeat.
//
// # Usage
//
//	go run ./cmd/agent --config=agent.yaml
//	go run ./cmd/agent --log-path=/var/log/rpc/requests.jsonl --mqtt=tcp://mosquitto:1883
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/aggregator"
	"github.com/flyingMooncake/SentinelKarma-sub000/broker"
	"github.com/flyingMooncake/SentinelKarma-sub000/cmd/common"
	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
	"github.com/flyingMooncake/SentinelKarma-sub000/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		logPath    = flag.String("log-path", "", "RPC request log to tail")
		mqttURL    = flag.String("mqtt", "", "MQTT broker URL")
		region     = flag.String("region", "", "Region label for this node")
		asn        = flag.Int("asn", 0, "ASN label for this node")
		windowMS   = flag.Int("window-ms", 0, "Aggregation window in milliseconds")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *logPath != "" {
		cfg.Agent.LogPath = *logPath
	}
	if *mqttURL != "" {
		cfg.MQTT.URL = *mqttURL
	}
	if *region != "" {
		cfg.Agent.Region = *region
	}
	if *asn != 0 {
		cfg.Agent.ASN = *asn
	}
	if *windowMS != 0 {
		cfg.Agent.WindowMS = *windowMS
	}

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	cfg := common.DefaultConfig()
	cfg.ApplyEnv()
	return cfg, nil
}

func run(cfg *common.Config) error {
	log := common.SetupLogger(cfg.LogJSON, cfg.LogDebug)

	b, err := broker.NewMQTT(cfg.MQTTConfig("sentinel-agent"), log)
	if err != nil {
		return err
	}
	defer b.Close()

	aggCfg := aggregator.DefaultConfig()
	aggCfg.WindowMS = cfg.Agent.WindowMS
	aggCfg.DiagTopic = broker.TopicDiag
	aggCfg.Log = log
	agg := aggregator.New(aggCfg, b)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsSrv := metrics.New(cfg.MetricsAddr); metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer metricsSrv.Shutdown(context.Background())
	}

	go agg.Run(ctx)

	hb := &aggregator.Heartbeat{
		Pub:      b,
		Topic:    broker.TopicHealth,
		Region:   cfg.Agent.Region,
		ASN:      cfg.Agent.ASN,
		Interval: time.Duration(cfg.Agent.HeartbeatSecs) * time.Second,
		Log:      log,
	}
	go hb.Run(ctx)

	tailer := telemetry.NewTailer(cfg.Agent.LogPath, log)
	log.Info("agent started",
		"log_path", cfg.Agent.LogPath,
		"region", cfg.Agent.Region,
		"asn", cfg.Agent.ASN,
		"window_ms", cfg.Agent.WindowMS)

	return tailer.Run(ctx, func(raw *telemetry.RawEvent) {
		agg.Ingest(raw.ToEvent(cfg.Agent.Region, cfg.Agent.ASN, cfg.Agent.Salt))
	})
}
