// Command saver runs the classifier-router.
//
// It subscribes to the full sentinel topic tree, classifies every
// Diagnostic against the configured thresholds and appends it to the
// malicious or normal rotation track. Sealed malicious files are the
// evidence artifacts later shared through the log server.
//
// # Usage
//
//	go run ./cmd/saver --config=saver.yaml
//	go run ./cmd/saver --mqtt=tcp://mosquitto:1883 --malicious-dir=/data/malicious_logs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flyingMooncake/SentinelKarma-sub000/broker"
	"github.com/flyingMooncake/SentinelKarma-sub000/cmd/common"
	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
	"github.com/flyingMooncake/SentinelKarma-sub000/router"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		mqttURL      = flag.String("mqtt", "", "MQTT broker URL")
		normalDir    = flag.String("normal-dir", "", "Directory for normal track files")
		maliciousDir = flag.String("malicious-dir", "", "Directory for malicious track files")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *mqttURL != "" {
		cfg.MQTT.URL = *mqttURL
	}
	if *normalDir != "" {
		cfg.Saver.NormalDir = *normalDir
	}
	if *maliciousDir != "" {
		cfg.Saver.MaliciousDir = *maliciousDir
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

	b, err := broker.NewMQTT(cfg.MQTTConfig("sentinel-saver"), log)
	if err != nil {
		return err
	}
	defer b.Close()

	if metricsSrv := metrics.New(cfg.MetricsAddr); metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer metricsSrv.Shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := router.New(cfg.RouterConfig(log))
	log.Info("saver started",
		"normal_dir", cfg.Saver.NormalDir,
		"malicious_dir", cfg.Saver.MaliciousDir,
		"thresholds", cfg.Saver.Thresholds)

	return rt.Run(ctx, b)
}
