// Command logserver runs the peer-to-peer log transfer service.
//
// Authorized peers upload sealed malicious log files and download each
// other's over signature-authenticated HTTP. Successful uploads are
// reported to an external ledger when one is configured.
//
// # Endpoints
//
// Authenticated (peer-pubkey/timestamp/signature headers):
//   - POST /logs?filename=... - Upload a log file
//   - GET /logs/{log_id} - Download a log file
//
// Public:
//   - GET /logs/{log_id}/metadata - Log metadata
//   - GET /recent_logs?minutes=N - Recently uploaded logs
//   - GET /health, /stats, /livez, /readyz
//
// # Usage
//
//	go run ./cmd/logserver --config=logserver.yaml
//	go run ./cmd/logserver --addr=:8080 --peers-file=/data/authorized_peers.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/api/httpserver"
	"github.com/flyingMooncake/SentinelKarma-sub000/cmd/common"
	"github.com/flyingMooncake/SentinelKarma-sub000/ledger"
	"github.com/flyingMooncake/SentinelKarma-sub000/transfer"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address")
		peersFile  = flag.String("peers-file", "", "Authorized peers roster file")
		storageDir = flag.String("storage-dir", "", "Directory for stored log bytes")
		ledgerURL  = flag.String("ledger-url", "", "Ledger endpoint for upload reports")
		pprof      = flag.Bool("pprof", false, "Enable pprof debugging API")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *peersFile != "" {
		cfg.LogServer.PeersFile = *peersFile
	}
	if *storageDir != "" {
		cfg.LogServer.StorageDir = *storageDir
	}
	if *ledgerURL != "" {
		cfg.LogServer.LedgerURL = *ledgerURL
	}
	if *pprof {
		cfg.EnablePprof = true
	}

	if err := run(cfg); err != nil {
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

	index, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	var led ledger.Ledger = ledger.Noop{}
	if cfg.LogServer.LedgerURL != "" {
		led = ledger.NewHTTPLedger(cfg.LogServer.LedgerURL, 10*time.Second)
		log.Info("ledger notifications enabled", "endpoint", cfg.LogServer.LedgerURL)
	}

	svc, err := transfer.New(cfg.TransferConfig(log), index, led)
	if err != nil {
		return err
	}

	// The node's own keypair is its peer identity. Authorizing it lets
	// local tooling sign uploads of this node's sealed files without a
	// roster round-trip.
	signingKey, err := common.LoadOrGenerateSigningKey(cfg.LogServer.SigningKeyHex)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	nodePubkey, err := signingKey.PublicKey()
	if err != nil {
		return err
	}
	svc.Peers().Add(nodePubkey)
	log.Info("node identity", "pubkey", nodePubkey.String())

	srv, err := httpserver.New(&httpserver.Config{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             60 * time.Second,
	}, transfer.NewHandler(svc))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.Run(ctx)
	srv.RunInBackground()
	log.Info("log server started",
		"listen_addr", cfg.ListenAddr,
		"storage_dir", cfg.LogServer.StorageDir,
		"peers", svc.Peers().Len())

	<-ctx.Done()
	log.Info("Shutting down log server...")
	srv.Shutdown()
	return nil
}

func openIndex(cfg *common.Config) (transfer.LogIndex, error) {
	if dsn := cfg.LogServer.PostgresDSN; dsn != "" {
		return transfer.NewPostgresIndex(dsn)
	}
	return transfer.NewSQLiteIndex(cfg.LogServer.SQLitePath)
}
