// Package common provides shared utilities for the pipeline CLI commands.
//
// The standalone binaries (agent, saver, logserver) all load the same YAML
// configuration shape, apply environment fallbacks and flag overrides, set
// up structured logging and load or generate their signing keys through
// this package.
package common

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flyingMooncake/SentinelKarma-sub000/broker"
	"github.com/flyingMooncake/SentinelKarma-sub000/crypto"
	"github.com/flyingMooncake/SentinelKarma-sub000/router"
	"github.com/flyingMooncake/SentinelKarma-sub000/transfer"
)

// Config is the shared YAML configuration for all binaries. Durations are
// plain scalars in the unit their key names (ms, secs, min) so configs stay
// copy-pasteable between deployments.
type Config struct {
	LogJSON  bool `yaml:"log_json"`
	LogDebug bool `yaml:"log_debug"`

	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	MQTT MQTTSettings `yaml:"mqtt"`

	Agent     AgentSettings     `yaml:"agent"`
	Saver     SaverSettings     `yaml:"saver"`
	LogServer LogServerSettings `yaml:"log_server"`
}

// MQTTSettings configures the broker connection.
type MQTTSettings struct {
	URL                string `yaml:"url"`
	ClientID           string `yaml:"client_id"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs"`
}

// AgentSettings configures the telemetry agent.
type AgentSettings struct {
	LogPath       string `yaml:"log_path"`
	Region        string `yaml:"region"`
	ASN           int    `yaml:"asn"`
	Salt          string `yaml:"salt"`
	WindowMS      int    `yaml:"window_ms"`
	HeartbeatSecs int    `yaml:"heartbeat_secs"`
}

// SaverSettings configures the classifier-router.
type SaverSettings struct {
	Thresholds      router.Thresholds `yaml:"thresholds"`
	NormalDir       string            `yaml:"normal_dir"`
	MaliciousDir    string            `yaml:"malicious_dir"`
	NorWindowMin    int               `yaml:"nor_window_min"`
	MalWindowMin    int               `yaml:"mal_window_min"`
	NormalTTLMin    int               `yaml:"normal_ttl_min"`
	MaliciousTTLMin int               `yaml:"malicious_ttl_min"`
}

// LogServerSettings configures the peer transfer service.
type LogServerSettings struct {
	StorageDir            string `yaml:"storage_dir"`
	PeersFile             string `yaml:"peers_file"`
	PublicURL             string `yaml:"public_url"`
	MaxLogSize            int64  `yaml:"max_log_size"`
	MaxStorage            int64  `yaml:"max_storage"`
	DailyBandwidth        int64  `yaml:"daily_bandwidth"`
	ReplayWindowSecs      int    `yaml:"replay_window_secs"`
	DisableSignatureCheck bool   `yaml:"disable_signature_check"`

	// SQLitePath is the default index; PostgresDSN, when set, wins.
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	LedgerURL     string `yaml:"ledger_url"`
	SigningKeyHex string `yaml:"signing_key_hex"`
}

// DefaultConfig returns the deployed defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		MQTT: MQTTSettings{
			URL:                "tcp://localhost:1883",
			ConnectTimeoutSecs: 10,
		},
		Agent: AgentSettings{
			LogPath:       "/var/log/rpc/requests.jsonl",
			Region:        "eu-west",
			ASN:           0,
			WindowMS:      250,
			HeartbeatSecs: 5,
		},
		Saver: SaverSettings{
			Thresholds:      router.DefaultThresholds(),
			NormalDir:       "/data/logs_normal",
			MaliciousDir:    "/data/malicious_logs",
			NorWindowMin:    30,
			MalWindowMin:    3,
			NormalTTLMin:    120,
			MaliciousTTLMin: 0,
		},
		LogServer: LogServerSettings{
			StorageDir:       "/data/peer_logs",
			PeersFile:        "/data/authorized_peers.txt",
			PublicURL:        "http://localhost:8080",
			MaxLogSize:       10 << 20,
			MaxStorage:       1 << 30,
			DailyBandwidth:   100 << 20,
			ReplayWindowSecs: 300,
			SQLitePath:       "/data/log_index.db",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays the environment variables the container deployments
// set. Environment wins over file values so one image can run in several
// roles.
func (c *Config) ApplyEnv() {
	envStr("MQTT_URL", &c.MQTT.URL)
	envStr("REGION", &c.Agent.Region)
	envInt("ASN", &c.Agent.ASN)
	envStr("FP_SALT", &c.Agent.Salt)
	envInt("WINDOW_MS", &c.Agent.WindowMS)
	envInt("MAL_WINDOW_MIN", &c.Saver.MalWindowMin)
	envInt("NOR_WINDOW_MIN", &c.Saver.NorWindowMin)
	envFloat("ERR_THR", &c.Saver.Thresholds.ErrRate)
	envFloat("P95_THR", &c.Saver.Thresholds.P95)
	envFloat("ZLAT_THR", &c.Saver.Thresholds.ZLat)
	envFloat("ZERR_THR", &c.Saver.Thresholds.ZErr)
	envInt64("MAX_LOG_SIZE", &c.LogServer.MaxLogSize)
	envInt64("MAX_STORAGE", &c.LogServer.MaxStorage)
	envInt("REPLAY_WINDOW_SECS", &c.LogServer.ReplayWindowSecs)
	envBool("DISABLE_SIGNATURE_CHECK", &c.LogServer.DisableSignatureCheck)
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// SetupLogger builds the process logger and installs it as the slog
// default.
func SetupLogger(jsonOut, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if jsonOut {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		if len(keyBytes) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("signing key must be %d bytes, got %d",
				ed25519.PrivateKeySize, len(keyBytes))
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// MQTTConfig assembles the broker config, defaulting the client id.
func (c *Config) MQTTConfig(defaultClientID string) broker.MQTTConfig {
	clientID := c.MQTT.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}
	return broker.MQTTConfig{
		URL:            c.MQTT.URL,
		ClientID:       clientID,
		ConnectTimeout: time.Duration(c.MQTT.ConnectTimeoutSecs) * time.Second,
	}
}

// RouterConfig assembles the classifier-router config.
func (c *Config) RouterConfig(log *slog.Logger) *router.Config {
	return &router.Config{
		Thresholds:      c.Saver.Thresholds,
		NormalDir:       c.Saver.NormalDir,
		MaliciousDir:    c.Saver.MaliciousDir,
		NormalWindow:    time.Duration(c.Saver.NorWindowMin) * time.Minute,
		MaliciousWindow: time.Duration(c.Saver.MalWindowMin) * time.Minute,
		NormalTTL:       time.Duration(c.Saver.NormalTTLMin) * time.Minute,
		MaliciousTTL:    time.Duration(c.Saver.MaliciousTTLMin) * time.Minute,
		Topic:           broker.TopicAll,
		Log:             log,
	}
}

// TransferConfig assembles the transfer service config.
func (c *Config) TransferConfig(log *slog.Logger) *transfer.Config {
	return &transfer.Config{
		StorageDir:            c.LogServer.StorageDir,
		PeersFile:             c.LogServer.PeersFile,
		PublicURL:             c.LogServer.PublicURL,
		MaxLogSize:            c.LogServer.MaxLogSize,
		MaxStorage:            c.LogServer.MaxStorage,
		DailyBandwidth:        c.LogServer.DailyBandwidth,
		ReplayWindow:          time.Duration(c.LogServer.ReplayWindowSecs) * time.Second,
		DisableSignatureCheck: c.LogServer.DisableSignatureCheck,
		Log:                   log,
	}
}
