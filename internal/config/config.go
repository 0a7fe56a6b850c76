package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds itemstored's runtime settings:
// the client socket, the resource-gateway bind address, scheduler and
// notification timing, and data/cert directories.
type Config struct {
	DataDir string

	SocketPath      string
	IdleTimeout     time.Duration
	DeadlockRetries int

	GatewayBindAddr string
	GatewayCertDir  string

	MetricsAddr string

	SchedulerMinInterval time.Duration
	RetrievalTimeout     time.Duration

	// VerifyCacheOnRetrieval makes a fetch re-request even cached
	// payload bytes from the owning resource, which may replace them
	// with a newer part version.
	VerifyCacheOnRetrieval bool

	// ExternalPayloadThreshold is the part size (bytes) at or above which
	// the store moves an inline payload part's bytes into a file under
	// the data directory's payloads folder instead of the item record.
	ExternalPayloadThreshold int64

	LogLevel string
	LogJSON  bool
}

// Defaults returns the configuration used when neither a config file,
// environment variable, nor flag overrides a setting.
func Defaults() Config {
	return Config{
		DataDir:                  "/var/lib/itemstored",
		SocketPath:               "/var/run/itemstored/itemstored.sock",
		IdleTimeout:              3 * time.Minute,
		DeadlockRetries:          3,
		GatewayBindAddr:          ":9771",
		GatewayCertDir:           "/var/lib/itemstored/certs",
		MetricsAddr:              ":9772",
		SchedulerMinInterval:     5 * time.Minute,
		RetrievalTimeout:         5 * time.Minute,
		VerifyCacheOnRetrieval:   false,
		ExternalPayloadThreshold: 4096,
		LogLevel:                 "info",
		LogJSON:                  false,
	}
}

// Load reads the layered configuration through v (already primed with
// flag bindings by the caller's cobra command) on top of Defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	v.SetEnvPrefix("itemstored")
	v.AutomaticEnv()

	if err := bindDefaults(v, cfg); err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg.DataDir = v.GetString("data_dir")
	cfg.SocketPath = v.GetString("socket_path")
	cfg.IdleTimeout = v.GetDuration("idle_timeout")
	cfg.DeadlockRetries = v.GetInt("deadlock_retries")
	cfg.GatewayBindAddr = v.GetString("gateway.bind_addr")
	cfg.GatewayCertDir = v.GetString("gateway.cert_dir")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.SchedulerMinInterval = v.GetDuration("scheduler.min_interval")
	cfg.RetrievalTimeout = v.GetDuration("retrieval.timeout")
	cfg.VerifyCacheOnRetrieval = v.GetBool("retrieval.verify_cache")
	cfg.ExternalPayloadThreshold = v.GetInt64("external_payload_threshold")
	cfg.LogLevel = v.GetString("log.level")
	cfg.LogJSON = v.GetBool("log.json")

	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) error {
	defaults := map[string]interface{}{
		"data_dir":                   cfg.DataDir,
		"socket_path":                cfg.SocketPath,
		"idle_timeout":               cfg.IdleTimeout,
		"deadlock_retries":           cfg.DeadlockRetries,
		"gateway.bind_addr":          cfg.GatewayBindAddr,
		"gateway.cert_dir":           cfg.GatewayCertDir,
		"metrics_addr":               cfg.MetricsAddr,
		"scheduler.min_interval":     cfg.SchedulerMinInterval,
		"retrieval.timeout":          cfg.RetrievalTimeout,
		"retrieval.verify_cache":     cfg.VerifyCacheOnRetrieval,
		"external_payload_threshold": cfg.ExternalPayloadThreshold,
		"log.level":                  cfg.LogLevel,
		"log.json":                   cfg.LogJSON,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return nil
}
