// Package config loads pharmanet settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultPrefix namespaces every environment key, e.g. PHARMANET_LEDGER_DRIVER.
const DefaultPrefix = "PHARMANET"

// Config is the full runtime configuration.
type Config struct {
	ServiceName string

	Log struct {
		Level  string // debug, info, warn, error
		Format string // json or console
		Output string // zap output path
	}

	Ledger struct {
		Driver      string // memory, sqlite, postgres, leveldb
		SQLitePath  string
		PostgresDSN string
		LevelDBPath string
	}

	Index struct {
		Driver string // scan or redis
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	Events struct {
		Driver string // none, redis, mqtt
		Stream string
	}

	MQTT struct {
		Broker   string
		ClientID string
		Username string
		Password string
		Topic    string
	}

	Blob struct {
		Driver string // fs, memory, s3
		FSRoot string
		S3     struct {
			Bucket          string
			Region          string
			Endpoint        string
			AccessKeyID     string
			SecretAccessKey string
			PathStyle       bool
		}
	}

	Metrics struct {
		Driver string // none, expvar, prometheus
		Addr   string // listen address of the chaincode /metrics endpoint
	}

	// TraceJSON is a file that receives one JSON line per finished span.
	TraceJSON string

	Access struct {
		ManufacturerOrg string
		SupplyChainOrg  string
	}
}

// Load reads the configuration under DefaultPrefix.
func Load() (*Config, error) {
	return LoadFromEnv(DefaultPrefix)
}

// LoadFromEnv reads keys of the form <prefix>_<NAME>, applies defaults and
// validates the result.
func LoadFromEnv(prefix string) (*Config, error) {
	env := func(name, def string) string {
		return getEnv(prefix+"_"+name, def)
	}
	cfg := &Config{}
	cfg.ServiceName = env("SERVICE_NAME", "pharmanet")

	cfg.Log.Level = env("LOG_LEVEL", "info")
	cfg.Log.Format = env("LOG_FORMAT", "json")
	cfg.Log.Output = env("LOG_OUTPUT", "stdout")

	cfg.Ledger.Driver = env("LEDGER_DRIVER", "sqlite")
	cfg.Ledger.SQLitePath = env("SQLITE_PATH", "pharmanet.db")
	cfg.Ledger.PostgresDSN = env("POSTGRES_DSN", "")
	cfg.Ledger.LevelDBPath = env("LEVELDB_PATH", "pharmanet-ledger")

	cfg.Index.Driver = env("INDEX_DRIVER", "scan")

	cfg.Redis.Addr = env("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = env("REDIS_PASSWORD", "")
	cfg.Redis.Prefix = env("REDIS_PREFIX", "pharmanet:idx")
	db, err := strconv.Atoi(env("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("%s_REDIS_DB: %w", prefix, err)
	}
	cfg.Redis.DB = db

	cfg.Events.Driver = env("EVENTS_DRIVER", "none")
	cfg.Events.Stream = env("EVENTS_STREAM", "pharmanet:events")

	cfg.MQTT.Broker = env("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = env("MQTT_CLIENT_ID", "pharmanet")
	cfg.MQTT.Username = env("MQTT_USERNAME", "")
	cfg.MQTT.Password = env("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = env("MQTT_TOPIC", "pharmanet/events")

	cfg.Blob.Driver = env("BLOB_DRIVER", "fs")
	cfg.Blob.FSRoot = env("BLOB_FS_ROOT", "./blobdata")
	cfg.Blob.S3.Bucket = env("BLOB_S3_BUCKET", "")
	cfg.Blob.S3.Region = env("BLOB_S3_REGION", "us-east-1")
	cfg.Blob.S3.Endpoint = env("BLOB_S3_ENDPOINT", "")
	cfg.Blob.S3.AccessKeyID = env("BLOB_S3_ACCESS_KEY_ID", "")
	cfg.Blob.S3.SecretAccessKey = env("BLOB_S3_SECRET_ACCESS_KEY", "")
	cfg.Blob.S3.PathStyle = env("BLOB_S3_PATH_STYLE", "false") == "true"

	cfg.Metrics.Driver = env("METRICS_DRIVER", "none")
	cfg.Metrics.Addr = env("METRICS_ADDR", "")
	cfg.TraceJSON = env("TRACE_JSON", "")

	cfg.Access.ManufacturerOrg = env("ACCESS_MANUFACTURER_ORG", "Org2MSP")
	cfg.Access.SupplyChainOrg = env("ACCESS_SUPPLY_CHAIN_ORG", "Org1MSP")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and missing driver settings.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}
	check("log format", c.Log.Format, "json", "console")
	check("ledger driver", c.Ledger.Driver, "memory", "sqlite", "postgres", "leveldb")
	check("index driver", c.Index.Driver, "scan", "redis")
	check("events driver", c.Events.Driver, "none", "redis", "mqtt")
	check("blob driver", c.Blob.Driver, "fs", "memory", "s3")
	check("metrics driver", c.Metrics.Driver, "none", "expvar", "prometheus")

	if c.Ledger.Driver == "postgres" && c.Ledger.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres ledger requires a dsn"))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("s3 blob store requires a bucket"))
	}
	if c.Access.ManufacturerOrg == "" || c.Access.SupplyChainOrg == "" {
		errs = append(errs, errors.New("access organizations must not be empty"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
