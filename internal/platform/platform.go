// Package platform assembles a ready-to-use pharmanet service from
// configuration: ledger backend, company index, event sink, observability
// and report storage.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pharmanet/internal/blob"
	"pharmanet/internal/config"
	"pharmanet/internal/core"
	"pharmanet/internal/infra/events/mqttbus"
	"pharmanet/internal/infra/events/redisstream"
	"pharmanet/internal/infra/redisindex"
	"pharmanet/internal/logging"
	"pharmanet/internal/report"
)

// Platform owns every resource opened for a service.
type Platform struct {
	Config  *config.Config
	Logger  *zap.Logger
	Ledger  core.ClosableLedger
	Service *core.Service
	Blobs   blob.Store
	Reports *report.Exporter
	// Registry holds the service collectors when the prometheus metrics
	// driver is selected.
	Registry *prometheus.Registry

	closers []func() error
}

// Option adjusts assembly, mainly for tests.
type Option func(*assembly)

type assembly struct {
	logger      *zap.Logger
	redisClient *redis.Client
	extra       []core.ServiceOption
}

// WithLogger uses logger instead of building one from the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *assembly) { a.logger = logger }
}

// WithRedisClient uses client for the redis index and event stream.
func WithRedisClient(client *redis.Client) Option {
	return func(a *assembly) { a.redisClient = client }
}

// WithServiceOptions appends service options after the configured ones.
func WithServiceOptions(opts ...core.ServiceOption) Option {
	return func(a *assembly) { a.extra = append(a.extra, opts...) }
}

// Open builds the platform. Resources opened before a failure are released.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Platform, err error) {
	if cfg == nil {
		return nil, errors.New("platform: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var a assembly
	for _, opt := range opts {
		opt(&a)
	}

	p := &Platform{Config: cfg}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	p.Logger = a.logger
	if p.Logger == nil {
		if p.Logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName, cfg.Log.Output); err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		p.closers = append(p.closers, func() error { _ = p.Logger.Sync(); return nil })
	}
	svcLogger := logging.NewServiceLogger(p.Logger)

	p.Ledger, err = core.OpenLedger(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Ledger.Driver),
		SQLitePath:  cfg.Ledger.SQLitePath,
		PostgresDSN: cfg.Ledger.PostgresDSN,
		LevelDBPath: cfg.Ledger.LevelDBPath,
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.Ledger.Close)

	svcOpts := []core.ServiceOption{
		core.WithLogger(svcLogger),
		core.WithAccessPolicy(core.NewAccessPolicy(cfg.Access.ManufacturerOrg, cfg.Access.SupplyChainOrg)),
	}

	var rdb *redis.Client
	if cfg.Index.Driver == "redis" || cfg.Events.Driver == "redis" {
		if rdb, err = p.redis(ctx, cfg, a.redisClient); err != nil {
			return nil, err
		}
	}
	if cfg.Index.Driver == "redis" {
		svcOpts = append(svcOpts, core.WithCompanyIndex(redisindex.NewWithClient(rdb, cfg.Redis.Prefix)))
	}

	switch cfg.Events.Driver {
	case "redis":
		svcOpts = append(svcOpts, core.WithEventPublisher(redisstream.New(rdb, cfg.Events.Stream)))
	case "mqtt":
		pub, err := mqttbus.Dial(mqttbus.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, pub.Close)
		svcOpts = append(svcOpts, core.WithEventPublisher(pub))
	}

	switch cfg.Metrics.Driver {
	case "expvar":
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	case "prometheus":
		p.Registry = prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(p.Registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
	}

	if cfg.TraceJSON != "" {
		f, err := os.OpenFile(cfg.TraceJSON, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		p.closers = append(p.closers, f.Close)
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	p.Blobs, err = blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          cfg.Blob.S3.Bucket,
			Region:          cfg.Blob.S3.Region,
			Endpoint:        cfg.Blob.S3.Endpoint,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			PathStyle:       cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	p.Service = core.NewService(p.Ledger, append(svcOpts, a.extra...)...)
	p.Reports = report.NewExporter(p.Service, p.Blobs)
	p.Logger.Info("platform ready",
		zap.String("ledger", cfg.Ledger.Driver),
		zap.String("index", cfg.Index.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("metrics", cfg.Metrics.Driver))
	return p, nil
}

func (p *Platform) redis(ctx context.Context, cfg *config.Config, client *redis.Client) (*redis.Client, error) {
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	p.closers = append(p.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// Close releases resources in reverse order of acquisition.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
