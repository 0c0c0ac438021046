// Command pharmanet-chaincode runs the pharmanet contract, either launched
// by the peer or as an external chaincode service when
// CHAINCODE_SERVER_ADDRESS is set.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pharmanet/internal/chaincode"
	"pharmanet/internal/config"
	"pharmanet/internal/core"
	"pharmanet/internal/logging"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "pharmanet-chaincode: %v\n", err)
		exitFunc(1)
	}
}

func run(getenv func(string) string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName, "stderr")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry, registerer := metricsRegistry(cfg)
	cc, err := buildChaincode(cfg, logger, registerer)
	if err != nil {
		return err
	}
	if registry != nil && cfg.Metrics.Addr != "" {
		go serveMetrics(logger, cfg.Metrics.Addr, registry)
	}

	if server := serverFor(cc, getenv); server != nil {
		logger.Info("starting chaincode server", zap.String("address", server.Address), zap.String("ccid", server.CCID))
		return server.Start()
	}
	logger.Info("starting chaincode")
	return cc.Start()
}

// metricsRegistry returns the registry to gather from and register into when
// the prometheus driver is selected. Both are nil otherwise; the registerer is
// a nil interface, never a nil *Registry.
func metricsRegistry(cfg *config.Config) (*prometheus.Registry, prometheus.Registerer) {
	if cfg.Metrics.Driver != "prometheus" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return reg, reg
}

// buildChaincode wires logging, access and metrics into the contract. reg
// may be nil.
func buildChaincode(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*contractapi.ContractChaincode, error) {
	opts := []core.ServiceOption{
		core.WithLogger(logging.NewServiceLogger(logger)),
		core.WithAccessPolicy(core.NewAccessPolicy(cfg.Access.ManufacturerOrg, cfg.Access.SupplyChainOrg)),
	}
	if reg != nil {
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	cc, err := contractapi.NewChaincode(chaincode.NewPharmaContract(opts...))
	if err != nil {
		return nil, fmt.Errorf("create chaincode: %w", err)
	}
	cc.Info.Title = "pharmanet"
	cc.Info.Version = "1.0.0"
	return cc, nil
}

// serverFor returns the external chaincode server described by the
// environment, or nil when the peer launches the chaincode itself.
func serverFor(cc shim.Chaincode, getenv func(string) string) *shim.ChaincodeServer {
	addr := getenv("CHAINCODE_SERVER_ADDRESS")
	if addr == "" {
		return nil
	}
	return &shim.ChaincodeServer{
		CCID:     getenv("CHAINCODE_ID"),
		Address:  addr,
		CC:       cc,
		TLSProps: shim.TLSProperties{Disabled: true},
	}
}

func serveMetrics(logger *zap.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics endpoint stopped", zap.Error(err))
	}
}
