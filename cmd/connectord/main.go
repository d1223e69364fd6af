// Command connectord runs the settlement executor and peer-discovery
// loop as a long-lived daemon, exposing a small JSON admin API and a
// Prometheus /metrics endpoint for connectorctl and operators.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/ilpfi/connectord/accounting"
	"github.com/ilpfi/connectord/chainlink"
	"github.com/ilpfi/connectord/keysign"
	"github.com/ilpfi/connectord/peerdiscovery"
	"github.com/ilpfi/connectord/settlement"
	"github.com/ilpfi/connectord/telemetry"
)

// deriveSigningKey adapts the go-ethereum chain signing key into a
// btcec.PrivateKey so the same key material can seed the file-backed
// keysign.Backend used for off-chain balance proofs.
func deriveSigningKey(ethKey *ecdsa.PrivateKey) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(crypto.FromECDSA(ethKey))
	return priv
}

func main() {
	app := cli.NewApp()
	app.Name = "connectord"
	app.Usage = "ILP settlement and peer-discovery connector daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "node-id", Value: "local-node"},
		cli.StringFlag{Name: "admin-listen", Value: "127.0.0.1:9090"},

		cli.BoolFlag{Name: "settlement-enabled"},
		cli.StringFlag{Name: "chain-rpc-url"},
		cli.StringFlag{Name: "registry-address"},
		cli.StringFlag{Name: "signing-key"},
		cli.StringFlag{Name: "settlement-token"},
		cli.Int64Flag{Name: "initial-deposit-wei", Value: 1_000_000},
		cli.DurationFlag{Name: "settlement-timeout", Value: 24 * time.Hour},
		cli.IntFlag{Name: "retry-attempts", Value: 5},
		cli.DurationFlag{Name: "retry-delay", Value: 2 * time.Second},
		cli.Int64Flag{Name: "min-settlement-wei", Value: 0},
		cli.StringSliceFlag{Name: "peer-address"},
		cli.StringFlag{Name: "postgres-dsn"},

		cli.BoolFlag{Name: "discovery-enabled"},
		cli.StringSliceFlag{Name: "discovery-endpoint"},
		cli.StringFlag{Name: "btp-endpoint"},
		cli.StringFlag{Name: "ilp-address"},
		cli.DurationFlag{Name: "broadcast-interval", Value: 60 * time.Second},
	}
	app.Action = runDaemon

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "connectord: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(ctx *cli.Context) error {
	backend := btclog.NewBackend(os.Stdout)
	log := backend.Logger("CNCT")
	log.SetLevel(btclog.LevelInfo)
	settlement.UseLogger(backend.Logger("SETL"))
	peerdiscovery.UseLogger(backend.Logger("DISC"))

	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}

	ledger, closeLedger, err := buildLedger(cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	reg := prometheus.NewRegistry()

	var exec *settlement.Executor
	if cfg.SettlementEnabled {
		exec, err = buildExecutor(cfg, ledger)
		if err != nil {
			return fmt.Errorf("build settlement executor: %w", err)
		}
		if err := exec.Start(); err != nil {
			return err
		}
		defer exec.Stop()
		if err := exec.Register(reg); err != nil {
			return fmt.Errorf("register settlement metrics: %w", err)
		}
	}

	disco := peerdiscovery.New(peerdiscovery.Config{
		Enabled:            cfg.DiscoveryEnabled,
		DiscoveryEndpoints: cfg.DiscoveryEndpoints,
		NodeID:             cfg.NodeID,
		BTPEndpoint:        cfg.BTPEndpoint,
		ILPAddress:         cfg.ILPAddress,
		Version:            "connectord/1.0",
		BroadcastInterval:  cfg.BroadcastInterval,
	})
	if err := disco.Start(); err != nil {
		return err
	}
	defer disco.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	registerAdminRoutes(mux, exec, disco)

	srv := &http.Server{Addr: cfg.AdminListenAddr, Handler: mux}
	go func() {
		log.Infof("admin API listening on %s", cfg.AdminListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildLedger(cfg daemonConfig) (accounting.Ledger, func(), error) {
	if cfg.PostgresDSN == "" {
		return accounting.NewInMemoryLedger(), func() {}, nil
	}

	pg, err := accounting.OpenPGLedger(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
	}
	return pg, func() { pg.Close() }, nil
}

func buildExecutor(cfg daemonConfig, ledger accounting.Ledger) (*settlement.Executor, error) {
	if cfg.ChainRPCURL == "" || cfg.SigningKeyHex == "" || cfg.RegistryAddress == "" {
		return nil, fmt.Errorf("chain-rpc-url, signing-key, and registry-address are required when settlement is enabled")
	}

	signingKey, err := crypto.HexToECDSA(cfg.SigningKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	adapter, err := chainlink.NewEVMAdapter(
		context.Background(),
		cfg.ChainRPCURL,
		common.HexToAddress(cfg.RegistryAddress),
		signingKey,
		chainlink.DefaultRetryConfig(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial chain RPC: %w", err)
	}

	tokenAddr, err := parseAddress(cfg.SettlementTokenAddress)
	if err != nil {
		return nil, err
	}

	peerAddrs := make(map[string]chainlink.Address, len(cfg.PeerAddresses))
	for peerID, hexAddr := range cfg.PeerAddresses {
		addr, err := parseAddress(hexAddr)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", peerID, err)
		}
		peerAddrs[peerID] = addr
	}

	signer := keysign.NewFileBackend()
	signer.Seed(cfg.NodeID, deriveSigningKey(signingKey))

	return settlement.New(settlement.Config{
		Enabled:                  true,
		SettlementTokenAddress:   tokenAddr,
		DefaultInitialDeposit:    weiToBigInt(cfg.InitialDepositWei),
		DefaultSettlementTimeout: cfg.SettlementTimeout,
		RetryAttempts:            cfg.RetryAttempts,
		RetryDelay:               cfg.RetryDelay,
		MinSettlementAmount:      weiToBigInt(cfg.MinSettlementWei),
		PeerAddressMap:           peerAddrs,
		NodeID:                   cfg.NodeID,
		SigningKeyID:             cfg.NodeID,
		Chain:                    adapter,
		Signer:                   signer,
		Ledger:                   ledger,
		Telemetry:                telemetry.SinkFunc(logTelemetry),
	})
}

func logTelemetry(e telemetry.Event) {
	fmt.Printf("telemetry: kind=%s peer=%s channel=%s\n", e.Kind(), e.PeerID(), e.ChannelID())
}
