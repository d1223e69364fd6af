package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/ilpfi/connectord/chainlink"
)

// daemonConfig is the typed configuration struct the daemon builds from
// CLI flags, following the teacher's pattern of a single Config struct
// threaded through every subsystem's own Config.
type daemonConfig struct {
	NodeID string

	AdminListenAddr string

	SettlementEnabled      bool
	ChainRPCURL            string
	RegistryAddress        string
	SigningKeyHex          string
	SettlementTokenAddress string
	InitialDepositWei      int64
	SettlementTimeout      time.Duration
	RetryAttempts          int
	RetryDelay             time.Duration
	MinSettlementWei       int64
	PeerAddresses          map[string]string // peerId -> hex address
	PostgresDSN            string

	DiscoveryEnabled    bool
	DiscoveryEndpoints  []string
	BTPEndpoint         string
	ILPAddress          string
	BroadcastInterval   time.Duration
}

func configFromContext(ctx *cli.Context) (daemonConfig, error) {
	peerAddrs := make(map[string]string)
	for _, kv := range ctx.StringSlice("peer-address") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return daemonConfig{}, fmt.Errorf("invalid --peer-address %q, want peerId=0xaddress", kv)
		}
		peerAddrs[parts[0]] = parts[1]
	}

	return daemonConfig{
		NodeID:                 ctx.String("node-id"),
		AdminListenAddr:        ctx.String("admin-listen"),
		SettlementEnabled:      ctx.Bool("settlement-enabled"),
		ChainRPCURL:            ctx.String("chain-rpc-url"),
		RegistryAddress:        ctx.String("registry-address"),
		SigningKeyHex:          ctx.String("signing-key"),
		SettlementTokenAddress: ctx.String("settlement-token"),
		InitialDepositWei:      ctx.Int64("initial-deposit-wei"),
		SettlementTimeout:      ctx.Duration("settlement-timeout"),
		RetryAttempts:          ctx.Int("retry-attempts"),
		RetryDelay:             ctx.Duration("retry-delay"),
		MinSettlementWei:       ctx.Int64("min-settlement-wei"),
		PeerAddresses:          peerAddrs,
		PostgresDSN:            ctx.String("postgres-dsn"),
		DiscoveryEnabled:       ctx.Bool("discovery-enabled"),
		DiscoveryEndpoints:     ctx.StringSlice("discovery-endpoint"),
		BTPEndpoint:            ctx.String("btp-endpoint"),
		ILPAddress:             ctx.String("ilp-address"),
		BroadcastInterval:      ctx.Duration("broadcast-interval"),
	}, nil
}

func parseAddress(hexAddr string) (chainlink.Address, error) {
	var addr chainlink.Address
	hexAddr = strings.TrimPrefix(hexAddr, "0x")
	if len(hexAddr) != len(addr)*2 {
		return addr, fmt.Errorf("address %q must be %d hex bytes", hexAddr, len(addr))
	}
	decoded, err := hex.DecodeString(hexAddr)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", hexAddr, err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func weiToBigInt(wei int64) *big.Int {
	return big.NewInt(wei)
}
