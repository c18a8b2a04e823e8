package sol

import (
	"fmt"
	"strings"

	"github.com/soltide/poolmgr/internal/lib/misc"
)

type NetworkConfig struct {
	NodeURL     string
	NodeHeaders map[string]string

	// ProgramID is the deployed SolTide staking program, PoolAddress the
	// pool instance this maintainer serves.
	ProgramID   string
	PoolAddress string
}

func (n NetworkConfig) String() string {
	return fmt.Sprintf("NodeURL: %s, NodeHeaders: (count:%d), ProgramID: %s, PoolAddress: %s", n.NodeURL, len(n.NodeHeaders), n.ProgramID, n.PoolAddress)
}

func GetNetworkConfig(network string) NetworkConfig {
	cfg := getDefaults(network)

	if nodeURL := misc.GetSecret("TIDE_RPC_URL"); nodeURL != "" {
		cfg.NodeURL = nodeURL
	}
	if programID := misc.GetSecret("TIDE_PROGRAM_ID"); programID != "" {
		cfg.ProgramID = programID
	}
	if poolAddress := misc.GetSecret("TIDE_POOL_ADDRESS"); poolAddress != "" {
		cfg.PoolAddress = poolAddress
	}

	// parse TIDE_RPC_HEADERS from key:value,[key:value...] pairs, for RPC
	// providers that authenticate via header
	nodeHeaders := misc.GetSecret("TIDE_RPC_HEADERS")
	cfg.NodeHeaders = map[string]string{}
	for _, header := range strings.Split(nodeHeaders, ",") {
		parts := strings.SplitN(header, ":", 2) // Just split on first : - they can have :'s in value.
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			cfg.NodeHeaders[key] = value
		}
	}

	return cfg
}

func getDefaults(network string) NetworkConfig {
	cfg := NetworkConfig{}
	switch network {
	case "mainnet-beta":
		cfg.NodeURL = "https://api.mainnet-beta.solana.com"
		cfg.ProgramID = "EWyUxH97SVuLTNJLE5n6K9VvcDkwLBRCWz6uDo8vDpvg"
		cfg.PoolAddress = "CBBP6Kby62nYZ52e2twv7fVWrooVSR4e8MYE6vncTAeM"
	case "testnet":
		cfg.NodeURL = "https://api.testnet.solana.com"
		cfg.ProgramID = "DLKijZqZvrkXQtJU4fJruS5sbqF8LbaTPqavTcLWEaeF"
		cfg.PoolAddress = "D7WxcfhBHTaAcbYYjFJmFYSX6evdFqx4DhAEubogAoe8"
	case "devnet":
		cfg.NodeURL = "https://api.devnet.solana.com"
		cfg.ProgramID = "DGibPcj51guKKskgnrhSveGmpR381cu42aExjc7A2r8k"
		cfg.PoolAddress = "6GGpwJiMbzXXRqZ6tjk7tJwnsa13Z4trTiCktECfnrep"
	case "localnet":
		// program and pool must come from .env.localnet after deploy
		cfg.NodeURL = "http://127.0.0.1:8899"
	}
	return cfg
}
