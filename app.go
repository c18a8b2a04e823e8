package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/soltide/poolmgr/internal/lib/misc"
	"github.com/soltide/poolmgr/internal/lib/sol"
	"github.com/soltide/poolmgr/internal/lib/tide"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *PoolApp {
	log.SetFlags(0)
	var logger *slog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		// Output is a tty, so we're a CLI invocation rather than a daemon
		logger = slog.New(misc.NewMinimalHandler(os.Stdout,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	} else {
		// Not on a console - log json, renaming keys to what log
		// aggregators expect
		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.MessageKey {
					a.Key = "message"
				} else if a.Key == slog.LevelKey && len(groups) == 0 {
					a.Key = "severity"
				}
				return a
			},
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	// signer will be set in the initClients method.
	appConfig := &PoolApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "poolmgr",
		Usage:   "Maintenance daemon and management CLI for SolTide staking pools",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// This is further bootstrap of the 'app' but within context of 'cli' helper as it will
			// have access to flags and options (network to use for eg) already set.
			return appConfig.initClients(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("TIDE_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Solana network to use",
				Value:   "mainnet-beta",
				Aliases: []string{"n"},
				Sources: cli.EnvVars("TIDE_NETWORK"),
			},
			&cli.StringFlag{
				Name:     "program",
				Usage:    "Address of the deployed SolTide staking program. Defaults to the known address for the network",
				Sources:  cli.EnvVars("TIDE_PROGRAM_ID"),
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "pool",
				Usage:    "Address of the pool instance this maintainer serves. Defaults to the known address for the network",
				Sources:  cli.EnvVars("TIDE_POOL_ADDRESS"),
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "maintainer",
				Usage:    "Account maintenance transactions are signed with. Can be unset to run read-only",
				Sources:  cli.EnvVars("TIDE_MAINTAINER"),
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:    "stake-time",
				Usage:   "When stake movement is allowed: 'anytime' or 'only-near-epoch-end'",
				Value:   tide.StakeTimeAnytime.String(),
				Sources: cli.EnvVars("TIDE_STAKE_TIME"),
			},
			&cli.UintFlag{
				Name:    "end-of-epoch-threshold",
				Usage:   "Percentage of the epoch after which it counts as 'near the end' for stake movement",
				Value:   tide.DefaultEndOfEpochThreshold,
				Sources: cli.EnvVars("TIDE_END_OF_EPOCH_THRESHOLD"),
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetPoolCmdOpts(),
			GetAccountCmdOpts(),
			GetInitCmdOpts(),
		},
	}
	return appConfig
}

type PoolApp struct {
	cliCmd     *cli.Command
	logger     *slog.Logger
	signer     sol.MultipleKeySigner
	rpcClient  *rpc.Client
	tideClient *tide.Pool
}

// initClients initializes the RPC client (to the correct network - which it
// also validates), the local keystore, and the tide pool client commands
// operate through.
func (ac *PoolApp) initClients(ctx context.Context, cmd *cli.Command) error {
	network := cmd.String("network")

	if envfile := cmd.String("envfile"); envfile != "" {
		err := loadNamedEnvFile(ctx, envfile)
		if err != nil {
			return err
		}
	}
	// quick validity check on possible network names...
	switch network {
	case "mainnet-beta", "testnet", "devnet", "localnet":
	default:
		return fmt.Errorf("unknown network:%s", network)
	}

	// Now load .env.{network} overrides -ie: .env.localnet written by the
	// init wizard or by bootstrap testing scripts
	misc.LoadEnvForNetwork(ac.logger, network)

	// The init wizard exists to create that configuration in the first
	// place, so it runs without touching the network.
	if cmd.Args().First() == "init" {
		return nil
	}

	cfg := sol.GetNetworkConfig(network)
	rpcClient, err := sol.GetRPCClient(ac.logger, cfg)
	if err != nil {
		return err
	}
	ac.rpcClient = rpcClient

	// This will load and initialize keypairs from the environment - and handles all 'local' signing for the app
	ac.signer = sol.NewLocalKeyStore(ac.logger)

	// allow secondary override of the addresses via the network specific .env file we just loaded which we
	// couldn't have known until we'd processed the 'network' override - but only if not already set via CLI, etc.
	programID := cmd.String("program")
	if programID == "" {
		programID = cfg.ProgramID
	}
	poolAddress := cmd.String("pool")
	if poolAddress == "" {
		poolAddress = cfg.PoolAddress
	}
	if programID == "" || poolAddress == "" {
		// Commands guarded by checkConfigured will refuse to run without
		// the pool client. account and init still work.
		return nil
	}

	maintainer := cmd.String("maintainer")
	if maintainer == "" {
		maintainer = misc.GetSecret("TIDE_MAINTAINER")
	}

	threshold := cmd.Uint("end-of-epoch-threshold")
	if threshold > 100 {
		return fmt.Errorf("end-of-epoch-threshold is a percentage, got:%d", threshold)
	}

	tideClient, err := tide.New(ac.logger, ac.rpcClient, ac.signer,
		programID, poolAddress, maintainer,
		tide.ParseStakeTime(cmd.String("stake-time")), uint8(threshold))
	if err != nil {
		return err
	}
	ac.tideClient = tideClient
	return nil
}

func checkConfigured(ctx context.Context, command *cli.Command) error {
	if App.tideClient == nil || !App.tideClient.IsConfigured() {
		return errors.New("pool not configured. Set TIDE_PROGRAM_ID and TIDE_POOL_ADDRESS (or run 'poolmgr init')")
	}
	return nil
}

func loadNamedEnvFile(ctx context.Context, envFile string) error {
	misc.Infof(App.logger, "loading env file:%s", envFile)
	return godotenv.Load(envFile)
}
