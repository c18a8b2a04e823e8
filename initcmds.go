package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/soltide/poolmgr/internal/lib/misc"
	"github.com/soltide/poolmgr/internal/lib/sol"
	"github.com/soltide/poolmgr/internal/lib/tide"
)

func GetInitCmdOpts() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Interactively write the .env.{network} configuration for this maintainer",
		Action: InitPoolConfig,
	}
}

// InitPoolConfig walks through the handful of settings the maintainer needs
// and writes them to .env.{network}, which initClients loads on every later
// invocation. It runs before any client exists, so it asks rather than
// verifies on-chain.
func InitPoolConfig(ctx context.Context, cmd *cli.Command) error {
	network := cmd.String("network")
	envFile := fmt.Sprintf(".env.%s", network)
	if _, err := os.Stat(envFile); err == nil {
		result, _ := yesNo(fmt.Sprintf("%s already exists, overwrite it", envFile))
		if result != "y" {
			return nil
		}
	}

	defaults := sol.GetNetworkConfig(network)

	nodeURL, err := getText("RPC node URL", defaults.NodeURL)
	if err != nil {
		return err
	}
	programID, err := getAccount("SolTide staking program address", defaults.ProgramID)
	if err != nil {
		return err
	}
	poolAddress, err := getAccount("Pool address to maintain", defaults.PoolAddress)
	if err != nil {
		return err
	}
	maintainer, err := (&promptui.Prompt{
		Label: "Maintainer account to sign with (leave empty to run read-only)",
		Validate: func(s string) error {
			if s == "" {
				return nil
			}
			_, err := solana.PublicKeyFromBase58(s)
			return err
		},
	}).Run()
	if err != nil {
		return err
	}

	stakeTime := tide.StakeTimeAnytime
	if result, _ := yesNo("Defer stake movement to the end of the epoch (recommended for mainnet)"); result == "y" {
		stakeTime = tide.StakeTimeOnlyNearEpochEnd
	}
	threshold, err := getInt("Percentage of the epoch that counts as 'near the end'", tide.DefaultEndOfEpochThreshold, 50, 100)
	if err != nil {
		return err
	}

	out := new(strings.Builder)
	fmt.Fprintf(out, "# poolmgr configuration for %s, written by 'poolmgr init'\n", network)
	fmt.Fprintf(out, "TIDE_RPC_URL=%s\n", nodeURL)
	fmt.Fprintf(out, "TIDE_PROGRAM_ID=%s\n", programID)
	fmt.Fprintf(out, "TIDE_POOL_ADDRESS=%s\n", poolAddress)
	if maintainer != "" {
		fmt.Fprintf(out, "TIDE_MAINTAINER=%s\n", maintainer)
	}
	fmt.Fprintf(out, "TIDE_STAKE_TIME=%s\n", stakeTime)
	fmt.Fprintf(out, "TIDE_END_OF_EPOCH_THRESHOLD=%d\n", threshold)
	fmt.Fprintln(out, "# Signing keys load from TIDE_KEYPAIR_* vars: base58 secret key, base58 32-byte seed, or path to a solana-keygen json file")

	if err := os.WriteFile(envFile, []byte(out.String()), 0600); err != nil {
		return fmt.Errorf("error writing %s: %w", envFile, err)
	}
	misc.Infof(App.logger, "wrote %s", envFile)
	if maintainer != "" {
		fmt.Printf("Add the maintainer's signing key to the environment, ie: TIDE_KEYPAIR_MAINTAINER in %s\n", envFile)
	}
	return nil
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func getText(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		},
	}).Run()
}

func getAccount(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			_, err := solana.PublicKeyFromBase58(s)
			return err
		},
	}).Run()
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
