package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v3"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

func GetAccountCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "Keystore account commands",
		Commands: []*cli.Command{
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "List the accounts the keystore can sign for, with balances",
				Action:  AccountsShow,
			},
		},
	}
}

func AccountsShow(ctx context.Context, command *cli.Command) error {
	accounts := App.signer.Accounts()
	if len(accounts) == 0 {
		fmt.Println("No keypairs loaded. Set TIDE_KEYPAIR-prefixed environment variables to load them.")
		return nil
	}

	var maintainer solana.PublicKey
	if App.tideClient != nil {
		maintainer = App.tideClient.Maintainer
	}

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Account\tBalance\t")
	for _, account := range accounts {
		balance, err := sol.GetAccountBalance(ctx, App.rpcClient, account)
		if err != nil {
			return fmt.Errorf("failed to fetch balance of %s: %w", account, err)
		}
		var tag string
		if !maintainer.IsZero() && account.Equals(maintainer) {
			tag = " (maintainer)"
		}
		fmt.Fprintf(tw, "%s%s\t%s SOL\t\n", account, tag, sol.FormattedSolAmount(balance))
	}
	tw.Flush()
	fmt.Print(out.String())

	if !maintainer.IsZero() && !App.signer.HasAccount(maintainer) {
		fmt.Printf("\nWarning: no key loaded for the configured maintainer %s, maintenance would run read-only\n", maintainer)
	}
	return nil
}
