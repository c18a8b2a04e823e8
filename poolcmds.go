package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/soltide/poolmgr/internal/lib/misc"
	"github.com/soltide/poolmgr/internal/lib/sol"
)

func GetPoolCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Inspect and maintain the staking pool",
		Before:  checkConfigured,
		Commands: []*cli.Command{
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Show a summary of the pool's current state",
				Action:  PoolShow,
			},
			{
				Name:    "validators",
				Aliases: []string{"v"},
				Usage:   "List the pool's validators and their stake",
				Action:  PoolValidators,
			},
			{
				Name:  "maintain",
				Usage: "Perform maintenance now, repeating until no task applies. Ignores the duty rotation",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the confirmation prompt",
						Value:   false,
					},
					&cli.UintFlag{
						Name:  "max-actions",
						Usage: "Stop after this many maintenance actions",
						Value: 10,
					},
				},
				Action: PoolMaintain,
			},
			{
				Name:   "next-duty",
				Usage:  "Show who is on maintenance duty now and when our turn comes",
				Action: PoolNextDuty,
			},
			{
				Name:  "export",
				Usage: "Write the full pool snapshot to a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "File to write the snapshot to",
						Value:   "pool-snapshot.json",
					},
				},
				Action: PoolExport,
			},
		},
	}
}

func PoolShow(ctx context.Context, command *cli.Command) error {
	snapshot, err := App.tideClient.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	var activeCount int
	for i := range snapshot.Validators.Entries {
		if snapshot.Validators.Entries[i].Active {
			activeCount++
		}
	}
	rate := snapshot.Pool.ExchangeRate
	solPerStSol := 1.0
	if rate.StSolSupply > 0 {
		solPerStSol = float64(rate.SolBalance) / float64(rate.StSolSupply)
	}
	pctIntoEpoch := float64(snapshot.SlotsIntoEpoch()) / float64(snapshot.EpochSchedule.SlotsInEpoch(snapshot.Clock.Epoch)) * 100

	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Pool:\t%s\n", snapshot.PoolAddress)
	fmt.Fprintf(tw, "Program:\t%s\n", snapshot.ProgramID)
	fmt.Fprintf(tw, "Manager:\t%s\n", snapshot.Pool.Manager)
	fmt.Fprintf(tw, "Epoch:\t%d (slot %d, %.1f%% in)\n", snapshot.Clock.Epoch, snapshot.Clock.Slot, pctIntoEpoch)
	fmt.Fprintf(tw, "Validators:\t%d (%d active)\n", len(snapshot.Validators.Entries), activeCount)
	fmt.Fprintf(tw, "Maintainers:\t%d\n", len(snapshot.Maintainers.Entries))
	fmt.Fprintf(tw, "Reserve:\t%s SOL (%s SOL spendable)\n",
		sol.FormattedSolAmount(snapshot.ReserveBalance), sol.FormattedSolAmount(snapshot.EffectiveReserve()))
	fmt.Fprintf(tw, "stSOL supply:\t%s stSOL\n", sol.FormattedStSolAmount(sol.StLamports(snapshot.StSolMint.Supply)))
	fmt.Fprintf(tw, "Exchange rate:\t1 stSOL = %.9f SOL (computed in epoch %d)\n", solPerStSol, rate.ComputedInEpoch)
	fmt.Fprintf(tw, "Policy:\t%s\n", snapshot.Pool.Criteria)
	fmt.Fprintf(tw, "Deposited to date:\t%s SOL\n", sol.FormattedSolAmount(snapshot.Pool.Metrics.DepositAmountTotal))
	fmt.Fprintf(tw, "Withdrawn to date:\t%s SOL\n", sol.FormattedSolAmount(snapshot.Pool.Metrics.WithdrawAmountTotal))
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolValidators(ctx context.Context, command *cli.Command) error {
	snapshot, err := App.tideClient.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	var totalStaked, totalUnstaking, totalEffective sol.Lamports
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Vote Account\tName\tActive\tStaked\tUnstaking\tEffective\tCommission\tBlock Prod\tStake Seeds\t")
	for i := range snapshot.Validators.Entries {
		validator := &snapshot.Validators.Entries[i]

		commission := "?"
		if view := snapshot.ValidatorVoteViews[i]; view != nil {
			commission = fmt.Sprintf("%d%%", view.Commission)
		}
		blockProduction := "-"
		if rate := snapshot.BlockProductionRates[i]; rate != nil {
			blockProduction = fmt.Sprintf("%.1f%%", sol.Per64Ratio(*rate)*100)
		}
		active := "no"
		if validator.Active {
			active = "yes"
		}

		totalStaked = totalStaked.Add(validator.StakeAccountsBalance)
		totalUnstaking = totalUnstaking.Add(validator.UnstakeAccountsBalance)
		totalEffective = totalEffective.Add(validator.EffectiveStakeBalance())

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			validator.VoteAccountAddress, snapshot.ValidatorName(i), active,
			sol.FormattedSolAmount(validator.StakeAccountsBalance),
			sol.FormattedSolAmount(validator.UnstakeAccountsBalance),
			sol.FormattedSolAmount(validator.EffectiveStakeBalance()),
			commission, blockProduction, validator.StakeSeeds)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t%s\t%s\t\t\t\t\n",
		sol.FormattedSolAmount(totalStaked), sol.FormattedSolAmount(totalUnstaking), sol.FormattedSolAmount(totalEffective))
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func PoolMaintain(ctx context.Context, command *cli.Command) error {
	if !App.tideClient.CanSign() {
		return fmt.Errorf("maintainer key not loaded, cannot sign maintenance transactions")
	}

	maxActions := command.Uint("max-actions")
	if maxActions == 0 {
		return fmt.Errorf("max-actions must be at least 1")
	}
	if !command.Bool("yes") {
		result, _ := yesNo(fmt.Sprintf("Perform up to %d maintenance action(s) against pool %s", maxActions, App.tideClient.PoolAddress))
		if result != "y" {
			return nil
		}
	}

	var performed uint64
	for {
		snapshot, err := App.tideClient.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		output, err := App.tideClient.PerformMaintenance(ctx, snapshot)
		if err != nil {
			return err
		}
		if output == nil {
			misc.Infof(App.logger, "no further maintenance needed, performed %d action(s)", performed)
			return nil
		}
		misc.Infof(App.logger, "%s", output)
		performed++
		if performed >= maxActions {
			misc.Infof(App.logger, "stopping at max-actions:%d, more maintenance may remain", maxActions)
			return nil
		}
	}
}

func PoolNextDuty(ctx context.Context, command *cli.Command) error {
	snapshot, err := App.tideClient.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	if onDuty := snapshot.CurrentMaintainerDuty(); onDuty != nil {
		var us string
		if onDuty.Equals(snapshot.Maintainer) {
			us = " (us)"
		}
		fmt.Printf("On duty now: %s%s\n", onDuty, us)
	} else {
		fmt.Println("On duty now: nobody (pause window)")
	}

	if snapshot.Maintainer.IsZero() {
		fmt.Println("No maintainer configured, running read-only")
		return nil
	}
	nextDutySlot, inList := snapshot.NextMaintainerDutySlot(snapshot.Maintainer)
	if !inList {
		fmt.Printf("Maintainer %s is not in the pool's maintainer list\n", snapshot.Maintainer)
		return nil
	}
	slotTime, err := sol.CalcSlotTime(ctx, App.rpcClient)
	if err != nil {
		return err
	}
	eta := durationUntilSlot(snapshot.Clock.Slot, nextDutySlot, slotTime)
	fmt.Printf("Next duty window for %s: slot %d (~%v from now)\n",
		snapshot.Maintainer, nextDutySlot, eta.Round(time.Second))
	return nil
}

func PoolExport(ctx context.Context, command *cli.Command) error {
	snapshot, err := App.tideClient.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	return SaveSnapshotFile(snapshot, command.String("out"))
}
