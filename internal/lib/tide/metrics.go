package tide

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

var (
	promSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "slot",
	})
	promEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "epoch",
	})
	promEpochStartSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "epoch_start_slot",
	})
	promEpochSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "epoch_slots",
	})
	promReserveBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "reserve_balance_sol",
	})
	promStSolSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "st_sol_supply",
	})
	promExchangeRateEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "exchange_rate_epoch",
	})
	promExchangeRatePoolSol = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "exchange_rate_sol_balance",
	})
	promExchangeRateStSol = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "exchange_rate_st_sol_supply",
	})
	promValidatorStake = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_stake_sol",
	}, []string{"vote_account", "name"})
	promValidatorUnstake = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_unstake_sol",
	}, []string{"vote_account", "name"})
	promValidatorActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_active",
	}, []string{"vote_account", "name"})
	promValidatorCommission = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_commission_percent",
	}, []string{"vote_account", "name"})
	promValidatorLastVote = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_last_voted_slot",
	}, []string{"vote_account", "name"})
	promValidatorCredits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_epoch_credits",
	}, []string{"vote_account", "name"})
	promValidatorBlockProduction = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_block_production_rate",
	}, []string{"vote_account", "name"})
	promValidatorIdentityBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "validator_identity_balance_sol",
	}, []string{"vote_account", "name"})
	promMaintainerBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "maintainer_balance_sol",
	}, []string{"maintainer"})
	promClusterStake = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "tide",
		Name:      "cluster_stake_sol",
	}, []string{"status"})
	promPolls = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "tide",
		Name:      "polls_total",
	})
	promPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "tide",
		Name:      "poll_errors_total",
	})
	promMaintenancePerformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tide",
		Name:      "maintenance_performed_total",
	}, []string{"task"})
)

func init() {
	// Export every task at zero so rate() works from the first increment.
	for _, task := range maintenanceTaskNames {
		promMaintenancePerformed.WithLabelValues(task)
	}
}

// publishSnapshotMetrics replaces the gauge values with what the given
// snapshot observed. Vector metrics are reset first so entries for removed
// validators and maintainers do not linger.
func publishSnapshotMetrics(s *Snapshot) {
	promSlot.Set(float64(s.Clock.Slot))
	promEpoch.Set(float64(s.Clock.Epoch))
	promEpochStartSlot.Set(float64(s.EpochSchedule.FirstSlotInEpoch(s.Clock.Epoch)))
	promEpochSlots.Set(float64(s.EpochSchedule.SlotsInEpoch(s.Clock.Epoch)))

	promReserveBalance.Set(float64(s.ReserveBalance) / sol.LamportsPerSol)
	promStSolSupply.Set(float64(s.StSolMint.Supply) / sol.LamportsPerSol)
	promExchangeRateEpoch.Set(float64(s.Pool.ExchangeRate.ComputedInEpoch))
	promExchangeRatePoolSol.Set(float64(s.Pool.ExchangeRate.SolBalance) / sol.LamportsPerSol)
	promExchangeRateStSol.Set(float64(s.Pool.ExchangeRate.StSolSupply) / sol.LamportsPerSol)

	promValidatorStake.Reset()
	promValidatorUnstake.Reset()
	promValidatorActive.Reset()
	promValidatorCommission.Reset()
	promValidatorLastVote.Reset()
	promValidatorCredits.Reset()
	promValidatorBlockProduction.Reset()
	promValidatorIdentityBalance.Reset()
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		vote := validator.VoteAccountAddress.String()
		name := s.ValidatorName(i)

		promValidatorStake.WithLabelValues(vote, name).Set(float64(validator.EffectiveStakeBalance()) / sol.LamportsPerSol)
		promValidatorUnstake.WithLabelValues(vote, name).Set(float64(validator.UnstakeAccountsBalance) / sol.LamportsPerSol)
		active := 0.0
		if validator.Active {
			active = 1.0
		}
		promValidatorActive.WithLabelValues(vote, name).Set(active)

		if view := s.ValidatorVoteViews[i]; view != nil {
			promValidatorCommission.WithLabelValues(vote, name).Set(float64(view.Commission))
			promValidatorLastVote.WithLabelValues(vote, name).Set(float64(view.LastVotedSlot))
			promValidatorCredits.WithLabelValues(vote, name).Set(float64(view.CurrentEpochCredits(s.Clock.Epoch)))
		}
		if rate := s.BlockProductionRates[i]; rate != nil {
			promValidatorBlockProduction.WithLabelValues(vote, name).Set(sol.Per64Ratio(*rate))
		}
		if i < len(s.ValidatorIdentityBalances) {
			promValidatorIdentityBalance.WithLabelValues(vote, name).Set(float64(s.ValidatorIdentityBalances[i]) / sol.LamportsPerSol)
		}
	}

	promMaintainerBalance.Reset()
	for i := range s.Maintainers.Entries {
		if i >= len(s.MaintainerBalances) {
			break
		}
		address := s.Maintainers.Entries[i].PubkeyAddress.String()
		promMaintainerBalance.WithLabelValues(address).Set(float64(s.MaintainerBalances[i]) / sol.LamportsPerSol)
	}

	// The history sysvar covers completed epochs only, so the freshest
	// cluster-wide numbers are the previous epoch's.
	if s.Clock.Epoch > 0 {
		if entry := s.StakeHistory.Get(s.Clock.Epoch - 1); entry != nil {
			promClusterStake.WithLabelValues("effective").Set(float64(entry.Effective) / sol.LamportsPerSol)
			promClusterStake.WithLabelValues("activating").Set(float64(entry.Activating) / sol.LamportsPerSol)
			promClusterStake.WithLabelValues("deactivating").Set(float64(entry.Deactivating) / sol.LamportsPerSol)
		}
	}
}
