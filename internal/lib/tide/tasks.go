package tide

import (
	"fmt"
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

// MaintenanceOutput describes a maintenance action for humans and for the
// per-task metrics.
type MaintenanceOutput interface {
	fmt.Stringer

	// TaskName is the stable identifier of the task, used as a metric label.
	TaskName() string
}

// MaintenanceInstruction pairs the transaction to submit with the
// description of what it does.
type MaintenanceInstruction struct {
	Instruction       solana.Instruction
	Output            MaintenanceOutput
	AdditionalSigners []solana.PrivateKey
}

// maintenanceTaskNames lists every TaskName the selector can produce, so
// metrics can expose a zero count for tasks that never ran.
var maintenanceTaskNames = []string{
	TaskMergeStake,
	TaskUpdateExchangeRate,
	TaskUpdateOnchainValidatorPerf,
	TaskUpdateOffchainValidatorPerf,
	TaskReactivateIfComplies,
	TaskUnstakeFromInactiveValidator,
	TaskUpdateStakeAccountBalance,
	TaskDeactivateIfViolates,
	TaskStakeDeposit,
	TaskUnstakeFromActiveValidator,
	TaskRemoveValidator,
}

const (
	TaskMergeStake                   = "merge_stake"
	TaskUpdateExchangeRate           = "update_exchange_rate"
	TaskUpdateOnchainValidatorPerf   = "update_onchain_validator_perf"
	TaskUpdateOffchainValidatorPerf  = "update_offchain_validator_perf"
	TaskReactivateIfComplies         = "reactivate_if_complies"
	TaskUnstakeFromInactiveValidator = "unstake_from_inactive_validator"
	TaskUpdateStakeAccountBalance    = "update_stake_account_balance"
	TaskDeactivateIfViolates         = "deactivate_if_violates"
	TaskStakeDeposit                 = "stake_deposit"
	TaskUnstakeFromActiveValidator   = "unstake_from_active_validator"
	TaskRemoveValidator              = "remove_validator"
)

type MergeStakeOutput struct {
	ValidatorVoteAccount solana.PublicKey
	FromStake            solana.PublicKey
	ToStake              solana.PublicKey
	FromStakeSeed        uint64
	ToStakeSeed          uint64
}

func (o MergeStakeOutput) TaskName() string { return TaskMergeStake }

func (o MergeStakeOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stake accounts merged\n")
	fmt.Fprintf(&b, "  Validator vote account: %s\n", o.ValidatorVoteAccount)
	fmt.Fprintf(&b, "  From stake:             %s, seed: %d\n", o.FromStake, o.FromStakeSeed)
	fmt.Fprintf(&b, "  To stake:               %s, seed: %d", o.ToStake, o.ToStakeSeed)
	return b.String()
}

type UpdateExchangeRateOutput struct{}

func (o UpdateExchangeRateOutput) TaskName() string { return TaskUpdateExchangeRate }

func (o UpdateExchangeRateOutput) String() string {
	return "Updated exchange rate."
}

type UpdateOnchainValidatorPerfOutput struct {
	ValidatorVoteAccount solana.PublicKey
}

func (o UpdateOnchainValidatorPerfOutput) TaskName() string { return TaskUpdateOnchainValidatorPerf }

func (o UpdateOnchainValidatorPerfOutput) String() string {
	return fmt.Sprintf("Updated on-chain validator performance.\n  Validator vote account: %s", o.ValidatorVoteAccount)
}

type UpdateOffchainValidatorPerfOutput struct {
	ValidatorVoteAccount solana.PublicKey
	BlockProductionRate  uint64
	VoteSuccessRate      uint64
}

func (o UpdateOffchainValidatorPerfOutput) TaskName() string { return TaskUpdateOffchainValidatorPerf }

func (o UpdateOffchainValidatorPerfOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Updated off-chain validator performance.\n")
	fmt.Fprintf(&b, "  Validator vote account:    %s\n", o.ValidatorVoteAccount)
	fmt.Fprintf(&b, "  New block production rate: %.2f%%\n", 100*sol.Per64Ratio(o.BlockProductionRate))
	fmt.Fprintf(&b, "  New vote success rate:     %.2f%%", 100*sol.Per64Ratio(o.VoteSuccessRate))
	return b.String()
}

type ReactivateIfCompliesOutput struct {
	ValidatorVoteAccount solana.PublicKey
}

func (o ReactivateIfCompliesOutput) TaskName() string { return TaskReactivateIfComplies }

func (o ReactivateIfCompliesOutput) String() string {
	return fmt.Sprintf("Reactivate a validator that meets our criteria.\n  Validator vote account: %s", o.ValidatorVoteAccount)
}

type DeactivateIfViolatesOutput struct {
	ValidatorVoteAccount solana.PublicKey
}

func (o DeactivateIfViolatesOutput) TaskName() string { return TaskDeactivateIfViolates }

func (o DeactivateIfViolatesOutput) String() string {
	return fmt.Sprintf("Deactivate a validator that fails to meet our criteria.\n  Validator vote account: %s", o.ValidatorVoteAccount)
}

// Unstake holds the common details of the two unstake tasks.
type Unstake struct {
	ValidatorVoteAccount solana.PublicKey
	FromStakeAccount     solana.PublicKey
	ToUnstakeAccount     solana.PublicKey
	FromStakeSeed        uint64
	ToUnstakeSeed        uint64
	Amount               sol.Lamports
}

func (u Unstake) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Validator vote account: %s\n", u.ValidatorVoteAccount)
	fmt.Fprintf(&b, "  Stake account:          %s, seed: %d\n", u.FromStakeAccount, u.FromStakeSeed)
	fmt.Fprintf(&b, "  Unstake account:        %s, seed: %d\n", u.ToUnstakeAccount, u.ToUnstakeSeed)
	fmt.Fprintf(&b, "  Amount:                 %s SOL", sol.FormattedSolAmount(u.Amount))
	return b.String()
}

type UnstakeFromInactiveValidatorOutput struct {
	Unstake
}

func (o UnstakeFromInactiveValidatorOutput) TaskName() string { return TaskUnstakeFromInactiveValidator }

func (o UnstakeFromInactiveValidatorOutput) String() string {
	return "Unstake from inactive validator\n" + o.Unstake.String()
}

type UnstakeFromActiveValidatorOutput struct {
	Unstake
}

func (o UnstakeFromActiveValidatorOutput) TaskName() string { return TaskUnstakeFromActiveValidator }

func (o UnstakeFromActiveValidatorOutput) String() string {
	return "Unstake from active validator\n" + o.Unstake.String()
}

type UpdateStakeAccountBalanceOutput struct {
	ValidatorVoteAccount      solana.PublicKey
	ExpectedDifferenceStake   sol.Lamports
	UnstakeWithdrawnToReserve sol.Lamports
}

func (o UpdateStakeAccountBalanceOutput) TaskName() string { return TaskUpdateStakeAccountBalance }

func (o UpdateStakeAccountBalanceOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Updated stake account balance.\n")
	fmt.Fprintf(&b, "  Validator vote account:        %s\n", o.ValidatorVoteAccount)
	fmt.Fprintf(&b, "  Expected difference in stake:  %s SOL\n", sol.FormattedSolAmount(o.ExpectedDifferenceStake))
	fmt.Fprintf(&b, "  Amount withdrawn from unstake: %s SOL", sol.FormattedSolAmount(o.UnstakeWithdrawnToReserve))
	return b.String()
}

type StakeDepositOutput struct {
	ValidatorVoteAccount solana.PublicKey
	StakeAccount         solana.PublicKey
	Amount               sol.Lamports
}

func (o StakeDepositOutput) TaskName() string { return TaskStakeDeposit }

func (o StakeDepositOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Staked deposit.\n")
	fmt.Fprintf(&b, "  Validator vote account: %s\n", o.ValidatorVoteAccount)
	fmt.Fprintf(&b, "  Stake account:          %s\n", o.StakeAccount)
	fmt.Fprintf(&b, "  Amount staked:          %s SOL", sol.FormattedSolAmount(o.Amount))
	return b.String()
}

type RemoveValidatorOutput struct {
	ValidatorVoteAccount solana.PublicKey
}

func (o RemoveValidatorOutput) TaskName() string { return TaskRemoveValidator }

func (o RemoveValidatorOutput) String() string {
	return fmt.Sprintf("Removed validator.\n  Validator vote account: %s", o.ValidatorVoteAccount)
}

// SelectMaintenance evaluates the maintenance tasks in their fixed order and
// returns the first one that is applicable, or nil when the pool needs no
// maintenance right now. It never submits anything, deciding is separate
// from doing.
func (s *Snapshot) SelectMaintenance() (*MaintenanceInstruction, error) {
	// Before considering any work, make sure we can pay for it. Failing
	// here beats submitting transactions that die with opaque fee errors.
	if err := s.checkMaintainerBalance(); err != nil {
		return nil, err
	}

	// The order matters. Merging goes before the balance update so the
	// update references as few accounts as possible, and the balance
	// update goes after the exchange rate update because the program
	// rejects it when the exchange rate is outdated.
	tries := []func() *MaintenanceInstruction{
		s.tryMergeOnAllStakes,
		s.tryUpdateExchangeRate,
		s.tryUpdateValidatorPerfs,
		s.tryReactivateIfComplies,
		s.tryUnstakeFromInactiveValidator,
		s.tryUpdateStakeAccountBalance,
		s.tryDeactivateIfViolates,
		s.tryStakeDeposit,
		s.tryUnstakeFromActiveValidators,
		s.tryRemovePendingValidators,
	}
	for _, try := range tries {
		if instruction := try(); instruction != nil {
			return instruction, nil
		}
	}
	return nil, nil
}

func (s *Snapshot) checkMaintainerBalance() error {
	for i, maintainer := range s.Maintainers.Entries {
		if i >= len(s.MaintainerBalances) {
			break
		}
		if !maintainer.PubkeyAddress.Equals(s.Maintainer) {
			continue
		}
		if balance := s.MaintainerBalances[i]; balance < MinimumMaintainerBalance {
			return fmt.Errorf("%w: balance of maintainer account %s is %s SOL, fund it with at least %s SOL",
				ErrMaintainerLowBalance, s.Maintainer, sol.FormattedSolAmount(balance), sol.FormattedSolAmount(MinimumMaintainerBalance))
		}
		break
	}
	return nil
}

// tryMergeOnAllStakes merges two stake accounts of a validator into one
// where possible, starting from the oldest seed. Fewer stake accounts keeps
// the balance update instruction small.
func (s *Snapshot) tryMergeOnAllStakes() *MaintenanceInstruction {
	for i := range s.Validators.Entries {
		stakeAccounts := s.ValidatorStakeAccounts[i]
		if len(stakeAccounts) < 2 {
			continue
		}
		fromStake := stakeAccounts[0]
		toStake := stakeAccounts[1]
		if !toStake.Account.CanMerge(&fromStake.Account) {
			continue
		}
		validator := &s.Validators.Entries[i]
		instruction := s.newMergeStakeInstruction(validator.VoteAccountAddress, fromStake.Address, toStake.Address, uint32(i))
		return &MaintenanceInstruction{
			Instruction: instruction,
			Output: MergeStakeOutput{
				ValidatorVoteAccount: validator.VoteAccountAddress,
				FromStake:            fromStake.Address,
				ToStake:              toStake.Address,
				FromStakeSeed:        fromStake.Account.Seed,
				ToStakeSeed:          toStake.Account.Seed,
			},
		}
	}
	return nil
}

// tryUpdateExchangeRate refreshes the stSOL/SOL rate once per epoch.
func (s *Snapshot) tryUpdateExchangeRate() *MaintenanceInstruction {
	if s.Pool.ExchangeRate.ComputedInEpoch >= s.Clock.Epoch {
		return nil
	}
	return &MaintenanceInstruction{
		Instruction: s.newUpdateExchangeRateInstruction(),
		Output:      UpdateExchangeRateOutput{},
	}
}

// tryUpdateValidatorPerfs tells the program how the validators have been
// performing, the on-chain observable part first.
func (s *Snapshot) tryUpdateValidatorPerfs() *MaintenanceInstruction {
	if instruction := s.updateOnchainValidatorPerfs(); instruction != nil {
		return instruction
	}
	return s.updateOffchainValidatorPerfs()
}

func (s *Snapshot) updateOnchainValidatorPerfs() *MaintenanceInstruction {
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		vote := s.ValidatorVoteViews[i]
		if vote == nil {
			// Vote account is closed, the deactivation step will take
			// care of this validator.
			continue
		}
		perf := s.ValidatorPerfs.Get(validator.VoteAccountAddress)

		// The recorded commission is refreshed near every epoch's end, and
		// immediately when the live commission moves beyond both the
		// allowed maximum and the recorded value. A validator cannot dodge
		// the commission check by raising it mid-epoch and lowering it
		// before the end.
		expired := (perf == nil || perf.CommissionUpdatedAt < s.Clock.Epoch) && s.IsAtEpochEnd()
		exceedsMax := perf != nil && vote.Commission > s.Pool.Criteria.MaxCommission && vote.Commission > perf.Commission
		if !expired && !exceedsMax {
			continue
		}

		return &MaintenanceInstruction{
			Instruction: s.newUpdateOnchainValidatorPerfInstruction(validator.VoteAccountAddress),
			Output:      UpdateOnchainValidatorPerfOutput{ValidatorVoteAccount: validator.VoteAccountAddress},
		}
	}
	return nil
}

func (s *Snapshot) updateOffchainValidatorPerfs() *MaintenanceInstruction {
	// Production and vote rates cover the whole epoch, so they are only
	// worth recording near its end.
	if !s.IsAtEpochEnd() {
		return nil
	}

	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		perf := s.ValidatorPerfs.Get(validator.VoteAccountAddress)
		if perf != nil && perf.Rest != nil && s.Clock.Epoch <= perf.Rest.UpdatedAt {
			// Already recorded for this epoch.
			continue
		}
		vote := s.ValidatorVoteViews[i]
		if vote == nil {
			continue
		}

		// A validator that the cluster gave no leader slots has produced
		// zero out of zero blocks. That is not underperformance, so count
		// it as a perfect rate.
		blockProductionRate := uint64(math.MaxUint64)
		if rate := s.BlockProductionRates[i]; rate != nil {
			blockProductionRate = *rate
		}

		slotsInEpoch := s.EpochSchedule.SlotsInEpoch(s.Clock.Epoch)
		credits := vote.CurrentEpochCredits(s.Clock.Epoch)
		if credits > slotsInEpoch {
			credits = slotsInEpoch
		}
		voteSuccessRate := sol.Per64(credits, slotsInEpoch)

		return &MaintenanceInstruction{
			Instruction: s.newUpdateOffchainValidatorPerfInstruction(validator.VoteAccountAddress, blockProductionRate, voteSuccessRate),
			Output: UpdateOffchainValidatorPerfOutput{
				ValidatorVoteAccount: validator.VoteAccountAddress,
				BlockProductionRate:  blockProductionRate,
				VoteSuccessRate:      voteSuccessRate,
			},
		}
	}
	return nil
}

// tryReactivateIfComplies brings an inactive validator back once it
// performs well again.
func (s *Snapshot) tryReactivateIfComplies() *MaintenanceInstruction {
	// Only near the epoch's end, when the performance records are fresh.
	if !s.IsAtEpochEnd() {
		return nil
	}

	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		if validator.Active {
			continue
		}
		vote := s.ValidatorVoteViews[i]
		if vote == nil {
			// A closed vote account has nothing to reactivate.
			continue
		}
		perf := s.ValidatorPerfs.Get(validator.VoteAccountAddress)
		if !s.Pool.Criteria.DoesPerformWell(vote.Commission, perf) {
			continue
		}

		return &MaintenanceInstruction{
			Instruction: s.newReactivateIfCompliesInstruction(validator.VoteAccountAddress),
			Output:      ReactivateIfCompliesOutput{ValidatorVoteAccount: validator.VoteAccountAddress},
		}
	}
	return nil
}

func (s *Snapshot) unstakeInstruction(validatorIndex int, stakeAccount StakeAccountEntry, amount sol.Lamports) (solana.PublicKey, solana.Instruction, bool) {
	validator := &s.Validators.Entries[validatorIndex]
	unstakeAccount := FindStakeAccountAddress(s.ProgramID, s.PoolAddress, validator.VoteAccountAddress, ValidatorUnstakeAccountSeed, validator.UnstakeSeeds.End)

	maintainerIndex, ok := s.FindMaintainerIndex()
	if !ok {
		return solana.PublicKey{}, nil, false
	}
	instruction := s.newUnstakeInstruction(validator.VoteAccountAddress, stakeAccount.Address, unstakeAccount, amount, uint32(validatorIndex), uint32(maintainerIndex))
	return unstakeAccount, instruction, true
}

// tryUnstakeFromInactiveValidator drains stake from validators that are no
// longer part of the pool, one stake account at a time.
func (s *Snapshot) tryUnstakeFromInactiveValidator() *MaintenanceInstruction {
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		if validator.Active {
			continue
		}
		if validator.UnstakeSeeds.Count() >= MaximumUnstakeAccounts {
			// All unstake slots taken, wait for a balance update to
			// collect the deactivated ones first.
			continue
		}
		stakeAccounts := s.ValidatorStakeAccounts[i]
		if len(stakeAccounts) == 0 {
			continue
		}

		amount := stakeAccounts[0].Account.Balance.Total()
		unstakeAccount, instruction, ok := s.unstakeInstruction(i, stakeAccounts[0], amount)
		if !ok {
			return nil
		}
		return &MaintenanceInstruction{
			Instruction: instruction,
			Output: UnstakeFromInactiveValidatorOutput{Unstake{
				ValidatorVoteAccount: validator.VoteAccountAddress,
				FromStakeAccount:     stakeAccounts[0].Address,
				ToUnstakeAccount:     unstakeAccount,
				FromStakeSeed:        validator.StakeSeeds.Begin,
				ToUnstakeSeed:        validator.UnstakeSeeds.End,
				Amount:               amount,
			}},
		}
	}
	return nil
}

// tryUpdateStakeAccountBalance makes the program notice rewards and
// deactivated unstake accounts, so they flow back into the exchange rate
// and the reserve.
func (s *Snapshot) tryUpdateStakeAccountBalance() *MaintenanceInstruction {
	stakeRent := s.Rent.MinimumBalance(sol.StakeStateSize)
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		stakeAccounts := s.ValidatorStakeAccounts[i]
		unstakeAccounts := s.ValidatorUnstakeAccounts[i]

		totalStakeBalance := sol.Lamports(0)
		canBeWithdrawn := sol.Lamports(0)
		for j := range stakeAccounts {
			balance := stakeAccounts[j].Account.Balance
			totalStakeBalance = totalStakeBalance.Add(balance.Total())
			canBeWithdrawn = canBeWithdrawn.Add(balance.Inactive.Sub(stakeRent))
		}

		// Rewards increase the total above the recorded balance. When
		// nothing was earned, merges or donations may still have produced
		// inactive stake worth withdrawing.
		var expectedDifference sol.Lamports
		if totalStakeBalance > validator.EffectiveStakeBalance() {
			expectedDifference = totalStakeBalance.Sub(validator.EffectiveStakeBalance())
		} else {
			expectedDifference = canBeWithdrawn
		}

		// Unstake accounts are reclaimed oldest first, and only once fully
		// deactivated.
		removedUnstake := sol.Lamports(0)
		for j := range unstakeAccounts {
			balance := unstakeAccounts[j].Account.Balance
			if balance.Inactive != balance.Total() {
				break
			}
			removedUnstake = removedUnstake.Add(balance.Total())
		}

		// Withdrawing less than the transaction costs is not worth it.
		if expectedDifference <= MinimumWithdrawAmount && removedUnstake == 0 {
			continue
		}

		addresses := make([]solana.PublicKey, 0, len(stakeAccounts)+len(unstakeAccounts))
		for j := range stakeAccounts {
			addresses = append(addresses, stakeAccounts[j].Address)
		}
		for j := range unstakeAccounts {
			addresses = append(addresses, unstakeAccounts[j].Address)
		}

		return &MaintenanceInstruction{
			Instruction: s.newUpdateStakeAccountBalanceInstruction(validator.VoteAccountAddress, addresses, uint32(i)),
			Output: UpdateStakeAccountBalanceOutput{
				ValidatorVoteAccount:      validator.VoteAccountAddress,
				ExpectedDifferenceStake:   expectedDifference,
				UnstakeWithdrawnToReserve: removedUnstake,
			},
		}
	}
	return nil
}

// tryDeactivateIfViolates deactivates validators whose vote account is
// closed or that fall short of the performance criteria.
func (s *Snapshot) tryDeactivateIfViolates() *MaintenanceInstruction {
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		if !validator.Active {
			continue
		}
		if vote := s.ValidatorVoteViews[i]; vote != nil {
			perf := s.ValidatorPerfs.Get(validator.VoteAccountAddress)
			if s.Pool.Criteria.DoesPerformWell(vote.Commission, perf) {
				continue
			}
		}

		return &MaintenanceInstruction{
			Instruction: s.newDeactivateIfViolatesInstruction(validator.VoteAccountAddress),
			Output:      DeactivateIfViolatesOutput{ValidatorVoteAccount: validator.VoteAccountAddress},
		}
	}
	return nil
}

// tryStakeDeposit moves deposits from the reserve into a stake account of
// the validator furthest below its target.
func (s *Snapshot) tryStakeDeposit() *MaintenanceInstruction {
	if !s.ConfirmShouldStakeUnstake() {
		return nil
	}

	reserveBalance := s.EffectiveReserve()
	targets, err := GetTargetBalance(s.Validators.Entries, reserveBalance)
	if err != nil {
		// Without active validators there is nowhere to stake.
		return nil
	}

	validatorIndex, amountBelowTarget := MinimumStakeValidatorIndex(s.Validators.Entries, targets)
	validator := &s.Validators.Entries[validatorIndex]

	// Top up the validator to at most its target. If that does not use the
	// full reserve, a later run stakes the remainder with the next one.
	amountToDeposit := amountBelowTarget
	if reserveBalance < amountToDeposit {
		amountToDeposit = reserveBalance
	}

	// Deposits below the minimum stake account balance cannot be staked.
	// Rather than letting small amounts pile up in the reserve until every
	// validator's shortfall exceeds the minimum, overshoot the target and
	// let future deposits restore the balance.
	if amountToDeposit < MinimumStakeAccountBalance {
		amountToDeposit = MinimumStakeAccountBalance
	}
	if amountToDeposit > reserveBalance {
		return nil
	}

	// Stake lands in a fresh account at the end seed. If the preceding
	// account was activated in the current epoch the two can merge, and
	// the fresh account only lives for the duration of the transaction.
	var stakeAccountEnd, accountMergeInto solana.PublicKey
	stakeAccounts := s.ValidatorStakeAccounts[validatorIndex]
	if n := len(stakeAccounts); n > 0 && stakeAccounts[n-1].Account.ActivationEpoch == s.Clock.Epoch {
		stakeAccountEnd = FindTemporaryStakeAccountAddress(s.ProgramID, s.PoolAddress, validator.VoteAccountAddress, validator.StakeSeeds.End, s.Clock.Epoch)
		accountMergeInto = stakeAccounts[n-1].Address
	} else {
		stakeAccountEnd = FindStakeAccountAddress(s.ProgramID, s.PoolAddress, validator.VoteAccountAddress, ValidatorStakeAccountSeed, validator.StakeSeeds.End)
		accountMergeInto = stakeAccountEnd
	}

	maintainerIndex, ok := s.FindMaintainerIndex()
	if !ok {
		return nil
	}

	instruction := s.newStakeDepositInstruction(validator.VoteAccountAddress, accountMergeInto, stakeAccountEnd, amountToDeposit, uint32(validatorIndex), uint32(maintainerIndex))
	return &MaintenanceInstruction{
		Instruction: instruction,
		Output: StakeDepositOutput{
			ValidatorVoteAccount: validator.VoteAccountAddress,
			StakeAccount:         stakeAccountEnd,
			Amount:               amountToDeposit,
		},
	}
}

// tryUnstakeFromActiveValidators rebalances the pool by unstaking from the
// validator furthest above its target, when the imbalance is worth an epoch
// of forgone rewards.
func (s *Snapshot) tryUnstakeFromActiveValidators() *MaintenanceInstruction {
	if !s.ConfirmShouldStakeUnstake() {
		return nil
	}

	targets, err := GetTargetBalance(s.Validators.Entries, s.EffectiveReserve())
	if err != nil {
		return nil
	}

	validatorIndex, unstakeAmount, ok := UnstakeValidatorIndex(s.Validators.Entries, targets, UnbalanceThreshold)
	if !ok {
		return nil
	}
	validator := &s.Validators.Entries[validatorIndex]
	stakeAccounts := s.ValidatorStakeAccounts[validatorIndex]
	if len(stakeAccounts) == 0 {
		return nil
	}
	stakeAccount := stakeAccounts[0]

	maximumUnstake := stakeAccount.Account.Balance.Total().Sub(MinimumStakeAccountBalance)
	amount := unstakeAmount
	if maximumUnstake < amount {
		amount = maximumUnstake
	}

	// Leaving less than the minimum balance behind would make the stake
	// account invalid, so in that case do not unstake at all.
	if amount < MinimumStakeAccountBalance {
		return nil
	}

	unstakeAccount, instruction, ok := s.unstakeInstruction(validatorIndex, stakeAccount, amount)
	if !ok {
		return nil
	}
	return &MaintenanceInstruction{
		Instruction: instruction,
		Output: UnstakeFromActiveValidatorOutput{Unstake{
			ValidatorVoteAccount: validator.VoteAccountAddress,
			FromStakeAccount:     stakeAccount.Address,
			ToUnstakeAccount:     unstakeAccount,
			FromStakeSeed:        validator.StakeSeeds.Begin,
			ToUnstakeSeed:        validator.UnstakeSeeds.End,
			Amount:               amount,
		}},
	}
}

// tryRemovePendingValidators reclaims list entries of validators that have
// been fully wound down.
func (s *Snapshot) tryRemovePendingValidators() *MaintenanceInstruction {
	for i := range s.Validators.Entries {
		validator := &s.Validators.Entries[i]
		if validator.CheckCanBeRemoved() != nil {
			continue
		}
		return &MaintenanceInstruction{
			Instruction: s.newRemoveValidatorInstruction(validator.VoteAccountAddress, uint32(i)),
			Output:      RemoveValidatorOutput{ValidatorVoteAccount: validator.VoteAccountAddress},
		}
	}
	return nil
}
