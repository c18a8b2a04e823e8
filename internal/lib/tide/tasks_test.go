package tide

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

func testPubkey(tag byte) solana.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = tag
	}
	return solana.PublicKeyFromBytes(raw[:])
}

// newEmptySnapshot builds a snapshot of a pool with no validators and our
// own maintainer as the only list entry, with a rent-exempt reserve.
func newEmptySnapshot() *Snapshot {
	maintainer := testPubkey(1)
	s := &Snapshot{
		ProducedAt:          time.Unix(0, 0).UTC(),
		ProgramID:           testPubkey(2),
		PoolAddress:         testPubkey(3),
		ReserveAddress:      testPubkey(4),
		Rent:                sol.DefaultRent(),
		EpochSchedule:       sol.DefaultEpochSchedule(),
		Maintainer:          maintainer,
		StakeTime:           StakeTimeAnytime,
		EndOfEpochThreshold: DefaultEndOfEpochThreshold,
	}
	s.ReserveBalance = s.Rent.MinimumBalance(0)
	s.Maintainers.Entries = append(s.Maintainers.Entries, Maintainer{PubkeyAddress: maintainer})
	return s
}

// addTestValidator appends a validator and keeps the per-validator slices of
// the snapshot index-aligned. The vote view starts out nil, as if the vote
// account were closed.
func addTestValidator(s *Snapshot, voteAccount solana.PublicKey, active bool) *Validator {
	s.Validators.Entries = append(s.Validators.Entries, Validator{
		VoteAccountAddress: voteAccount,
		Active:             active,
	})
	s.ValidatorStakeAccounts = append(s.ValidatorStakeAccounts, nil)
	s.ValidatorUnstakeAccounts = append(s.ValidatorUnstakeAccounts, nil)
	s.ValidatorVoteViews = append(s.ValidatorVoteViews, nil)
	s.ValidatorIdentityBalances = append(s.ValidatorIdentityBalances, 0)
	s.ValidatorInfos = append(s.ValidatorInfos, sol.ValidatorInfo{})
	s.BlockProductionRates = append(s.BlockProductionRates, nil)
	return &s.Validators.Entries[len(s.Validators.Entries)-1]
}

func activeStakeAccount(address solana.PublicKey, seed uint64, amount sol.Lamports) StakeAccountEntry {
	return StakeAccountEntry{
		Address: address,
		Account: sol.StakeAccount{
			Balance: sol.StakeBalance{Active: amount},
			Seed:    seed,
		},
	}
}

func TestSelectMaintenanceChecksMaintainerBalance(t *testing.T) {
	s := newEmptySnapshot()
	s.MaintainerBalances = []sol.Lamports{MinimumMaintainerBalance - 1}

	instruction, err := s.SelectMaintenance()
	require.ErrorIs(t, err, ErrMaintainerLowBalance)
	assert.Nil(t, instruction)

	s.MaintainerBalances = []sol.Lamports{MinimumMaintainerBalance}
	instruction, err = s.SelectMaintenance()
	require.NoError(t, err)
	assert.Nil(t, instruction, "an empty pool has no maintenance to do")
}

func TestSelectMaintenanceSkipsBalanceCheckForNonMembers(t *testing.T) {
	s := newEmptySnapshot()
	s.MaintainerBalances = []sol.Lamports{0}
	s.Maintainer = testPubkey(99)

	_, err := s.SelectMaintenance()
	assert.NoError(t, err, "a maintainer outside the list pays its own way")
}

func TestStakeDepositDoesNotStakeLessThanTheMinimum(t *testing.T) {
	s := newEmptySnapshot()
	addTestValidator(s, testPubkey(10), true)

	// Put some SOL in the reserve, but not enough to stake.
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance - 1)
	assert.Nil(t, s.tryStakeDeposit(), "below the minimum stake account balance nothing can be staked")

	s.ReserveBalance = s.ReserveBalance.Add(1)
	instruction := s.tryStakeDeposit()
	require.NotNil(t, instruction)
	output := instruction.Output.(StakeDepositOutput)
	assert.Equal(t, MinimumStakeAccountBalance, output.Amount)
}

func TestStakeDepositSplitsEvenlyIfPossible(t *testing.T) {
	s := newEmptySnapshot()
	vote0 := testPubkey(10)
	vote1 := testPubkey(11)
	addTestValidator(s, vote0, true)
	addTestValidator(s, vote1, true)

	// Enough in the reserve to give both validators half, with both halves
	// above the minimum stake account balance.
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance.Mul(4))

	stakeAccount0 := FindStakeAccountAddress(s.ProgramID, s.PoolAddress, vote0, ValidatorStakeAccountSeed, 0)
	instruction := s.tryStakeDeposit()
	require.NotNil(t, instruction)
	assert.Equal(t, StakeDepositOutput{
		ValidatorVoteAccount: vote0,
		StakeAccount:         stakeAccount0,
		Amount:               MinimumStakeAccountBalance.Mul(2),
	}, instruction.Output)

	// Pretend the amount was actually staked.
	s.ReserveBalance = s.ReserveBalance.Sub(MinimumStakeAccountBalance.Mul(2))
	s.Validators.Entries[0].StakeAccountsBalance = MinimumStakeAccountBalance.Mul(2)

	stakeAccount1 := FindStakeAccountAddress(s.ProgramID, s.PoolAddress, vote1, ValidatorStakeAccountSeed, 0)
	instruction = s.tryStakeDeposit()
	require.NotNil(t, instruction)
	assert.Equal(t, StakeDepositOutput{
		ValidatorVoteAccount: vote1,
		StakeAccount:         stakeAccount1,
		Amount:               MinimumStakeAccountBalance.Mul(2),
	}, instruction.Output)
}

func TestStakeDepositMergesIntoAccountActivatedThisEpoch(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	validator := addTestValidator(s, vote, true)
	validator.StakeSeeds = SeedRange{Begin: 0, End: 1}
	validator.StakeAccountsBalance = MinimumStakeAccountBalance

	s.Clock.Epoch = 7
	s.Clock.Slot = s.EpochSchedule.FirstSlotInEpoch(7)
	existing := StakeAccountEntry{
		Address: FindStakeAccountAddress(s.ProgramID, s.PoolAddress, vote, ValidatorStakeAccountSeed, 0),
		Account: sol.StakeAccount{
			Balance:         sol.StakeBalance{Activating: MinimumStakeAccountBalance},
			ActivationEpoch: 7,
		},
	}
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{existing}
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance.Mul(2))

	instruction := s.tryStakeDeposit()
	require.NotNil(t, instruction)
	output := instruction.Output.(StakeDepositOutput)

	// The deposit goes into a throwaway account derived from the current
	// epoch, which the transaction merges into the activating account.
	temporary := FindTemporaryStakeAccountAddress(s.ProgramID, s.PoolAddress, vote, 1, 7)
	assert.Equal(t, temporary, output.StakeAccount)

	// One epoch later the existing account is fully active, so merging
	// with a fresh activating account is no longer possible.
	s.Clock.Epoch = 8
	s.Clock.Slot = s.EpochSchedule.FirstSlotInEpoch(8)
	s.ValidatorStakeAccounts[0][0].Account.Balance = sol.StakeBalance{Active: MinimumStakeAccountBalance}

	instruction = s.tryStakeDeposit()
	require.NotNil(t, instruction)
	output = instruction.Output.(StakeDepositOutput)
	appended := FindStakeAccountAddress(s.ProgramID, s.PoolAddress, vote, ValidatorStakeAccountSeed, 1)
	assert.Equal(t, appended, output.StakeAccount)
}

func TestStakeDepositRequiresMaintainerMembership(t *testing.T) {
	s := newEmptySnapshot()
	addTestValidator(s, testPubkey(10), true)
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance.Mul(2))
	s.Maintainer = testPubkey(99)

	assert.Nil(t, s.tryStakeDeposit())
}

func TestUpdateExchangeRateOncePerEpoch(t *testing.T) {
	s := newEmptySnapshot()
	s.Clock.Epoch = 10
	s.Pool.ExchangeRate.ComputedInEpoch = 9

	instruction := s.tryUpdateExchangeRate()
	require.NotNil(t, instruction)
	assert.Equal(t, TaskUpdateExchangeRate, instruction.Output.TaskName())

	s.Pool.ExchangeRate.ComputedInEpoch = 10
	assert.Nil(t, s.tryUpdateExchangeRate())
}

func TestMergeTakesPriorityOverExchangeRateUpdate(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	validator := addTestValidator(s, vote, true)
	validator.StakeSeeds = SeedRange{Begin: 0, End: 2}
	validator.StakeAccountsBalance = MinimumStakeAccountBalance.Mul(4)

	from := activeStakeAccount(testPubkey(20), 0, MinimumStakeAccountBalance.Mul(2))
	to := activeStakeAccount(testPubkey(21), 1, MinimumStakeAccountBalance.Mul(2))
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{from, to}

	// An outdated exchange rate would also produce work.
	s.Clock.Epoch = 3
	s.Clock.Slot = s.EpochSchedule.FirstSlotInEpoch(3)
	s.Pool.ExchangeRate.ComputedInEpoch = 2

	instruction, err := s.SelectMaintenance()
	require.NoError(t, err)
	require.NotNil(t, instruction)
	require.Equal(t, TaskMergeStake, instruction.Output.TaskName())

	output := instruction.Output.(MergeStakeOutput)
	assert.Equal(t, from.Address, output.FromStake)
	assert.Equal(t, to.Address, output.ToStake)
	assert.Equal(t, uint64(0), output.FromStakeSeed)
	assert.Equal(t, uint64(1), output.ToStakeSeed)
}

func TestMergeSkipsAccountsThatCannotMerge(t *testing.T) {
	s := newEmptySnapshot()
	validator := addTestValidator(s, testPubkey(10), true)
	validator.StakeSeeds = SeedRange{Begin: 0, End: 2}

	// An activating and an active account cannot merge.
	from := StakeAccountEntry{
		Address: testPubkey(20),
		Account: sol.StakeAccount{
			Balance:         sol.StakeBalance{Activating: MinimumStakeAccountBalance},
			ActivationEpoch: 1,
			Seed:            0,
		},
	}
	to := activeStakeAccount(testPubkey(21), 1, MinimumStakeAccountBalance)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{from, to}

	assert.Nil(t, s.tryMergeOnAllStakes())
}

func TestUnstakeFromInactiveValidatorDrainsOldestAccount(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	validator := addTestValidator(s, vote, false)
	validator.StakeSeeds = SeedRange{Begin: 5, End: 6}
	amount := MinimumStakeAccountBalance.Mul(3)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{activeStakeAccount(testPubkey(20), 5, amount)}

	instruction := s.tryUnstakeFromInactiveValidator()
	require.NotNil(t, instruction)
	output := instruction.Output.(UnstakeFromInactiveValidatorOutput)
	assert.Equal(t, amount, output.Amount, "an inactive validator is drained completely, not to a target")
	assert.Equal(t, uint64(5), output.FromStakeSeed)
	assert.Equal(t, uint64(0), output.ToUnstakeSeed)
	expectedUnstake := FindStakeAccountAddress(s.ProgramID, s.PoolAddress, vote, ValidatorUnstakeAccountSeed, 0)
	assert.Equal(t, expectedUnstake, output.ToUnstakeAccount)
}

func TestUnstakeFromInactiveValidatorRespectsUnstakeAccountCap(t *testing.T) {
	s := newEmptySnapshot()
	validator := addTestValidator(s, testPubkey(10), false)
	validator.StakeSeeds = SeedRange{Begin: 0, End: 1}
	validator.UnstakeSeeds = SeedRange{Begin: 0, End: MaximumUnstakeAccounts}
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{activeStakeAccount(testPubkey(20), 0, MinimumStakeAccountBalance)}

	assert.Nil(t, s.tryUnstakeFromInactiveValidator())

	validator.UnstakeSeeds.End--
	assert.NotNil(t, s.tryUnstakeFromInactiveValidator())
}

func TestUpdateStakeAccountBalanceOnRewards(t *testing.T) {
	s := newEmptySnapshot()
	validator := addTestValidator(s, testPubkey(10), true)
	recorded := MinimumStakeAccountBalance.Mul(2)
	validator.StakeAccountsBalance = recorded

	stakeRent := s.Rent.MinimumBalance(sol.StakeStateSize)
	rewards := sol.Lamports(50_000_000)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{{
		Address: testPubkey(20),
		Account: sol.StakeAccount{
			Balance: sol.StakeBalance{Inactive: stakeRent, Active: recorded.Add(rewards)},
		},
	}}

	instruction := s.tryUpdateStakeAccountBalance()
	require.NotNil(t, instruction)
	output := instruction.Output.(UpdateStakeAccountBalanceOutput)
	assert.Equal(t, rewards.Add(stakeRent), output.ExpectedDifferenceStake)
	assert.Equal(t, sol.Lamports(0), output.UnstakeWithdrawnToReserve)
}

func TestUpdateStakeAccountBalanceIgnoresDust(t *testing.T) {
	s := newEmptySnapshot()
	validator := addTestValidator(s, testPubkey(10), true)
	recorded := MinimumStakeAccountBalance
	validator.StakeAccountsBalance = recorded

	// Half of the withdraw minimum in rewards is not worth a transaction.
	stakeRent := s.Rent.MinimumBalance(sol.StakeStateSize)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{{
		Address: testPubkey(20),
		Account: sol.StakeAccount{
			Balance: sol.StakeBalance{
				Inactive: stakeRent,
				Active:   recorded.Sub(stakeRent).Add(MinimumWithdrawAmount / 2),
			},
		},
	}}

	assert.Nil(t, s.tryUpdateStakeAccountBalance())
}

func TestUpdateStakeAccountBalanceCollectsDeactivatedUnstake(t *testing.T) {
	s := newEmptySnapshot()
	validator := addTestValidator(s, testPubkey(10), false)
	validator.UnstakeSeeds = SeedRange{Begin: 0, End: 2}
	cooled := MinimumStakeAccountBalance.Mul(2)
	stillCooling := MinimumStakeAccountBalance

	s.ValidatorUnstakeAccounts[0] = []StakeAccountEntry{
		{
			Address: testPubkey(20),
			Account: sol.StakeAccount{Balance: sol.StakeBalance{Inactive: cooled}},
		},
		{
			Address: testPubkey(21),
			Account: sol.StakeAccount{Balance: sol.StakeBalance{Deactivating: stillCooling}},
		},
	}

	instruction := s.tryUpdateStakeAccountBalance()
	require.NotNil(t, instruction)
	output := instruction.Output.(UpdateStakeAccountBalanceOutput)
	assert.Equal(t, cooled, output.UnstakeWithdrawnToReserve,
		"only the leading fully deactivated unstake accounts are reclaimed")
}

func TestDeactivateIfViolates(t *testing.T) {
	s := newEmptySnapshot()
	s.Pool.Criteria = Criteria{MaxCommission: 5}
	vote := testPubkey(10)
	addTestValidator(s, vote, true)

	// Commission within bounds, nothing to do.
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote, Commission: 5}
	assert.Nil(t, s.tryDeactivateIfViolates())

	s.ValidatorVoteViews[0].Commission = 6
	instruction := s.tryDeactivateIfViolates()
	require.NotNil(t, instruction)
	assert.Equal(t, TaskDeactivateIfViolates, instruction.Output.TaskName())

	// A closed vote account always violates.
	s.ValidatorVoteViews[0] = nil
	assert.NotNil(t, s.tryDeactivateIfViolates())

	// Inactive validators are not deactivated again.
	s.Validators.Entries[0].Active = false
	assert.Nil(t, s.tryDeactivateIfViolates())
}

func TestReactivateIfCompliesOnlyNearEpochEnd(t *testing.T) {
	s := newEmptySnapshot()
	s.Pool.Criteria = Criteria{MaxCommission: 5}
	vote := testPubkey(10)
	addTestValidator(s, vote, false)
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote, Commission: 4}

	// Mid-epoch the performance records are stale, wait for the end.
	s.Clock.Epoch = 1
	s.Clock.Slot = 33
	assert.Nil(t, s.tryReactivateIfComplies())

	// Epoch 1 spans slots 32 through 95, so slot 93 is at 95.3%.
	s.Clock.Slot = 93
	instruction := s.tryReactivateIfComplies()
	require.NotNil(t, instruction)
	assert.Equal(t, TaskReactivateIfComplies, instruction.Output.TaskName())

	// A closed vote account cannot come back.
	s.ValidatorVoteViews[0] = nil
	assert.Nil(t, s.tryReactivateIfComplies())
}

func TestOnchainPerfUpdatesAtEpochEnd(t *testing.T) {
	s := newEmptySnapshot()
	s.Pool.Criteria = Criteria{MaxCommission: 5}
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote, Commission: 3}
	s.Clock.Epoch = 1
	s.Clock.Slot = 33

	// No record yet, but also not the end of the epoch.
	assert.Nil(t, s.updateOnchainValidatorPerfs())

	s.Clock.Slot = 93
	instruction := s.updateOnchainValidatorPerfs()
	require.NotNil(t, instruction)
	assert.Equal(t, TaskUpdateOnchainValidatorPerf, instruction.Output.TaskName())

	s.ValidatorPerfs.Entries = []ValidatorPerf{{
		ValidatorVoteAccountAddress: vote,
		Commission:                  3,
		CommissionUpdatedAt:         1,
	}}
	assert.Nil(t, s.updateOnchainValidatorPerfs(), "already recorded for this epoch")
}

func TestOnchainPerfRecordsCommissionRaiseImmediately(t *testing.T) {
	s := newEmptySnapshot()
	s.Pool.Criteria = Criteria{MaxCommission: 5}
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.Clock.Epoch = 1
	s.Clock.Slot = 33

	// Mid-epoch the commission jumps beyond the allowed maximum. With a
	// record on file the raise is written down right away, so lowering it
	// again before the epoch ends does not hide it.
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote, Commission: 100}
	s.ValidatorPerfs.Entries = []ValidatorPerf{{
		ValidatorVoteAccountAddress: vote,
		Commission:                  3,
		CommissionUpdatedAt:         1,
	}}
	instruction := s.updateOnchainValidatorPerfs()
	require.NotNil(t, instruction)

	// Without any record there is nothing to compare against, so nothing
	// happens until the end of the epoch.
	s.ValidatorPerfs.Entries = nil
	assert.Nil(t, s.updateOnchainValidatorPerfs())
}

func TestOffchainPerfRates(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.Clock.Epoch = 1
	s.Clock.Slot = 93
	s.ValidatorVoteViews[0] = &sol.VoteView{
		VoteAccount: vote,
		EpochCredits: []sol.EpochCredits{
			{Epoch: 0, Credits: 30, PrevCredits: 0},
			{Epoch: 1, Credits: 80, PrevCredits: 30},
		},
	}

	instruction := s.updateOffchainValidatorPerfs()
	require.NotNil(t, instruction)
	output := instruction.Output.(UpdateOffchainValidatorPerfOutput)

	// 50 credits out of the 64 slots of epoch 1.
	assert.Equal(t, sol.Per64(50, 64), output.VoteSuccessRate)
	// No leader slots assigned means no evidence of missed blocks.
	assert.Equal(t, uint64(18446744073709551615), output.BlockProductionRate)

	rate := sol.Per64(3, 4)
	s.BlockProductionRates[0] = &rate
	instruction = s.updateOffchainValidatorPerfs()
	require.NotNil(t, instruction)
	output = instruction.Output.(UpdateOffchainValidatorPerfOutput)
	assert.Equal(t, rate, output.BlockProductionRate)
}

func TestOffchainPerfOncePerEpoch(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote}
	s.Clock.Epoch = 1
	s.Clock.Slot = 93

	s.ValidatorPerfs.Entries = []ValidatorPerf{{
		ValidatorVoteAccountAddress: vote,
		Rest:                        &OffchainPerf{UpdatedAt: 1},
	}}
	assert.Nil(t, s.updateOffchainValidatorPerfs())

	s.ValidatorPerfs.Entries[0].Rest.UpdatedAt = 0
	assert.NotNil(t, s.updateOffchainValidatorPerfs())

	// Mid-epoch nothing is recorded at all.
	s.Clock.Slot = 33
	assert.Nil(t, s.updateOffchainValidatorPerfs())
}

func TestUnstakeFromActiveValidatorsRebalances(t *testing.T) {
	s := newEmptySnapshot()
	vote0 := testPubkey(10)
	vote1 := testPubkey(11)
	heavy := addTestValidator(s, vote0, true)
	light := addTestValidator(s, vote1, true)

	heavy.StakeSeeds = SeedRange{Begin: 0, End: 1}
	heavy.StakeAccountsBalance = sol.Lamports(10 * sol.LamportsPerSol)
	light.StakeSeeds = SeedRange{Begin: 0, End: 1}
	light.StakeAccountsBalance = sol.Lamports(2 * sol.LamportsPerSol)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{activeStakeAccount(testPubkey(20), 0, heavy.StakeAccountsBalance)}
	s.ValidatorStakeAccounts[1] = []StakeAccountEntry{activeStakeAccount(testPubkey(21), 0, light.StakeAccountsBalance)}

	instruction := s.tryUnstakeFromActiveValidators()
	require.NotNil(t, instruction)
	output := instruction.Output.(UnstakeFromActiveValidatorOutput)
	assert.Equal(t, vote0, output.ValidatorVoteAccount)
	// Targets are 6 SOL each, the excess of 4 SOL moves out.
	assert.Equal(t, sol.Lamports(4*sol.LamportsPerSol), output.Amount)
}

func TestUnstakeFromActiveValidatorsToleratesSmallImbalance(t *testing.T) {
	s := newEmptySnapshot()
	heavy := addTestValidator(s, testPubkey(10), true)
	light := addTestValidator(s, testPubkey(11), true)

	// 6.5 and 6 SOL give an excess of 0.25 SOL over the 6.25 target, which
	// is 4 percent, below the one tenth threshold.
	heavy.StakeAccountsBalance = sol.Lamports(6_500_000_000)
	light.StakeAccountsBalance = sol.Lamports(6_000_000_000)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{activeStakeAccount(testPubkey(20), 0, heavy.StakeAccountsBalance)}
	s.ValidatorStakeAccounts[1] = []StakeAccountEntry{activeStakeAccount(testPubkey(21), 0, light.StakeAccountsBalance)}

	assert.Nil(t, s.tryUnstakeFromActiveValidators())
}

func TestUnstakeFromActiveValidatorsKeepsMinimumMove(t *testing.T) {
	s := newEmptySnapshot()
	heavy := addTestValidator(s, testPubkey(10), true)
	light := addTestValidator(s, testPubkey(11), true)

	// The 0.5 SOL excess is a quarter of the target, well beyond the
	// threshold, but moving less than a minimum stake account is not
	// possible.
	heavy.StakeAccountsBalance = sol.Lamports(2_500_000_000)
	light.StakeAccountsBalance = sol.Lamports(1_500_000_000)
	s.ValidatorStakeAccounts[0] = []StakeAccountEntry{activeStakeAccount(testPubkey(20), 0, heavy.StakeAccountsBalance)}
	s.ValidatorStakeAccounts[1] = []StakeAccountEntry{activeStakeAccount(testPubkey(21), 0, light.StakeAccountsBalance)}

	assert.Nil(t, s.tryUnstakeFromActiveValidators())
}

func TestRemovePendingValidators(t *testing.T) {
	s := newEmptySnapshot()
	addTestValidator(s, testPubkey(10), false)

	instruction := s.tryRemovePendingValidators()
	require.NotNil(t, instruction)
	assert.Equal(t, TaskRemoveValidator, instruction.Output.TaskName())

	testCases := []struct {
		name   string
		mutate func(v *Validator)
	}{
		{"still active", func(v *Validator) { v.Active = true }},
		{"has stake accounts", func(v *Validator) { v.StakeSeeds = SeedRange{Begin: 0, End: 1} }},
		{"has unstake accounts", func(v *Validator) { v.UnstakeSeeds = SeedRange{Begin: 2, End: 3} }},
		{"has recorded balance", func(v *Validator) { v.StakeAccountsBalance = 1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newEmptySnapshot()
			validator := addTestValidator(s, testPubkey(10), false)
			tc.mutate(validator)
			assert.Nil(t, s.tryRemovePendingValidators(), "case: %s", tc.name)
		})
	}
}

func TestSelectMaintenanceOrderPrefersExchangeRate(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote}
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance.Mul(4))
	s.Clock.Epoch = 2
	s.Clock.Slot = s.EpochSchedule.FirstSlotInEpoch(2)
	s.Pool.ExchangeRate.ComputedInEpoch = 1

	instruction, err := s.SelectMaintenance()
	require.NoError(t, err)
	require.NotNil(t, instruction)
	assert.Equal(t, TaskUpdateExchangeRate, instruction.Output.TaskName(),
		"the rate update must land before anything that depends on it")

	s.Pool.ExchangeRate.ComputedInEpoch = 2
	instruction, err = s.SelectMaintenance()
	require.NoError(t, err)
	require.NotNil(t, instruction)
	assert.Equal(t, TaskStakeDeposit, instruction.Output.TaskName())
}

func TestSelectMaintenanceIsIdempotentPerSnapshot(t *testing.T) {
	s := newEmptySnapshot()
	vote := testPubkey(10)
	addTestValidator(s, vote, true)
	s.ValidatorVoteViews[0] = &sol.VoteView{VoteAccount: vote}
	s.ReserveBalance = s.ReserveBalance.Add(MinimumStakeAccountBalance.Mul(3))

	first, err := s.SelectMaintenance()
	require.NoError(t, err)
	second, err := s.SelectMaintenance()
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Output, second.Output, "decisions are a pure function of the snapshot")
}
