package tide

import (
	"github.com/soltide/poolmgr/internal/lib/sol"
)

const (
	// MinimumStakeAccountBalance is the floor for any stake movement into
	// or out of a validator's stake accounts. Stake accounts below roughly
	// 1 SOL earn nothing after rent and bloat the account set.
	MinimumStakeAccountBalance = sol.Lamports(1_000_000_000)

	// MinimumWithdrawAmount keeps balance-sync updates from churning over
	// dust differences.
	MinimumWithdrawAmount = sol.Lamports(1_000_000)

	// MaximumUnstakeAccounts caps how many unstake accounts one validator
	// may have cooling down at a time.
	MaximumUnstakeAccounts = 3

	// MinimumMaintainerBalance is what a maintainer needs to reliably pay
	// transaction fees. Below it we refuse to run rather than fail later.
	MinimumMaintainerBalance = sol.Lamports(100_000_000)
)

// UnbalanceThreshold is how far above its target a validator's stake must
// drift, relative to the target, before the pool unstakes from it.
var UnbalanceThreshold = sol.Rational{Numerator: 1, Denominator: 10}

// StakeTime says when stake may be moved between the reserve and
// validators.
type StakeTime uint8

const (
	// StakeTimeAnytime permits stake movement in any slot.
	StakeTimeAnytime StakeTime = iota
	// StakeTimeOnlyNearEpochEnd defers stake movement until the end of the
	// epoch, so deposits keep earning in the reserve-backed exchange rate
	// until just before rewards are paid.
	StakeTimeOnlyNearEpochEnd
)

func (st StakeTime) String() string {
	switch st {
	case StakeTimeAnytime:
		return "anytime"
	case StakeTimeOnlyNearEpochEnd:
		return "only-near-epoch-end"
	}
	return "unknown"
}

// ParseStakeTime maps the configuration wording to a StakeTime, defaulting
// to anytime.
func ParseStakeTime(raw string) StakeTime {
	if raw == StakeTimeOnlyNearEpochEnd.String() {
		return StakeTimeOnlyNearEpochEnd
	}
	return StakeTimeAnytime
}

// DefaultEndOfEpochThreshold is the percentage of the epoch that must have
// elapsed before epoch-end work begins.
const DefaultEndOfEpochThreshold = 95

// Seed prefixes for the program derived addresses the staking program owns.
const (
	ReserveAccountSeed          = "reserve_account"
	StakeAuthoritySeed          = "stake_authority"
	MintAuthoritySeed           = "mint_authority"
	ValidatorStakeAccountSeed   = "validator_stake_account"
	ValidatorUnstakeAccountSeed = "validator_unstake_account"
)

// Instruction opcodes of the staking program. The maintainer only issues a
// subset, the rest are listed for completeness of the ABI.
const (
	InstructionInitialize uint8 = iota
	InstructionDeposit
	InstructionWithdraw
	InstructionStakeDeposit
	InstructionUnstake
	InstructionUpdateExchangeRate
	InstructionUpdateStakeAccountBalance
	InstructionMergeStake
	InstructionUpdateOffchainValidatorPerf
	InstructionUpdateOnchainValidatorPerf
	InstructionDeactivateIfViolates
	InstructionReactivateIfComplies
	InstructionRemoveValidator
	InstructionAddValidator
	InstructionAddMaintainer
	InstructionRemoveMaintainer
	InstructionChangeCriteria
)

// Account list type tags, the first field of every list account.
const (
	AccountTypeUninitialized uint32 = iota
	AccountTypePool
	AccountTypeValidatorList
	AccountTypeMaintainerList
	AccountTypeValidatorPerfList
)
