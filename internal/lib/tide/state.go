package tide

import (
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

// SeedRange is the half-open range [Begin, End) of derivation seeds with a
// live stake or unstake account. New accounts append at End, accounts are
// retired from Begin, so seeds are never reused.
type SeedRange struct {
	Begin uint64
	End   uint64
}

func (r SeedRange) Count() uint64 {
	return r.End - r.Begin
}

func (r SeedRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}

// Validator is one entry of the pool's validator list.
type Validator struct {
	VoteAccountAddress solana.PublicKey
	StakeSeeds         SeedRange
	UnstakeSeeds       SeedRange

	// StakeAccountsBalance is the last balance the program observed across
	// all of this validator's stake accounts, UnstakeAccountsBalance the
	// same for unstake accounts. Kept current by balance-sync maintenance.
	StakeAccountsBalance   sol.Lamports
	UnstakeAccountsBalance sol.Lamports

	Active bool
}

// EffectiveStakeBalance is the recorded balance that actually backs the
// exchange rate: everything staked minus what is on its way out.
func (v *Validator) EffectiveStakeBalance() sol.Lamports {
	return v.StakeAccountsBalance.Sub(v.UnstakeAccountsBalance)
}

// CheckCanBeRemoved reports, via a nil error, that the validator has been
// fully wound down and its list entry may be reclaimed.
func (v *Validator) CheckCanBeRemoved() error {
	if v.Active {
		return fmt.Errorf("validator %s is still active", v.VoteAccountAddress)
	}
	if v.StakeSeeds.Count() != 0 {
		return fmt.Errorf("validator %s still has %d stake accounts", v.VoteAccountAddress, v.StakeSeeds.Count())
	}
	if v.UnstakeSeeds.Count() != 0 {
		return fmt.Errorf("validator %s still has %d unstake accounts", v.VoteAccountAddress, v.UnstakeSeeds.Count())
	}
	if v.StakeAccountsBalance != 0 {
		return fmt.Errorf("validator %s still has a recorded stake balance", v.VoteAccountAddress)
	}
	return nil
}

func (v *Validator) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	voteAccount, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(v.VoteAccountAddress[:], voteAccount)

	v.StakeSeeds.Begin, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	v.StakeSeeds.End, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	v.UnstakeSeeds.Begin, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	v.UnstakeSeeds.End, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	stakeBalance, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	v.StakeAccountsBalance = sol.Lamports(stakeBalance)

	unstakeBalance, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	v.UnstakeAccountsBalance = sol.Lamports(unstakeBalance)

	active, err := decoder.ReadByte()
	if err != nil {
		return err
	}
	v.Active = active != 0
	return nil
}

// Maintainer is one entry of the pool's maintainer list. Position in the
// list drives the duty rotation.
type Maintainer struct {
	PubkeyAddress solana.PublicKey
}

func (m *Maintainer) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	pubkey, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(m.PubkeyAddress[:], pubkey)
	return nil
}

// OffchainPerf is the part of a validator's performance record that only
// off-chain observers can compute. Rates are scaled per sol.Per64.
type OffchainPerf struct {
	BlockProductionRate uint64
	VoteSuccessRate     uint64
	UpdatedAt           uint64
}

// ValidatorPerf is one entry of the pool's performance list.
type ValidatorPerf struct {
	ValidatorVoteAccountAddress solana.PublicKey

	// Commission is the highest commission observed, and
	// CommissionUpdatedAt the epoch it was recorded in.
	Commission          uint8
	CommissionUpdatedAt uint64

	Rest *OffchainPerf
}

func (p *ValidatorPerf) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	voteAccount, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(p.ValidatorVoteAccountAddress[:], voteAccount)

	p.Commission, err = decoder.ReadByte()
	if err != nil {
		return err
	}
	p.CommissionUpdatedAt, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	hasRest, err := decoder.ReadByte()
	if err != nil {
		return err
	}
	if hasRest == 0 {
		p.Rest = nil
		return nil
	}
	rest := new(OffchainPerf)
	rest.BlockProductionRate, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	rest.VoteSuccessRate, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	rest.UpdatedAt, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	p.Rest = rest
	return nil
}

// ListHeader starts every list account the program owns.
type ListHeader struct {
	AccountType uint32
	PoolAddress solana.PublicKey
	MaxEntries  uint32
}

func (h *ListHeader) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	h.AccountType, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	pool, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(h.PoolAddress[:], pool)

	h.MaxEntries, err = decoder.ReadUint32(bin.LE)
	return err
}

type ValidatorList struct {
	Header  ListHeader
	Entries []Validator
}

type MaintainerList struct {
	Header  ListHeader
	Entries []Maintainer
}

type PerfList struct {
	Header  ListHeader
	Entries []ValidatorPerf
}

func (l *ValidatorList) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if err := l.Header.UnmarshalWithDecoder(decoder); err != nil {
		return err
	}
	numEntries, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	l.Entries = make([]Validator, numEntries)
	for i := range l.Entries {
		if err := l.Entries[i].UnmarshalWithDecoder(decoder); err != nil {
			return err
		}
	}
	return nil
}

func (l *MaintainerList) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if err := l.Header.UnmarshalWithDecoder(decoder); err != nil {
		return err
	}
	numEntries, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	l.Entries = make([]Maintainer, numEntries)
	for i := range l.Entries {
		if err := l.Entries[i].UnmarshalWithDecoder(decoder); err != nil {
			return err
		}
	}
	return nil
}

func (l *PerfList) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if err := l.Header.UnmarshalWithDecoder(decoder); err != nil {
		return err
	}
	numEntries, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	l.Entries = make([]ValidatorPerf, numEntries)
	for i := range l.Entries {
		if err := l.Entries[i].UnmarshalWithDecoder(decoder); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the performance record for a vote account, nil when none has
// been written yet.
func (l *PerfList) Get(voteAccount solana.PublicKey) *ValidatorPerf {
	for i := range l.Entries {
		if l.Entries[i].ValidatorVoteAccountAddress.Equals(voteAccount) {
			return &l.Entries[i]
		}
	}
	return nil
}

// ExchangeRate is the recorded stSOL/SOL rate, refreshed once per epoch.
type ExchangeRate struct {
	ComputedInEpoch uint64
	StSolSupply     sol.StLamports
	SolBalance      sol.Lamports
}

// Criteria is the performance policy validators must meet to stay active.
type Criteria struct {
	MaxCommission          uint8
	MinBlockProductionRate uint64
	MinVoteSuccessRate     uint64
}

// DoesPerformWell checks a validator's live commission and recorded
// performance against the policy. Missing data counts in the validator's
// favor, a validator must be observed misbehaving before it is punished.
func (c *Criteria) DoesPerformWell(commission uint8, perf *ValidatorPerf) bool {
	if commission > c.MaxCommission {
		return false
	}
	if perf == nil || perf.Rest == nil {
		return true
	}
	return perf.Rest.BlockProductionRate >= c.MinBlockProductionRate &&
		perf.Rest.VoteSuccessRate >= c.MinVoteSuccessRate
}

func (c Criteria) String() string {
	return fmt.Sprintf("max commission %d%%, min block production rate %d, min vote success rate %d", c.MaxCommission, c.MinBlockProductionRate, c.MinVoteSuccessRate)
}

// FeeRecipients are the accounts fees are minted to on balance sync.
type FeeRecipients struct {
	TreasuryAccount  solana.PublicKey
	DeveloperAccount solana.PublicKey
}

// RewardDistribution splits rewards between fees and stSOL appreciation,
// in proportional shares.
type RewardDistribution struct {
	TreasuryFee       uint32
	DeveloperFee      uint32
	StSolAppreciation uint32
}

// PoolMetrics are cumulative counters the program maintains.
type PoolMetrics struct {
	FeeTreasuryTotal       sol.Lamports
	FeeDeveloperTotal      sol.Lamports
	StSolAppreciationTotal sol.Lamports
	DepositAmountTotal     sol.Lamports
	WithdrawAmountTotal    sol.Lamports
}

// PoolState is the pool's root account.
type PoolState struct {
	Version uint8

	Manager   solana.PublicKey
	StSolMint solana.PublicKey

	ExchangeRate ExchangeRate

	SolReserveAccountBumpSeed uint8
	StakeAuthorityBumpSeed    uint8
	MintAuthorityBumpSeed     uint8

	RewardDistribution RewardDistribution
	Criteria           Criteria
	FeeRecipients      FeeRecipients
	Metrics            PoolMetrics

	ValidatorList     solana.PublicKey
	ValidatorPerfList solana.PublicKey
	MaintainerList    solana.PublicKey
}

func (p *PoolState) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	p.Version, err = decoder.ReadByte()
	if err != nil {
		return err
	}

	for _, target := range []*solana.PublicKey{&p.Manager, &p.StSolMint} {
		raw, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		copy(target[:], raw)
	}

	p.ExchangeRate.ComputedInEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	supply, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	p.ExchangeRate.StSolSupply = sol.StLamports(supply)
	balance, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	p.ExchangeRate.SolBalance = sol.Lamports(balance)

	for _, target := range []*uint8{&p.SolReserveAccountBumpSeed, &p.StakeAuthorityBumpSeed, &p.MintAuthorityBumpSeed} {
		*target, err = decoder.ReadByte()
		if err != nil {
			return err
		}
	}

	for _, target := range []*uint32{&p.RewardDistribution.TreasuryFee, &p.RewardDistribution.DeveloperFee, &p.RewardDistribution.StSolAppreciation} {
		*target, err = decoder.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
	}

	p.Criteria.MaxCommission, err = decoder.ReadByte()
	if err != nil {
		return err
	}
	p.Criteria.MinBlockProductionRate, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	p.Criteria.MinVoteSuccessRate, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	for _, target := range []*solana.PublicKey{&p.FeeRecipients.TreasuryAccount, &p.FeeRecipients.DeveloperAccount} {
		raw, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		copy(target[:], raw)
	}

	for _, target := range []*sol.Lamports{
		&p.Metrics.FeeTreasuryTotal, &p.Metrics.FeeDeveloperTotal, &p.Metrics.StSolAppreciationTotal,
		&p.Metrics.DepositAmountTotal, &p.Metrics.WithdrawAmountTotal,
	} {
		raw, err := decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}
		*target = sol.Lamports(raw)
	}

	for _, target := range []*solana.PublicKey{&p.ValidatorList, &p.ValidatorPerfList, &p.MaintainerList} {
		raw, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		copy(target[:], raw)
	}
	return nil
}

func UnmarshalPoolState(data []byte) (*PoolState, error) {
	pool := new(PoolState)
	decoder := bin.NewBorshDecoder(data)
	if err := pool.UnmarshalWithDecoder(decoder); err != nil {
		return nil, err
	}
	return pool, nil
}

func UnmarshalValidatorList(data []byte) (*ValidatorList, error) {
	list := new(ValidatorList)
	decoder := bin.NewBorshDecoder(data)
	if err := list.UnmarshalWithDecoder(decoder); err != nil {
		return nil, err
	}
	return list, nil
}

func UnmarshalMaintainerList(data []byte) (*MaintainerList, error) {
	list := new(MaintainerList)
	decoder := bin.NewBorshDecoder(data)
	if err := list.UnmarshalWithDecoder(decoder); err != nil {
		return nil, err
	}
	return list, nil
}

func UnmarshalPerfList(data []byte) (*PerfList, error) {
	list := new(PerfList)
	decoder := bin.NewBorshDecoder(data)
	if err := list.UnmarshalWithDecoder(decoder); err != nil {
		return nil, err
	}
	return list, nil
}

// StakeAccountEntry pairs a derived stake account address with its
// point-in-time view.
type StakeAccountEntry struct {
	Address solana.PublicKey
	Account sol.StakeAccount
}

// Snapshot is the immutable picture of every account maintenance decisions
// read, taken as close to atomically as the RPC interface allows. All
// decision methods are pure functions over it: same snapshot, same answer.
type Snapshot struct {
	ProducedAt time.Time

	ProgramID   solana.PublicKey
	PoolAddress solana.PublicKey

	Pool           PoolState
	Validators     ValidatorList
	ValidatorPerfs PerfList
	Maintainers    MaintainerList

	// Per validator, index-aligned with Validators.Entries.
	ValidatorStakeAccounts    [][]StakeAccountEntry
	ValidatorUnstakeAccounts  [][]StakeAccountEntry
	ValidatorVoteViews        []*sol.VoteView
	ValidatorIdentityBalances []sol.Lamports
	ValidatorInfos            []sol.ValidatorInfo

	// BlockProductionRates are per-validator Per64 rates, nil where the
	// cluster gave the validator no leader slots to judge it by.
	BlockProductionRates []*uint64

	// Index-aligned with Maintainers.Entries.
	MaintainerBalances []sol.Lamports

	StSolMint      token.Mint
	ReserveAddress solana.PublicKey
	ReserveBalance sol.Lamports

	Rent          sol.Rent
	Clock         sol.Clock
	EpochSchedule sol.EpochSchedule
	StakeHistory  sol.StakeHistory

	// Maintainer is the account we sign with, zero when running read-only.
	Maintainer solana.PublicKey

	StakeTime           StakeTime
	EndOfEpochThreshold uint8
}

// EffectiveReserve is the part of the reserve that can be spent on
// staking, keeping the account rent-exempt.
func (s *Snapshot) EffectiveReserve() sol.Lamports {
	return s.ReserveBalance.SaturatingSub(s.Rent.MinimumBalance(0))
}

// SlotsIntoEpoch is how far the clock has advanced into the current epoch.
func (s *Snapshot) SlotsIntoEpoch() uint64 {
	return s.Clock.Slot - s.EpochSchedule.FirstSlotInEpoch(s.Clock.Epoch)
}

// IsAtEpochEnd reports whether the epoch has elapsed at least the
// configured threshold, the window where end-of-epoch duties run.
func (s *Snapshot) IsAtEpochEnd() bool {
	elapsed := sol.Rational{Numerator: s.SlotsIntoEpoch(), Denominator: s.EpochSchedule.SlotsInEpoch(s.Clock.Epoch)}
	threshold := sol.Rational{Numerator: uint64(s.EndOfEpochThreshold), Denominator: 100}
	return elapsed.Cmp(threshold) >= 0
}

// ConfirmShouldStakeUnstake answers whether stake may be moved now under
// the configured stake time policy. Unlike IsAtEpochEnd the threshold here
// must be strictly exceeded.
func (s *Snapshot) ConfirmShouldStakeUnstake() bool {
	switch s.StakeTime {
	case StakeTimeOnlyNearEpochEnd:
		begin := s.EpochSchedule.FirstSlotInEpoch(s.Clock.Epoch)
		end := s.EpochSchedule.FirstSlotInEpoch(s.Clock.Epoch + 1)
		elapsed := sol.Rational{Numerator: s.Clock.Slot - begin, Denominator: end - begin}
		threshold := sol.Rational{Numerator: uint64(s.EndOfEpochThreshold), Denominator: 100}
		return elapsed.Cmp(threshold) > 0
	default:
		return true
	}
}

// FindMaintainerIndex returns our maintainer's position in the maintainer
// list, or false when we are not a member.
func (s *Snapshot) FindMaintainerIndex() (int, bool) {
	for i, m := range s.Maintainers.Entries {
		if m.PubkeyAddress.Equals(s.Maintainer) {
			return i, true
		}
	}
	return 0, false
}

// FindValidatorIndex returns the list position of a vote account.
func (s *Snapshot) FindValidatorIndex(voteAccount solana.PublicKey) (int, error) {
	for i, v := range s.Validators.Entries {
		if v.VoteAccountAddress.Equals(voteAccount) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrValidatorNotFound, voteAccount.String())
}

// ValidatorName returns the best display name we have for a validator.
func (s *Snapshot) ValidatorName(index int) string {
	if index < len(s.ValidatorInfos) {
		if name := s.ValidatorInfos[index].SanitizedName(); name != "" {
			return name
		}
	}
	return s.Validators.Entries[index].VoteAccountAddress.String()
}
