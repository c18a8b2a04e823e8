package sol

import (
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// StakeStateSize is the serialized size of a stake account's data.
const StakeStateSize = 200

const (
	StakeStateUninitialized uint32 = iota
	StakeStateInitialized
	StakeStateDelegated
	StakeStateRewardsPool
)

const (
	defaultWarmupCooldownRate = 0.25
	newWarmupCooldownRate     = 0.09
)

type StakeAuthorized struct {
	Staker     solana.PublicKey
	Withdrawer solana.PublicKey
}

type StakeLockup struct {
	UnixTimestamp int64
	Epoch         uint64
	Custodian     solana.PublicKey
}

type StakeMeta struct {
	RentExemptReserve uint64
	Authorized        StakeAuthorized
	Lockup            StakeLockup
}

// Delegation records what a stake account delegates to and when the
// delegation started or stopped.
type Delegation struct {
	VoterPubkey        solana.PublicKey
	StakeLamports      uint64
	ActivationEpoch    uint64
	DeactivationEpoch  uint64
	WarmupCooldownRate float64
}

// StakeState is the decoded data of a stake account. Meta is valid from
// StakeStateInitialized on, Delegation and CreditsObserved only for
// StakeStateDelegated.
type StakeState struct {
	Status          uint32
	Meta            StakeMeta
	Delegation      Delegation
	CreditsObserved uint64
	Flags           byte
}

func (authorized *StakeAuthorized) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	staker, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(authorized.Staker[:], staker)

	withdrawer, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(authorized.Withdrawer[:], withdrawer)
	return nil
}

func (lockup *StakeLockup) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	lockup.UnixTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return err
	}

	lockup.Epoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	custodian, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(lockup.Custodian[:], custodian)
	return nil
}

func (meta *StakeMeta) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	meta.RentExemptReserve, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	err = meta.Authorized.UnmarshalWithDecoder(decoder)
	if err != nil {
		return err
	}

	return meta.Lockup.UnmarshalWithDecoder(decoder)
}

func (delegation *Delegation) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	voter, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(delegation.VoterPubkey[:], voter)

	delegation.StakeLamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	delegation.ActivationEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	delegation.DeactivationEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	delegation.WarmupCooldownRate, err = decoder.ReadFloat64(bin.LE)
	return err
}

func (state *StakeState) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	state.Status, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}

	switch state.Status {
	case StakeStateUninitialized, StakeStateRewardsPool:
		return nil
	case StakeStateInitialized:
		return state.Meta.UnmarshalWithDecoder(decoder)
	case StakeStateDelegated:
		err = state.Meta.UnmarshalWithDecoder(decoder)
		if err != nil {
			return err
		}
		err = state.Delegation.UnmarshalWithDecoder(decoder)
		if err != nil {
			return err
		}
		state.CreditsObserved, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}
		state.Flags, err = decoder.ReadByte()
		return err
	default:
		return fmt.Errorf("unknown stake state %d", state.Status)
	}
}

func UnmarshalStakeState(data []byte) (*StakeState, error) {
	state := new(StakeState)
	decoder := bin.NewBinDecoder(data)
	err := state.UnmarshalWithDecoder(decoder)
	if err != nil {
		return nil, err
	}
	return state, nil
}

func warmupCooldownRate(currentEpoch uint64, newRateActivationEpoch *uint64) float64 {
	if newRateActivationEpoch == nil || currentEpoch < *newRateActivationEpoch {
		return defaultWarmupCooldownRate
	}
	return newWarmupCooldownRate
}

// IsBootstrap reports whether the delegation was created at genesis, which
// activates immediately instead of warming up.
func (delegation *Delegation) IsBootstrap() bool {
	return delegation.ActivationEpoch == math.MaxUint64
}

// StakeAndActivating returns the delegation's effective and
// still-activating lamports at targetEpoch, replaying the cluster-wide
// warmup history the way the runtime does.
func (delegation *Delegation) StakeAndActivating(targetEpoch uint64, history StakeHistory, newRateActivationEpoch *uint64) (uint64, uint64) {
	delegatedStake := delegation.StakeLamports

	if delegation.IsBootstrap() {
		return delegatedStake, 0
	}
	if delegation.ActivationEpoch == delegation.DeactivationEpoch {
		// Activated and deactivated in the same epoch, never took effect.
		return 0, 0
	}
	if targetEpoch == delegation.ActivationEpoch {
		return 0, delegatedStake
	}
	if targetEpoch < delegation.ActivationEpoch {
		return 0, 0
	}

	prevClusterStake := history.Get(delegation.ActivationEpoch)
	if prevClusterStake == nil {
		// No history between activation and target, assume fully warmed up.
		return delegatedStake, 0
	}

	prevEpoch := delegation.ActivationEpoch
	currentEffectiveStake := uint64(0)
	for {
		currentEpoch := prevEpoch + 1
		if prevClusterStake.Activating == 0 {
			break
		}

		// The account's share of this epoch's cluster-wide warmup budget.
		remainingActivatingStake := delegatedStake - currentEffectiveStake
		weight := float64(remainingActivatingStake) / float64(prevClusterStake.Activating)
		newlyEffectiveClusterStake := float64(prevClusterStake.Effective) * warmupCooldownRate(currentEpoch, newRateActivationEpoch)
		newlyEffectiveStake := uint64(weight * newlyEffectiveClusterStake)
		if newlyEffectiveStake < 1 {
			newlyEffectiveStake = 1
		}

		currentEffectiveStake += newlyEffectiveStake
		if currentEffectiveStake >= delegatedStake {
			currentEffectiveStake = delegatedStake
			break
		}

		if currentEpoch >= targetEpoch || currentEpoch >= delegation.DeactivationEpoch {
			break
		}
		currentClusterStake := history.Get(currentEpoch)
		if currentClusterStake == nil {
			break
		}
		prevEpoch = currentEpoch
		prevClusterStake = currentClusterStake
	}
	return currentEffectiveStake, delegatedStake - currentEffectiveStake
}

// StakeActivatingAndDeactivating returns the full breakdown of the
// delegation's lamports at targetEpoch.
func (delegation *Delegation) StakeActivatingAndDeactivating(targetEpoch uint64, history StakeHistory, newRateActivationEpoch *uint64) StakeHistoryEntry {
	effectiveStake, activatingStake := delegation.StakeAndActivating(targetEpoch, history, newRateActivationEpoch)

	if targetEpoch < delegation.DeactivationEpoch {
		return StakeHistoryEntry{Effective: effectiveStake, Activating: activatingStake}
	}
	if targetEpoch == delegation.DeactivationEpoch {
		return StakeHistoryEntry{Effective: effectiveStake, Deactivating: effectiveStake}
	}

	prevClusterStake := history.Get(delegation.DeactivationEpoch)
	if prevClusterStake == nil {
		// No history since deactivation, assume fully cooled down.
		return StakeHistoryEntry{}
	}

	prevEpoch := delegation.DeactivationEpoch
	currentEffectiveStake := effectiveStake
	for {
		currentEpoch := prevEpoch + 1
		if prevClusterStake.Deactivating == 0 {
			break
		}

		weight := float64(currentEffectiveStake) / float64(prevClusterStake.Deactivating)
		newlyNotEffectiveClusterStake := float64(prevClusterStake.Effective) * warmupCooldownRate(currentEpoch, newRateActivationEpoch)
		newlyNotEffectiveStake := uint64(weight * newlyNotEffectiveClusterStake)
		if newlyNotEffectiveStake < 1 {
			newlyNotEffectiveStake = 1
		}

		if newlyNotEffectiveStake > currentEffectiveStake {
			currentEffectiveStake = 0
		} else {
			currentEffectiveStake -= newlyNotEffectiveStake
		}
		if currentEffectiveStake == 0 {
			break
		}

		if currentEpoch >= targetEpoch {
			break
		}
		currentClusterStake := history.Get(currentEpoch)
		if currentClusterStake == nil {
			break
		}
		prevEpoch = currentEpoch
		prevClusterStake = currentClusterStake
	}
	return StakeHistoryEntry{Effective: currentEffectiveStake, Deactivating: currentEffectiveStake}
}

// StakeBalance splits a stake account's lamports by activation status.
// Inactive includes the rent-exempt reserve.
type StakeBalance struct {
	Inactive     Lamports
	Activating   Lamports
	Active       Lamports
	Deactivating Lamports
}

func (balance StakeBalance) Total() Lamports {
	return balance.Inactive.
		Add(balance.Activating).
		Add(balance.Active).
		Add(balance.Deactivating)
}

// StakeAccount is the point-in-time view of one delegated stake account.
type StakeAccount struct {
	Balance         StakeBalance
	CreditsObserved uint64
	ActivationEpoch uint64
	Seed            uint64
}

// NewStakeAccount derives the balance breakdown for a delegated stake
// account holding accountLamports at the snapshot's clock.
func NewStakeAccount(accountLamports Lamports, state *StakeState, clock *Clock, history StakeHistory, seed uint64) StakeAccount {
	status := state.Delegation.StakeActivatingAndDeactivating(clock.Epoch, history, nil)
	return StakeAccount{
		Balance: StakeBalance{
			Inactive:     accountLamports.Sub(Lamports(status.Effective)).Sub(Lamports(status.Activating)),
			Activating:   Lamports(status.Activating),
			Active:       Lamports(status.Effective).Sub(Lamports(status.Deactivating)),
			Deactivating: Lamports(status.Deactivating),
		},
		CreditsObserved: state.CreditsObserved,
		ActivationEpoch: state.Delegation.ActivationEpoch,
		Seed:            seed,
	}
}

// IsInactive reports whether none of the balance is, or is becoming,
// effective stake.
func (account *StakeAccount) IsInactive() bool {
	return account.Balance.Active == 0 &&
		account.Balance.Activating == 0 &&
		account.Balance.Deactivating == 0
}

// IsActive reports whether the account is fully warmed up with no pending
// transitions.
func (account *StakeAccount) IsActive() bool {
	return account.Balance.Active > 0 &&
		account.Balance.Activating == 0 &&
		account.Balance.Deactivating == 0
}

func (account *StakeAccount) IsActivating() bool {
	return account.Balance.Activating > 0
}

// CanMerge reports whether other can be merged into this account. The
// runtime accepts merging two fully active accounts, two fully inactive
// accounts, or two accounts activating in the same epoch.
func (account *StakeAccount) CanMerge(other *StakeAccount) bool {
	if account.IsActive() && other.IsActive() {
		return true
	}
	if account.IsInactive() && other.IsInactive() {
		return true
	}
	if account.IsActivating() && other.IsActivating() && account.ActivationEpoch == other.ActivationEpoch {
		return true
	}
	return false
}
