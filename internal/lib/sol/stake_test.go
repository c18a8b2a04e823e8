package sol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStakeBalanceBreakdown(t *testing.T) {
	clock := &Clock{Slot: 100, Epoch: 6}

	testCases := []struct {
		name     string
		lamports Lamports
		state    StakeState
		history  StakeHistory
		expected StakeBalance
	}{
		{
			name:     "bootstrap stake is fully active",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   math.MaxUint64,
					DeactivationEpoch: math.MaxUint64,
				},
			},
			expected: StakeBalance{Inactive: 100, Active: 1_000},
		},
		{
			name:     "activated this epoch is all activating",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   6,
					DeactivationEpoch: math.MaxUint64,
				},
			},
			expected: StakeBalance{Inactive: 100, Activating: 1_000},
		},
		{
			name:     "no history since activation counts as warmed up",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   2,
					DeactivationEpoch: math.MaxUint64,
				},
			},
			expected: StakeBalance{Inactive: 100, Active: 1_000},
		},
		{
			name:     "one warmup step against cluster history",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   5,
					DeactivationEpoch: math.MaxUint64,
				},
			},
			history: StakeHistory{
				{Epoch: 5, Entry: StakeHistoryEntry{Effective: 1_000, Activating: 1_000}},
			},
			// 25% of the cluster's effective stake may newly activate, and
			// this account is the only activating one.
			expected: StakeBalance{Inactive: 100, Activating: 750, Active: 250},
		},
		{
			name:     "deactivating this epoch still counts as effective",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   math.MaxUint64,
					DeactivationEpoch: 6,
				},
			},
			expected: StakeBalance{Inactive: 100, Deactivating: 1_000},
		},
		{
			name:     "one cooldown step against cluster history",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   math.MaxUint64,
					DeactivationEpoch: 5,
				},
			},
			history: StakeHistory{
				{Epoch: 5, Entry: StakeHistoryEntry{Effective: 4_000, Deactivating: 2_000}},
			},
			// 25% of 4000 may newly deactivate, this account owns half the
			// deactivating stake, so 500 left cooling down.
			expected: StakeBalance{Inactive: 600, Deactivating: 500},
		},
		{
			name:     "no history since deactivation counts as cooled down",
			lamports: 1_100,
			state: StakeState{
				Status: StakeStateDelegated,
				Delegation: Delegation{
					StakeLamports:     1_000,
					ActivationEpoch:   math.MaxUint64,
					DeactivationEpoch: 3,
				},
			},
			expected: StakeBalance{Inactive: 1_100},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			account := NewStakeAccount(tc.lamports, &tc.state, clock, tc.history, 0)
			assert.Equal(t, tc.expected, account.Balance, "case: %s", tc.name)
			assert.Equal(t, tc.lamports, account.Balance.Total(), "case: %s", tc.name)
		})
	}
}

func TestStakeAccountCanMerge(t *testing.T) {
	active := func(epoch uint64) *StakeAccount {
		return &StakeAccount{Balance: StakeBalance{Inactive: 100, Active: 1_000}, ActivationEpoch: epoch}
	}
	activating := func(epoch uint64) *StakeAccount {
		return &StakeAccount{Balance: StakeBalance{Inactive: 100, Activating: 1_000}, ActivationEpoch: epoch}
	}
	inactive := func() *StakeAccount {
		return &StakeAccount{Balance: StakeBalance{Inactive: 1_100}}
	}
	deactivating := func() *StakeAccount {
		return &StakeAccount{Balance: StakeBalance{Inactive: 100, Deactivating: 1_000}}
	}

	testCases := []struct {
		name     string
		a        *StakeAccount
		b        *StakeAccount
		expected bool
	}{
		{name: "both fully active", a: active(1), b: active(2), expected: true},
		{name: "both inactive", a: inactive(), b: inactive(), expected: true},
		{name: "both activating in same epoch", a: activating(5), b: activating(5), expected: true},
		{name: "activating in different epochs", a: activating(5), b: activating(6), expected: false},
		{name: "active and activating", a: active(1), b: activating(5), expected: false},
		{name: "active and inactive", a: active(1), b: inactive(), expected: false},
		{name: "deactivating never merges", a: deactivating(), b: deactivating(), expected: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.a.CanMerge(tc.b), "case: %s", tc.name)
		})
	}
}
