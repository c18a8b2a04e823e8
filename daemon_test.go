package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	"github.com/soltide/poolmgr/internal/lib/tide"
)

func TestDurationUntilSlot(t *testing.T) {
	testCases := []struct {
		name        string
		currentSlot uint64
		targetSlot  uint64
		slotTime    time.Duration
		expectedSec float64
	}{
		{"same slot", 1000, 1000, 400 * time.Millisecond, 0},
		{"target already passed", 1000, 900, 400 * time.Millisecond, 0},
		{"one window ahead", 1000, 1100, 400 * time.Millisecond, 40},
		{"half a window ahead", 1000, 1050, 400 * time.Millisecond, 20},
		{"slow slots", 1000, 1010, 600 * time.Millisecond, 6},
		{"full epoch ahead", 0, 432_000, 400 * time.Millisecond, 432_000 * 0.4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := durationUntilSlot(tc.currentSlot, tc.targetSlot, tc.slotTime)

			assert.InDelta(t, tc.expectedSec, actual.Seconds(), 0.01,
				"case: %s, expected around %f seconds but got %v", tc.name, tc.expectedSec, actual)
		})
	}
}

func TestDurationToNextDuty(t *testing.T) {
	var (
		mainA = solana.PublicKey{0xa1}
		mainB = solana.PublicKey{0xb2}
		mainC = solana.PublicKey{0xc3}
	)
	mkSnapshot := func(slot uint64, maintainer solana.PublicKey, members ...solana.PublicKey) *tide.Snapshot {
		s := &tide.Snapshot{Maintainer: maintainer}
		s.Clock.Slot = slot
		for _, m := range members {
			s.Maintainers.Entries = append(s.Maintainers.Entries, tide.Maintainer{PubkeyAddress: m})
		}
		return s
	}
	mkDaemon := func() *Daemon {
		return &Daemon{
			logger:       slog.Default(),
			pollInterval: time.Minute,
			avgSlotTime:  400 * time.Millisecond,
		}
	}

	// Duty windows are 100 slots with a 10 slot pause at the tail, so with
	// two maintainers A holds [0,90) and [200,290), B holds [100,190).

	testCases := []struct {
		name        string
		snapshot    *tide.Snapshot
		expectedSec float64
	}{
		{"on duty acts now", mkSnapshot(50, mainA, mainA, mainB), 0},
		{"other maintainer on duty", mkSnapshot(50, mainB, mainA, mainB), 20},
		{"pause window waits for own slot", mkSnapshot(95, mainA, mainA, mainB), 42},
		{"second window holder on duty", mkSnapshot(150, mainB, mainA, mainB), 0},
		{"wait capped at poll interval", mkSnapshot(95, mainA, mainA, mainB, mainC), 60},
		{"not a member acts anyway", mkSnapshot(50, mainC, mainA, mainB), 0},
		{"empty maintainer list acts anyway", mkSnapshot(50, mainA), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := mkDaemon().durationToNextDuty(tc.snapshot)

			assert.InDelta(t, tc.expectedSec, actual.Seconds(), 0.01,
				"case: %s, expected around %f seconds but got %v", tc.name, tc.expectedSec, actual)
		})
	}
}

func TestDurationToNextDutyWarnsOnlyOnce(t *testing.T) {
	s := &tide.Snapshot{Maintainer: solana.PublicKey{0xc3}}
	s.Clock.Slot = 50
	s.Maintainers.Entries = []tide.Maintainer{{PubkeyAddress: solana.PublicKey{0xa1}}}

	d := &Daemon{logger: slog.Default(), pollInterval: time.Minute}
	assert.False(t, d.warnedNotInList)
	assert.Zero(t, d.durationToNextDuty(s))
	assert.True(t, d.warnedNotInList)
	assert.Zero(t, d.durationToNextDuty(s))
}
