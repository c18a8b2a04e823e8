package sol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochScheduleGeometry(t *testing.T) {
	schedule := DefaultEpochSchedule()

	testCases := []struct {
		name          string
		epoch         uint64
		expectedFirst uint64
		expectedSlots uint64
	}{
		{name: "epoch 0", epoch: 0, expectedFirst: 0, expectedSlots: 32},
		{name: "epoch 1", epoch: 1, expectedFirst: 32, expectedSlots: 64},
		{name: "epoch 2", epoch: 2, expectedFirst: 96, expectedSlots: 128},
		{name: "last warmup epoch", epoch: 13, expectedFirst: 262_112, expectedSlots: 262_144},
		{name: "first normal epoch", epoch: 14, expectedFirst: 524_256, expectedSlots: 432_000},
		{name: "normal epoch", epoch: 15, expectedFirst: 956_256, expectedSlots: 432_000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedFirst, schedule.FirstSlotInEpoch(tc.epoch), "first slot, case: %s", tc.name)
			assert.Equal(t, tc.expectedSlots, schedule.SlotsInEpoch(tc.epoch), "slots in epoch, case: %s", tc.name)
		})
	}

	// Epochs tile the slot space without gaps.
	for epoch := uint64(0); epoch < 20; epoch++ {
		require.Equal(t, schedule.FirstSlotInEpoch(epoch+1),
			schedule.FirstSlotInEpoch(epoch)+schedule.SlotsInEpoch(epoch),
			"epoch %d should end where epoch %d starts", epoch, epoch+1)
	}
}

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()
	assert.Equal(t, Lamports(890_880), rent.MinimumBalance(0))
	assert.Equal(t, Lamports(2_282_880), rent.MinimumBalance(StakeStateSize))
}

func TestStakeHistoryGet(t *testing.T) {
	history := StakeHistory{
		{Epoch: 7, Entry: StakeHistoryEntry{Effective: 700}},
		{Epoch: 6, Entry: StakeHistoryEntry{Effective: 600}},
	}
	entry := history.Get(6)
	require.NotNil(t, entry)
	assert.Equal(t, uint64(600), entry.Effective)
	assert.Nil(t, history.Get(5))
}
