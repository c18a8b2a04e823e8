package tide

import (
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentMaintainerDutyWithoutMaintainers(t *testing.T) {
	s := newEmptySnapshot()
	s.Maintainers.Entries = nil
	assert.Nil(t, s.CurrentMaintainerDuty())
}

func TestNextMaintainerDutySlotAgreesWithCurrentDuty(t *testing.T) {
	for numMaintainers := 1; numMaintainers < 10; numMaintainers++ {
		t.Run(fmt.Sprintf("%d maintainers", numMaintainers), func(t *testing.T) {
			s := newEmptySnapshot()
			s.Maintainers.Entries = nil
			for i := 0; i < numMaintainers; i++ {
				s.Maintainers.Entries = append(s.Maintainers.Entries, Maintainer{PubkeyAddress: testPubkey(byte(50 + i))})
			}

			// Walk the maintainers in reverse order first and then forward,
			// so both the same-cycle and the next-cycle branch of the next
			// duty computation get exercised.
			var order []solana.PublicKey
			for i := numMaintainers - 1; i >= 0; i-- {
				order = append(order, s.Maintainers.Entries[i].PubkeyAddress)
			}
			for i := 0; i < numMaintainers; i++ {
				order = append(order, s.Maintainers.Entries[i].PubkeyAddress)
			}

			// Not slot 0, the pause window check would wrap below it.
			s.Clock.Slot = dutySliceSlots

			for _, maintainer := range order {
				startSlot, ok := s.NextMaintainerDutySlot(maintainer)
				require.True(t, ok, "the maintainer is part of the set, it must have a next duty")

				for slot := startSlot - dutyPauseSlots; slot < startSlot; slot++ {
					s.Clock.Slot = slot
					assert.Nil(t, s.CurrentMaintainerDuty(),
						"in slot %d, during the pause before slot %d, nobody has duty", slot, startSlot)
				}
				for slot := startSlot; slot < startSlot+dutySliceSlots-dutyPauseSlots; slot++ {
					s.Clock.Slot = slot
					duty := s.CurrentMaintainerDuty()
					require.NotNil(t, duty)
					assert.Equal(t, maintainer, *duty,
						"maintainer should have duty in slot %d of the slice starting at %d", slot, startSlot)
				}
			}

			_, ok := s.NextMaintainerDutySlot(testPubkey(200))
			assert.False(t, ok, "an outsider has no duty slot")
		})
	}
}

func TestNextMaintainerDutySlotIsStrictlyInTheFuture(t *testing.T) {
	s := newEmptySnapshot()

	for i := 0; i < 10; i++ {
		nextSlot, ok := s.NextMaintainerDutySlot(s.Maintainer)
		require.True(t, ok)
		require.Greater(t, nextSlot, s.Clock.Slot)
		s.Clock.Slot = nextSlot
	}
}
