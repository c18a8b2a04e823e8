package tide

import (
	"github.com/gagliardetto/solana-go"
)

// Maintainers coordinate without talking to each other by slicing time into
// fixed windows of slots and assigning each window to one maintainer by list
// position. The tail of every window is a pause where nobody is on duty, so
// a submission from the previous maintainer can land before the next one
// starts evaluating. The schedule is advisory, any maintainer may still act
// at any time and the program will accept it.
const (
	dutySliceSlots = 100
	dutyPauseSlots = 10
)

// CurrentMaintainerDuty returns the maintainer whose duty window covers the
// given slot, or nil during a pause window or when the list is empty.
func (s *Snapshot) CurrentMaintainerDuty() *solana.PublicKey {
	numMaintainers := uint64(len(s.Maintainers.Entries))
	if numMaintainers == 0 {
		return nil
	}
	if s.Clock.Slot%dutySliceSlots >= dutySliceSlots-dutyPauseSlots {
		return nil
	}
	index := (s.Clock.Slot / dutySliceSlots) % numMaintainers
	duty := s.Maintainers.Entries[index].PubkeyAddress
	return &duty
}

// NextMaintainerDutySlot returns the first slot strictly after the current
// one where the given maintainer's duty window begins. The second return is
// false when the maintainer is not in the list.
func (s *Snapshot) NextMaintainerDutySlot(maintainer solana.PublicKey) (uint64, bool) {
	index := -1
	for i, m := range s.Maintainers.Entries {
		if m.PubkeyAddress.Equals(maintainer) {
			index = i
			break
		}
	}
	if index < 0 {
		return 0, false
	}

	cycle := uint64(len(s.Maintainers.Entries)) * dutySliceSlots
	cycleStart := (s.Clock.Slot / cycle) * cycle
	next := cycleStart + uint64(index)*dutySliceSlots
	if next <= s.Clock.Slot {
		next += cycle
	}
	return next, true
}
