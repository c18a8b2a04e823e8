package sol

import (
	"math"

	bin "github.com/gagliardetto/binary"
)

// MinimumSlotsPerEpoch is the length of epoch 0 on clusters that boot with
// epoch warmup enabled. Warmup epochs double until SlotsPerEpoch is reached.
const MinimumSlotsPerEpoch = 32

const accountStorageOverhead = 128

// Clock mirrors the clock sysvar account.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func (clock *Clock) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	clock.Slot, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	clock.EpochStartTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return err
	}

	clock.Epoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	clock.LeaderScheduleEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	clock.UnixTimestamp, err = decoder.ReadInt64(bin.LE)
	return err
}

func UnmarshalClock(data []byte) (*Clock, error) {
	clock := new(Clock)
	decoder := bin.NewBinDecoder(data)
	err := clock.UnmarshalWithDecoder(decoder)
	if err != nil {
		return nil, err
	}
	return clock, nil
}

// Rent mirrors the rent sysvar account.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         byte
}

// DefaultRent returns the parameters every current cluster runs with.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
		BurnPercent:         50,
	}
}

// MinimumBalance is the smallest balance at which an account with dataLen
// bytes of data is exempt from rent collection.
func (rent *Rent) MinimumBalance(dataLen uint64) Lamports {
	accountBytes := accountStorageOverhead + dataLen
	return Lamports(uint64(float64(accountBytes*rent.LamportsPerByteYear) * rent.ExemptionThreshold))
}

func (rent *Rent) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	rent.LamportsPerByteYear, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	rent.ExemptionThreshold, err = decoder.ReadFloat64(bin.LE)
	if err != nil {
		return err
	}

	rent.BurnPercent, err = decoder.ReadByte()
	return err
}

func UnmarshalRent(data []byte) (*Rent, error) {
	rent := new(Rent)
	decoder := bin.NewBinDecoder(data)
	err := rent.UnmarshalWithDecoder(decoder)
	if err != nil {
		return nil, err
	}
	return rent, nil
}

// EpochSchedule mirrors the epoch schedule sysvar account and answers the
// slot arithmetic questions around it.
type EpochSchedule struct {
	SlotsPerEpoch            uint64
	LeaderScheduleSlotOffset uint64
	Warmup                   bool
	FirstNormalEpoch         uint64
	FirstNormalSlot          uint64
}

// DefaultEpochSchedule returns the mainnet schedule: 432k slot epochs after
// 14 power-of-two warmup epochs.
func DefaultEpochSchedule() EpochSchedule {
	return EpochSchedule{
		SlotsPerEpoch:            432_000,
		LeaderScheduleSlotOffset: 432_000,
		Warmup:                   true,
		FirstNormalEpoch:         14,
		FirstNormalSlot:          524_256,
	}
}

// SlotsInEpoch returns the number of slots in the given epoch. Warmup epoch
// e spans MinimumSlotsPerEpoch<<e slots.
func (schedule *EpochSchedule) SlotsInEpoch(epoch uint64) uint64 {
	if epoch < schedule.FirstNormalEpoch {
		if epoch >= 59 {
			return math.MaxUint64
		}
		return MinimumSlotsPerEpoch << epoch
	}
	return schedule.SlotsPerEpoch
}

// FirstSlotInEpoch returns the slot the given epoch starts at. During
// warmup that is (2^e - 1) * MinimumSlotsPerEpoch.
func (schedule *EpochSchedule) FirstSlotInEpoch(epoch uint64) uint64 {
	if epoch <= schedule.FirstNormalEpoch {
		return ((1 << epoch) - 1) * MinimumSlotsPerEpoch
	}
	return (epoch-schedule.FirstNormalEpoch)*schedule.SlotsPerEpoch + schedule.FirstNormalSlot
}

func (schedule *EpochSchedule) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	schedule.SlotsPerEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	schedule.LeaderScheduleSlotOffset, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	schedule.Warmup, err = decoder.ReadBool()
	if err != nil {
		return err
	}

	schedule.FirstNormalEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	schedule.FirstNormalSlot, err = decoder.ReadUint64(bin.LE)
	return err
}

func UnmarshalEpochSchedule(data []byte) (*EpochSchedule, error) {
	schedule := new(EpochSchedule)
	decoder := bin.NewBinDecoder(data)
	err := schedule.UnmarshalWithDecoder(decoder)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// StakeHistoryEntry is cluster-wide stake, in lamports, by activation state.
type StakeHistoryEntry struct {
	Effective    uint64
	Activating   uint64
	Deactivating uint64
}

func (entry *StakeHistoryEntry) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	entry.Effective, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	entry.Activating, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	entry.Deactivating, err = decoder.ReadUint64(bin.LE)
	return err
}

// StakeHistoryEpochEntry pairs an epoch with its cluster stake totals.
type StakeHistoryEpochEntry struct {
	Epoch uint64
	Entry StakeHistoryEntry
}

// StakeHistory mirrors the stake history sysvar account, newest epoch first.
type StakeHistory []StakeHistoryEpochEntry

// Get returns the entry for the given epoch, or nil when the history does
// not cover it.
func (history StakeHistory) Get(epoch uint64) *StakeHistoryEntry {
	for i := range history {
		if history[i].Epoch == epoch {
			return &history[i].Entry
		}
	}
	return nil
}

func UnmarshalStakeHistory(data []byte) (StakeHistory, error) {
	decoder := bin.NewBinDecoder(data)
	numEntries, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}

	history := make(StakeHistory, 0, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		var pair StakeHistoryEpochEntry
		pair.Epoch, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		err = pair.Entry.UnmarshalWithDecoder(decoder)
		if err != nil {
			return nil, err
		}
		history = append(history, pair)
	}
	return history, nil
}
