package tide

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/soltide/poolmgr/internal/lib/sol"
)

var stakeConfigAddress = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")

// mustFindProgramAddress wraps solana.FindProgramAddress for the derivations
// below. Derivation only fails when all 256 bump seeds produce a point on the
// curve, which does not happen for real inputs.
func mustFindProgramAddress(seeds [][]byte, programID solana.PublicKey) solana.PublicKey {
	address, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		panic(fmt.Sprintf("program address derivation failed: %v", err))
	}
	return address
}

// FindAuthorityAddress derives one of the pool's authority addresses, such
// as the stake authority or mint authority.
func FindAuthorityAddress(programID, pool solana.PublicKey, authority string) solana.PublicKey {
	return mustFindProgramAddress([][]byte{pool.Bytes(), []byte(authority)}, programID)
}

// FindStakeAccountAddress derives the address of a stake or unstake account
// of a validator at the given seed. Pass ValidatorStakeAccountSeed or
// ValidatorUnstakeAccountSeed for the authority.
func FindStakeAccountAddress(programID, pool, voteAccount solana.PublicKey, authority string, seed uint64) solana.PublicKey {
	seedBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seedBytes, seed)
	return mustFindProgramAddress([][]byte{pool.Bytes(), voteAccount.Bytes(), []byte(authority), seedBytes}, programID)
}

// FindTemporaryStakeAccountAddress derives the address of a stake account
// that only exists during one transaction, when a deposit is staked and then
// immediately merged into an existing account. The current epoch is part of
// the derivation so the address cannot collide with a past leftover.
func FindTemporaryStakeAccountAddress(programID, pool, voteAccount solana.PublicKey, seed, epoch uint64) solana.PublicKey {
	epochBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(epochBytes, epoch)
	authority := append([]byte(ValidatorStakeAccountSeed), epochBytes...)

	seedBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seedBytes, seed)
	return mustFindProgramAddress([][]byte{pool.Bytes(), voteAccount.Bytes(), authority, seedBytes}, programID)
}

// StakeAuthority is the program-derived account that owns the pool's stake
// accounts.
func (s *Snapshot) StakeAuthority() solana.PublicKey {
	return FindAuthorityAddress(s.ProgramID, s.PoolAddress, StakeAuthoritySeed)
}

// MintAuthority is the program-derived account allowed to mint stSOL.
func (s *Snapshot) MintAuthority() solana.PublicKey {
	return FindAuthorityAddress(s.ProgramID, s.PoolAddress, MintAuthoritySeed)
}

// ReserveAccount is the program-derived account that holds the undelegated
// SOL.
func (s *Snapshot) ReserveAccount() solana.PublicKey {
	return FindAuthorityAddress(s.ProgramID, s.PoolAddress, ReserveAccountSeed)
}

// Instruction data is the one-byte opcode followed by the borsh encoding of
// the operands.

func encodeInstructionData(opcode uint8, write func(encoder *bin.Encoder) error) []byte {
	buffer := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buffer)
	err := encoder.WriteByte(opcode)
	if err == nil && write != nil {
		err = write(encoder)
	}
	if err != nil {
		// The buffer target cannot fail a write.
		panic(fmt.Sprintf("encoding instruction data failed: %v", err))
	}
	return buffer.Bytes()
}

func (s *Snapshot) newStakeDepositInstruction(voteAccount, stakeAccountMergeInto, stakeAccountEnd solana.PublicKey, amount sol.Lamports, validatorIndex, maintainerIndex uint32) solana.Instruction {
	data := encodeInstructionData(InstructionStakeDeposit, func(encoder *bin.Encoder) error {
		if err := encoder.WriteUint64(uint64(amount), bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteUint32(validatorIndex, bin.LE); err != nil {
			return err
		}
		return encoder.WriteUint32(maintainerIndex, bin.LE)
	})
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress).WRITE(),
		solana.Meta(s.Maintainer).SIGNER(),
		solana.Meta(s.ReserveAddress).WRITE(),
		solana.Meta(voteAccount),
		solana.Meta(stakeAccountMergeInto).WRITE(),
		solana.Meta(stakeAccountEnd).WRITE(),
		solana.Meta(s.StakeAuthority()),
		solana.Meta(s.Pool.ValidatorList).WRITE(),
		solana.Meta(s.Pool.MaintainerList),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.StakeProgramID),
		solana.Meta(solana.SysVarStakeHistoryPubkey),
		solana.Meta(stakeConfigAddress),
	}
	return solana.NewInstruction(s.ProgramID, accounts, data)
}

func (s *Snapshot) newUnstakeInstruction(voteAccount, sourceStakeAccount, destinationUnstakeAccount solana.PublicKey, amount sol.Lamports, validatorIndex, maintainerIndex uint32) solana.Instruction {
	data := encodeInstructionData(InstructionUnstake, func(encoder *bin.Encoder) error {
		if err := encoder.WriteUint64(uint64(amount), bin.LE); err != nil {
			return err
		}
		if err := encoder.WriteUint32(validatorIndex, bin.LE); err != nil {
			return err
		}
		return encoder.WriteUint32(maintainerIndex, bin.LE)
	})
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress),
		solana.Meta(s.Maintainer).SIGNER(),
		solana.Meta(voteAccount),
		solana.Meta(sourceStakeAccount).WRITE(),
		solana.Meta(destinationUnstakeAccount).WRITE(),
		solana.Meta(s.StakeAuthority()),
		solana.Meta(s.Pool.ValidatorList).WRITE(),
		solana.Meta(s.Pool.MaintainerList),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.StakeProgramID),
	}
	return solana.NewInstruction(s.ProgramID, accounts, data)
}

func (s *Snapshot) newMergeStakeInstruction(voteAccount, fromStake, toStake solana.PublicKey, validatorIndex uint32) solana.Instruction {
	data := encodeInstructionData(InstructionMergeStake, func(encoder *bin.Encoder) error {
		return encoder.WriteUint32(validatorIndex, bin.LE)
	})
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress),
		solana.Meta(voteAccount),
		solana.Meta(fromStake).WRITE(),
		solana.Meta(toStake).WRITE(),
		solana.Meta(s.StakeAuthority()),
		solana.Meta(s.Pool.ValidatorList).WRITE(),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SysVarStakeHistoryPubkey),
		solana.Meta(solana.StakeProgramID),
	}
	return solana.NewInstruction(s.ProgramID, accounts, data)
}

func (s *Snapshot) newUpdateExchangeRateInstruction() solana.Instruction {
	data := encodeInstructionData(InstructionUpdateExchangeRate, nil)
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress).WRITE(),
		solana.Meta(s.ReserveAddress),
		solana.Meta(s.Pool.StSolMint),
		solana.Meta(s.Pool.ValidatorList),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SysVarRentPubkey),
	}
	return solana.NewInstruction(s.ProgramID, accounts, data)
}

func (s *Snapshot) newUpdateStakeAccountBalanceInstruction(voteAccount solana.PublicKey, stakeAccounts []solana.PublicKey, validatorIndex uint32) solana.Instruction {
	data := encodeInstructionData(InstructionUpdateStakeAccountBalance, func(encoder *bin.Encoder) error {
		return encoder.WriteUint32(validatorIndex, bin.LE)
	})
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress).WRITE(),
		solana.Meta(voteAccount),
	}
	for _, stakeAccount := range stakeAccounts {
		accounts = append(accounts, solana.Meta(stakeAccount).WRITE())
	}
	accounts = append(accounts,
		solana.Meta(s.ReserveAddress).WRITE(),
		solana.Meta(s.StakeAuthority()),
		solana.Meta(s.MintAuthority()),
		solana.Meta(s.Pool.StSolMint).WRITE(),
		solana.Meta(s.Pool.FeeRecipients.TreasuryAccount).WRITE(),
		solana.Meta(s.Pool.FeeRecipients.DeveloperAccount).WRITE(),
		solana.Meta(s.Pool.ValidatorList).WRITE(),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SysVarStakeHistoryPubkey),
		solana.Meta(solana.StakeProgramID),
		solana.Meta(solana.TokenProgramID),
	)
	return solana.NewInstruction(s.ProgramID, accounts, data)
}

func (s *Snapshot) perfListAccounts(voteAccount solana.PublicKey, validatorListWritable bool) solana.AccountMetaSlice {
	validatorList := solana.Meta(s.Pool.ValidatorList)
	if validatorListWritable {
		validatorList = validatorList.WRITE()
	}
	return solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress),
		solana.Meta(voteAccount),
		validatorList,
		solana.Meta(s.Pool.ValidatorPerfList).WRITE(),
		solana.Meta(solana.SysVarClockPubkey),
	}
}

func (s *Snapshot) newUpdateOnchainValidatorPerfInstruction(voteAccount solana.PublicKey) solana.Instruction {
	data := encodeInstructionData(InstructionUpdateOnchainValidatorPerf, nil)
	return solana.NewInstruction(s.ProgramID, s.perfListAccounts(voteAccount, false), data)
}

func (s *Snapshot) newUpdateOffchainValidatorPerfInstruction(voteAccount solana.PublicKey, blockProductionRate, voteSuccessRate uint64) solana.Instruction {
	data := encodeInstructionData(InstructionUpdateOffchainValidatorPerf, func(encoder *bin.Encoder) error {
		if err := encoder.WriteUint64(blockProductionRate, bin.LE); err != nil {
			return err
		}
		return encoder.WriteUint64(voteSuccessRate, bin.LE)
	})
	return solana.NewInstruction(s.ProgramID, s.perfListAccounts(voteAccount, false), data)
}

func (s *Snapshot) newDeactivateIfViolatesInstruction(voteAccount solana.PublicKey) solana.Instruction {
	data := encodeInstructionData(InstructionDeactivateIfViolates, nil)
	return solana.NewInstruction(s.ProgramID, s.perfListAccounts(voteAccount, true), data)
}

func (s *Snapshot) newReactivateIfCompliesInstruction(voteAccount solana.PublicKey) solana.Instruction {
	data := encodeInstructionData(InstructionReactivateIfComplies, nil)
	return solana.NewInstruction(s.ProgramID, s.perfListAccounts(voteAccount, true), data)
}

func (s *Snapshot) newRemoveValidatorInstruction(voteAccount solana.PublicKey, validatorIndex uint32) solana.Instruction {
	data := encodeInstructionData(InstructionRemoveValidator, func(encoder *bin.Encoder) error {
		return encoder.WriteUint32(validatorIndex, bin.LE)
	})
	accounts := solana.AccountMetaSlice{
		solana.Meta(s.PoolAddress),
		solana.Meta(voteAccount),
		solana.Meta(s.Pool.ValidatorList).WRITE(),
	}
	return solana.NewInstruction(s.ProgramID, accounts, data)
}
