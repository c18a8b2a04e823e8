package tide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mailgun/holster/v4/syncutil"
	"github.com/ssgreg/repeat"

	"github.com/soltide/poolmgr/internal/lib/misc"
	"github.com/soltide/poolmgr/internal/lib/sol"
)

// Pool is the client for one staking pool instance. It reads the pool's
// on-chain state into immutable snapshots and executes the maintenance the
// selector picks. All pool data is consumed through snapshots, so the Pool
// itself carries only configuration and the most recent snapshot.
type Pool struct {
	Logger    *slog.Logger
	rpcClient *rpc.Client
	signer    sol.MultipleKeySigner

	ProgramID   solana.PublicKey
	PoolAddress solana.PublicKey
	Maintainer  solana.PublicKey

	StakeTime           StakeTime
	EndOfEpochThreshold uint8

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	snapshot *Snapshot
}

func New(
	logger *slog.Logger,
	rpcClient *rpc.Client,
	signer sol.MultipleKeySigner,
	programID string,
	poolAddress string,
	maintainer string,
	stakeTime StakeTime,
	endOfEpochThreshold uint8,
) (*Pool, error) {
	pool := &Pool{
		Logger:              logger,
		rpcClient:           rpcClient,
		signer:              signer,
		StakeTime:           stakeTime,
		EndOfEpochThreshold: endOfEpochThreshold,
	}
	var err error
	if pool.ProgramID, err = solana.PublicKeyFromBase58(programID); err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", programID, err)
	}
	if pool.PoolAddress, err = solana.PublicKeyFromBase58(poolAddress); err != nil {
		return nil, fmt.Errorf("invalid pool address %q: %w", poolAddress, err)
	}
	if maintainer != "" {
		if pool.Maintainer, err = solana.PublicKeyFromBase58(maintainer); err != nil {
			return nil, fmt.Errorf("invalid maintainer address %q: %w", maintainer, err)
		}
	}

	misc.Infof(logger, "pool client initialized, program:%s, pool:%s, stake time:%s", pool.ProgramID, pool.PoolAddress, stakeTime)
	return pool, nil
}

func (p *Pool) IsConfigured() bool {
	return !p.ProgramID.IsZero() && !p.PoolAddress.IsZero()
}

// CanSign reports whether the keystore holds the maintainer's signing key,
// without which maintenance is read-only.
func (p *Pool) CanSign() bool {
	return !p.Maintainer.IsZero() && p.signer.HasAccount(p.Maintainer)
}

func (p *Pool) Snapshot() *Snapshot {
	p.RLock()
	defer p.RUnlock()
	return p.snapshot
}

func (p *Pool) setSnapshot(s *Snapshot) {
	p.Lock()
	defer p.Unlock()
	p.snapshot = s
}

// LoadSnapshot reads every pool-relevant account in as few RPC round trips
// as the API allows and assembles the immutable snapshot maintenance
// decisions run on. Prometheus metrics are updated from the loaded state.
func (p *Pool) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	promPolls.Inc()
	s, err := p.loadSnapshot(ctx)
	if err != nil {
		promPollErrors.Inc()
		return nil, err
	}
	publishSnapshotMetrics(s)
	p.setSnapshot(s)
	return s, nil
}

func (p *Pool) loadSnapshot(ctx context.Context) (*Snapshot, error) {
	s := &Snapshot{
		ProducedAt:          time.Now().UTC(),
		ProgramID:           p.ProgramID,
		PoolAddress:         p.PoolAddress,
		Maintainer:          p.Maintainer,
		StakeTime:           p.StakeTime,
		EndOfEpochThreshold: p.EndOfEpochThreshold,
	}
	s.ReserveAddress = FindAuthorityAddress(p.ProgramID, p.PoolAddress, ReserveAccountSeed)

	poolInfo, err := p.rpcClient.GetAccountInfo(ctx, p.PoolAddress)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: no account at %s", ErrCantFetchPoolState, p.PoolAddress)
		}
		return nil, fmt.Errorf("%w: %w", ErrCantFetchPoolState, err)
	}
	pool, err := UnmarshalPoolState(poolInfo.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable account at %s: %w", ErrCantFetchPoolState, p.PoolAddress, err)
	}
	s.Pool = *pool

	if err := p.loadPoolAccounts(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadClusterState(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadValidatorAccounts(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadBalances(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// loadPoolAccounts fetches the three list accounts, the stSOL mint, the
// reserve, and the four sysvars the decisions need, in one batched call.
func (p *Pool) loadPoolAccounts(ctx context.Context, s *Snapshot) error {
	addresses := []solana.PublicKey{
		s.Pool.ValidatorList,
		s.Pool.MaintainerList,
		s.Pool.ValidatorPerfList,
		s.Pool.StSolMint,
		s.ReserveAddress,
		solana.SysVarClockPubkey,
		solana.SysVarRentPubkey,
		solana.SysVarEpochSchedulePubkey,
		solana.SysVarStakeHistoryPubkey,
	}
	result, err := p.rpcClient.GetMultipleAccounts(ctx, addresses...)
	if err != nil {
		return fmt.Errorf("unable to fetch pool list accounts: %w", err)
	}
	accounts := result.Value
	if len(accounts) != len(addresses) {
		return fmt.Errorf("pool account batch returned %d of %d accounts", len(accounts), len(addresses))
	}
	for i, account := range accounts {
		if account == nil {
			return fmt.Errorf("%w: account %s is missing", ErrCantFetchPoolState, addresses[i])
		}
	}

	validators, err := UnmarshalValidatorList(accounts[0].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable validator list %s: %w", s.Pool.ValidatorList, err)
	}
	s.Validators = *validators

	maintainers, err := UnmarshalMaintainerList(accounts[1].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable maintainer list %s: %w", s.Pool.MaintainerList, err)
	}
	s.Maintainers = *maintainers

	perfs, err := UnmarshalPerfList(accounts[2].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable validator perf list %s: %w", s.Pool.ValidatorPerfList, err)
	}
	s.ValidatorPerfs = *perfs

	mint := new(token.Mint)
	if err := mint.UnmarshalWithDecoder(bin.NewBinDecoder(accounts[3].Data.GetBinary())); err != nil {
		return fmt.Errorf("undecodable stSOL mint %s: %w", s.Pool.StSolMint, err)
	}
	s.StSolMint = *mint

	s.ReserveBalance = sol.Lamports(accounts[4].Lamports)

	clock, err := sol.UnmarshalClock(accounts[5].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable clock sysvar: %w", err)
	}
	s.Clock = *clock

	rent, err := sol.UnmarshalRent(accounts[6].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable rent sysvar: %w", err)
	}
	s.Rent = *rent

	schedule, err := sol.UnmarshalEpochSchedule(accounts[7].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable epoch schedule sysvar: %w", err)
	}
	s.EpochSchedule = *schedule

	s.StakeHistory, err = sol.UnmarshalStakeHistory(accounts[8].Data.GetBinary())
	if err != nil {
		return fmt.Errorf("undecodable stake history sysvar: %w", err)
	}
	return nil
}

// loadClusterState fetches the cluster-level data keyed by validator: vote
// accounts, block production, and self-published validator info.
func (p *Pool) loadClusterState(ctx context.Context, s *Snapshot) error {
	voteResult, err := p.rpcClient.GetVoteAccounts(ctx, &rpc.GetVoteAccountsOpts{})
	if err != nil {
		return fmt.Errorf("unable to fetch vote accounts: %w", err)
	}
	voteViews := map[solana.PublicKey]*sol.VoteView{}
	for _, va := range voteResult.Current {
		voteViews[va.VotePubkey] = sol.NewVoteView(va)
	}
	for _, va := range voteResult.Delinquent {
		voteViews[va.VotePubkey] = sol.NewVoteView(va)
	}

	production, err := p.rpcClient.GetBlockProduction(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch block production: %w", err)
	}

	infos, err := sol.GetValidatorInfos(ctx, p.rpcClient)
	if err != nil {
		return fmt.Errorf("unable to fetch validator infos: %w", err)
	}

	numValidators := len(s.Validators.Entries)
	s.ValidatorVoteViews = make([]*sol.VoteView, numValidators)
	s.BlockProductionRates = make([]*uint64, numValidators)
	s.ValidatorInfos = make([]sol.ValidatorInfo, numValidators)
	for i := range s.Validators.Entries {
		view := voteViews[s.Validators.Entries[i].VoteAccountAddress]
		s.ValidatorVoteViews[i] = view
		if view == nil {
			// Closed vote account. The deactivate and remove tasks deal
			// with these, everything else skips them.
			continue
		}
		s.ValidatorInfos[i] = infos[view.NodeIdentity]
		if slots, ok := production.Value.ByIdentity[view.NodeIdentity]; ok && slots[0] > 0 {
			rate := sol.Per64(uint64(slots[1]), uint64(slots[0]))
			s.BlockProductionRates[i] = &rate
		}
	}
	return nil
}

// loadValidatorAccounts walks every validator's derived stake and unstake
// accounts. The per-validator fetches are independent, so they fan out.
func (p *Pool) loadValidatorAccounts(ctx context.Context, s *Snapshot) error {
	numValidators := len(s.Validators.Entries)
	s.ValidatorStakeAccounts = make([][]StakeAccountEntry, numValidators)
	s.ValidatorUnstakeAccounts = make([][]StakeAccountEntry, numValidators)

	fanOut := syncutil.NewFanOut(20)
	for i := range s.Validators.Entries {
		fanOut.Run(func(val any) error {
			index := val.(int)
			validator := &s.Validators.Entries[index]

			stakeAccounts, err := p.fetchStakeAccounts(ctx, s, validator, ValidatorStakeAccountSeed, validator.StakeSeeds)
			if err != nil {
				return fmt.Errorf("validator %s stake accounts: %w", validator.VoteAccountAddress, err)
			}
			unstakeAccounts, err := p.fetchStakeAccounts(ctx, s, validator, ValidatorUnstakeAccountSeed, validator.UnstakeSeeds)
			if err != nil {
				return fmt.Errorf("validator %s unstake accounts: %w", validator.VoteAccountAddress, err)
			}

			// Each job owns its index, no locking needed.
			s.ValidatorStakeAccounts[index] = stakeAccounts
			s.ValidatorUnstakeAccounts[index] = unstakeAccounts
			return nil
		}, i)
	}
	if errs := fanOut.Wait(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// fetchStakeAccounts resolves one validator's derived accounts over a seed
// range. The seeds come from the validator list entry, so every derived
// account must exist and decode; anything else means the snapshot raced a
// list update and the caller should retry with a fresh one.
func (p *Pool) fetchStakeAccounts(ctx context.Context, s *Snapshot, validator *Validator, authority string, seeds SeedRange) ([]StakeAccountEntry, error) {
	if seeds.Count() == 0 {
		return nil, nil
	}
	addresses := make([]solana.PublicKey, 0, seeds.Count())
	for seed := seeds.Begin; seed < seeds.End; seed++ {
		addresses = append(addresses, FindStakeAccountAddress(s.ProgramID, s.PoolAddress, validator.VoteAccountAddress, authority, seed))
	}
	result, err := p.rpcClient.GetMultipleAccounts(ctx, addresses...)
	if err != nil {
		return nil, err
	}

	entries := make([]StakeAccountEntry, 0, len(addresses))
	for i, account := range result.Value {
		seed := seeds.Begin + uint64(i)
		if account == nil {
			return nil, fmt.Errorf("derived account %s (seed %d) does not exist", addresses[i], seed)
		}
		state, err := sol.UnmarshalStakeState(account.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("undecodable stake account %s (seed %d): %w", addresses[i], seed, err)
		}
		entries = append(entries, StakeAccountEntry{
			Address: addresses[i],
			Account: sol.NewStakeAccount(sol.Lamports(account.Lamports), state, &s.Clock, s.StakeHistory, seed),
		})
	}
	return entries, nil
}

// loadBalances fetches the lamport balances of the maintainers and of the
// validators' node identity accounts.
func (p *Pool) loadBalances(ctx context.Context, s *Snapshot) error {
	maintainers := make([]solana.PublicKey, len(s.Maintainers.Entries))
	for i := range s.Maintainers.Entries {
		maintainers[i] = s.Maintainers.Entries[i].PubkeyAddress
	}
	balances, err := p.fetchBalances(ctx, maintainers)
	if err != nil {
		return fmt.Errorf("unable to fetch maintainer balances: %w", err)
	}
	s.MaintainerBalances = balances

	identities := make([]solana.PublicKey, len(s.ValidatorVoteViews))
	for i, view := range s.ValidatorVoteViews {
		if view != nil {
			identities[i] = view.NodeIdentity
		}
	}
	s.ValidatorIdentityBalances, err = p.fetchBalances(ctx, identities)
	if err != nil {
		return fmt.Errorf("unable to fetch identity balances: %w", err)
	}
	return nil
}

func (p *Pool) fetchBalances(ctx context.Context, accounts []solana.PublicKey) ([]sol.Lamports, error) {
	balances := make([]sol.Lamports, len(accounts))
	if len(accounts) == 0 {
		return balances, nil
	}
	result, err := p.rpcClient.GetMultipleAccounts(ctx, accounts...)
	if err != nil {
		return nil, err
	}
	for i, account := range result.Value {
		if account != nil {
			balances[i] = sol.Lamports(account.Lamports)
		}
	}
	return balances, nil
}

// PerformMaintenance selects at most one maintenance action from the
// snapshot and submits it. It returns what was done, nil when the pool
// needed nothing.
func (p *Pool) PerformMaintenance(ctx context.Context, s *Snapshot) (MaintenanceOutput, error) {
	instruction, err := s.SelectMaintenance()
	if err != nil {
		return nil, err
	}
	if instruction == nil {
		return nil, nil
	}
	if !p.CanSign() {
		return nil, fmt.Errorf("maintenance %s selected but no signing key for maintainer %s is loaded", instruction.Output.TaskName(), p.Maintainer)
	}

	if err := p.submitInstruction(ctx, instruction); err != nil {
		return nil, fmt.Errorf("unable to perform %s: %w", instruction.Output.TaskName(), err)
	}
	promMaintenancePerformed.WithLabelValues(instruction.Output.TaskName()).Inc()
	return instruction.Output, nil
}

// submitInstruction signs and sends one instruction as its own transaction
// and waits for the cluster to confirm it.
func (p *Pool) submitInstruction(ctx context.Context, instruction *MaintenanceInstruction) error {
	blockhash := sol.LatestBlockhash(ctx, p.Logger, p.rpcClient)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction.Instruction},
		blockhash,
		solana.TransactionPayer(p.Maintainer),
	)
	if err != nil {
		return fmt.Errorf("unable to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range instruction.AdditionalSigners {
			if instruction.AdditionalSigners[i].PublicKey().Equals(key) {
				return &instruction.AdditionalSigners[i]
			}
		}
		return p.signer.PrivateKeyFor(key)
	})
	if err != nil {
		return fmt.Errorf("unable to sign transaction: %w", err)
	}

	signature, err := p.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return fmt.Errorf("unable to send transaction: %w", err)
	}
	misc.Debugf(p.Logger, "sent transaction %s", signature)

	return p.confirmTransaction(ctx, signature)
}

// confirmTransaction polls the signature status until the cluster confirms
// it. The loop is bounded so a dropped transaction does not wedge the
// daemon; the next cycle re-derives whatever is still needed.
func (p *Pool) confirmTransaction(ctx context.Context, signature solana.Signature) error {
	return repeat.Repeat(
		repeat.Fn(func() error {
			statuses, err := p.rpcClient.GetSignatureStatuses(ctx, false, signature)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			if len(statuses.Value) == 0 || statuses.Value[0] == nil {
				return repeat.HintTemporary(fmt.Errorf("transaction %s not yet known", signature))
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return repeat.HintStop(fmt.Errorf("transaction %s failed: %v", signature, status.Err))
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
			return repeat.HintTemporary(fmt.Errorf("transaction %s is %s", signature, status.ConfirmationStatus))
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(30),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 1 * time.Second,
				MaxDelay:  3 * time.Second,
			}).Set(),
		),
	)
}
