package sol

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// EpochCredits is one entry of a vote account's credit history.
type EpochCredits struct {
	Epoch       uint64
	Credits     uint64
	PrevCredits uint64
}

// VoteView is the slice of a validator's vote account state that pool
// maintenance decisions read. A validator whose vote account has been
// closed has no VoteView at all.
type VoteView struct {
	VoteAccount    solana.PublicKey
	NodeIdentity   solana.PublicKey
	Commission     uint8
	LastVotedSlot  uint64
	ActivatedStake Lamports
	EpochVote      bool
	EpochCredits   []EpochCredits
}

// NewVoteView converts the RPC representation of a vote account.
func NewVoteView(va rpc.VoteAccountsResult) *VoteView {
	view := &VoteView{
		VoteAccount:    va.VotePubkey,
		NodeIdentity:   va.NodePubkey,
		Commission:     uint8(va.Commission),
		LastVotedSlot:  uint64(va.LastVote),
		ActivatedStake: Lamports(va.ActivatedStake),
		EpochVote:      va.EpochVoteAccount,
	}
	for _, ec := range va.EpochCredits {
		if len(ec) < 3 {
			continue
		}
		view.EpochCredits = append(view.EpochCredits, EpochCredits{
			Epoch:       uint64(ec[0]),
			Credits:     uint64(ec[1]),
			PrevCredits: uint64(ec[2]),
		})
	}
	return view
}

// CurrentEpochCredits returns the vote credits earned so far in the given
// epoch, zero when the account has not voted in it yet.
func (view *VoteView) CurrentEpochCredits(epoch uint64) uint64 {
	for i := len(view.EpochCredits) - 1; i >= 0; i-- {
		ec := view.EpochCredits[i]
		if ec.Epoch == epoch {
			return ec.Credits - ec.PrevCredits
		}
		if ec.Epoch < epoch {
			break
		}
	}
	return 0
}

// TotalCredits returns the lifetime credit counter.
func (view *VoteView) TotalCredits() uint64 {
	if len(view.EpochCredits) == 0 {
		return 0
	}
	return view.EpochCredits[len(view.EpochCredits)-1].Credits
}
