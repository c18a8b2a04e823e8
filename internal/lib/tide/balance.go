package tide

import (
	"github.com/soltide/poolmgr/internal/lib/sol"
)

// GetTargetBalance computes the stake each validator should hold if the
// pool's entire delegated balance plus the undelegated amount were divided
// evenly over the active validators. Inactive validators get a target of
// zero so maintenance drains them. The result is index-aligned with the
// validator list and the remainder lamports go to the first active
// validators, so the targets sum to the exact total.
func GetTargetBalance(validators []Validator, undelegated sol.Lamports) ([]sol.Lamports, error) {
	total := undelegated
	numActive := uint64(0)
	for i := range validators {
		total = total.Add(validators[i].EffectiveStakeBalance())
		if validators[i].Active {
			numActive++
		}
	}
	if numActive == 0 {
		return nil, ErrNoActiveValidators
	}

	each := sol.Lamports(uint64(total) / numActive)
	remainder := uint64(total) % numActive

	targets := make([]sol.Lamports, len(validators))
	for i := range validators {
		if !validators[i].Active {
			continue
		}
		targets[i] = each
		if remainder > 0 {
			targets[i] = targets[i].Add(1)
			remainder--
		}
	}
	return targets, nil
}

// MinimumStakeValidatorIndex returns the index of the active validator
// furthest below its target, and by how much. Ties keep the earlier list
// entry so repeated calls walk the list deterministically.
func MinimumStakeValidatorIndex(validators []Validator, targets []sol.Lamports) (int, sol.Lamports) {
	index := 0
	shortfall := sol.Lamports(0)
	for i := range validators {
		if !validators[i].Active {
			continue
		}
		below := targets[i].SaturatingSub(validators[i].EffectiveStakeBalance())
		if below > shortfall {
			index = i
			shortfall = below
		}
	}
	return index, shortfall
}

// UnstakeValidatorIndex returns the active validator furthest above its
// target, but only when the excess exceeds the given fraction of the
// target. Small imbalances are left alone, moving stake costs a full epoch
// of rewards on the moved amount.
func UnstakeValidatorIndex(validators []Validator, targets []sol.Lamports, threshold sol.Rational) (int, sol.Lamports, bool) {
	index := 0
	excess := sol.Lamports(0)
	found := false
	for i := range validators {
		if !validators[i].Active {
			continue
		}
		above := validators[i].EffectiveStakeBalance().SaturatingSub(targets[i])
		if above > excess {
			index = i
			excess = above
			found = true
		}
	}
	if !found {
		return 0, 0, false
	}
	ratio := sol.Rational{Numerator: uint64(excess), Denominator: uint64(targets[index])}
	if ratio.Cmp(threshold) <= 0 {
		return 0, 0, false
	}
	return index, excess, true
}
