package sol

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

const LamportsPerSol = 1_000_000_000

// Lamports is an amount of SOL in base units.
//
// Arithmetic on amounts is checked: balances on the ledger can never wrap,
// so an overflow here means the math is wrong, not the data. Those methods
// panic rather than return a corrupted amount.
type Lamports uint64

// StLamports is an amount of stSOL, the pool share token, in base units.
type StLamports uint64

func (a Lamports) Add(b Lamports) Lamports {
	c := a + b
	if c < a {
		panic(fmt.Sprintf("lamports addition overflow: %d + %d", a, b))
	}
	return c
}

func (a Lamports) Sub(b Lamports) Lamports {
	if b > a {
		panic(fmt.Sprintf("lamports subtraction underflow: %d - %d", a, b))
	}
	return a - b
}

// SaturatingSub clamps at zero instead of panicking. Used where the
// difference is allowed to be exhausted, such as the spendable reserve.
func (a Lamports) SaturatingSub(b Lamports) Lamports {
	if b > a {
		return 0
	}
	return a - b
}

func (a Lamports) Mul(factor uint64) Lamports {
	hi, lo := bits.Mul64(uint64(a), factor)
	if hi != 0 {
		panic(fmt.Sprintf("lamports multiplication overflow: %d * %d", a, factor))
	}
	return Lamports(lo)
}

func (a StLamports) Add(b StLamports) StLamports {
	c := a + b
	if c < a {
		panic(fmt.Sprintf("stlamports addition overflow: %d + %d", a, b))
	}
	return c
}

func (a StLamports) Sub(b StLamports) StLamports {
	if b > a {
		panic(fmt.Sprintf("stlamports subtraction underflow: %d - %d", a, b))
	}
	return a - b
}

// Rational is an exact ratio of two unsigned integers. Comparisons cross
// multiply into 128 bits, so they are never subject to float rounding and
// never overflow.
type Rational struct {
	Numerator   uint64
	Denominator uint64
}

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b.
// A zero denominator compares as an infinite ratio.
func (a Rational) Cmp(b Rational) int {
	lhsHi, lhsLo := bits.Mul64(a.Numerator, b.Denominator)
	rhsHi, rhsLo := bits.Mul64(b.Numerator, a.Denominator)
	switch {
	case lhsHi != rhsHi:
		if lhsHi < rhsHi {
			return -1
		}
		return 1
	case lhsLo != rhsLo:
		if lhsLo < rhsLo {
			return -1
		}
		return 1
	}
	return 0
}

func (a Rational) String() string {
	return fmt.Sprintf("%d/%d", a.Numerator, a.Denominator)
}

// Per64 scales numerator/denominator into the full uint64 range, with 0
// meaning 0% and math.MaxUint64 meaning 100%. Ratios at or above one, and
// ratios against a zero denominator, saturate at 100%.
func Per64(numerator, denominator uint64) uint64 {
	if numerator >= denominator {
		return math.MaxUint64
	}
	hi, lo := bits.Mul64(numerator, math.MaxUint64)
	q, _ := bits.Div64(hi, lo, denominator)
	return q
}

// Per64Ratio converts a Per64 fraction back into a float in [0, 1], for
// display and metrics only.
func Per64Ratio(rate uint64) float64 {
	return float64(rate) / float64(math.MaxUint64)
}

// FormattedSolAmount renders lamports as whole SOL, trimming the trailing
// zeros people never want to read.
func FormattedSolAmount(amount Lamports) string {
	formatted := fmt.Sprintf("%d.%09d", uint64(amount)/LamportsPerSol, uint64(amount)%LamportsPerSol)
	return strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
}

// FormattedStSolAmount renders StLamports as whole stSOL.
func FormattedStSolAmount(amount StLamports) string {
	formatted := fmt.Sprintf("%d.%09d", uint64(amount)/LamportsPerSol, uint64(amount)%LamportsPerSol)
	return strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
}
