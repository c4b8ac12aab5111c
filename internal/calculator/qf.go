package calculator

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Contribution is one eligible contribution entering the engine.
type Contribution struct {
	ID          string
	Contributor string
	Recipient   string
	Amount      *big.Int
}

// Options tunes a matching run. Nil amounts disable the corresponding step.
type Options struct {
	// MinimumAmount drops every contribution strictly below it before
	// aggregation.
	MinimumAmount *big.Int
	// MatchingCapAmount is the most any recipient may be matched.
	MatchingCapAmount *big.Int
	// IgnoreSaturation pays subsidies as computed even when they add up to
	// more than the pool.
	IgnoreSaturation bool
}

// Calculation is the matching outcome for one recipient. All amounts are in
// match token base units.
type Calculation struct {
	Recipient          string       `json:"recipient"`
	ContributionsCount int          `json:"contributionsCount"`
	TotalReceived      model.Amount `json:"totalReceived"`
	SumOfSqrt          model.Amount `json:"sumOfSqrt"`
	Matched            model.Amount `json:"matched"`
	MatchedWithoutCap  model.Amount `json:"matchedWithoutCap"`
	CapOverflow        model.Amount `json:"capOverflow"`
}

type recipientTally struct {
	id         string
	byDonor    map[string]*big.Int
	total      *big.Int
	count      int
	sumSqrt    *big.Float
	value      *big.Float // current matched amount, fractional
	withoutCap *big.Float
	capped     bool
	floor      *big.Int
	fraction   *big.Float
}

// LinearQF computes the quadratic funding match of every recipient.
//
// Contributions below the minimum are dropped first. Each recipient's
// remaining contributions are summed per contributor, and its subsidy is
// (Σ√cᵢ)² − Σcᵢ over those per-contributor sums. If the subsidies add up to
// more than pool they are scaled down to exactly pool, unless
// IgnoreSaturation is set. With a cap, amounts above it are clamped and the
// excess is handed to the uncapped recipients in proportion to their
// amounts, repeating until nobody uncapped exceeds the cap.
//
// Amounts are computed at high precision and rounded down; the units lost to
// rounding go one each to the recipients with the largest fractional parts,
// so a saturated round pays out exactly pool and no recipient ever exceeds
// the cap. Results are sorted by recipient.
func LinearQF(contributions []Contribution, pool *big.Int, decimals int, opts Options) ([]Calculation, error) {
	if pool == nil || pool.Sign() < 0 {
		return nil, fmt.Errorf("linear qf: match pool must be non-negative")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("linear qf: negative token decimals %d", decimals)
	}
	if opts.MatchingCapAmount != nil && opts.MatchingCapAmount.Sign() < 0 {
		return nil, fmt.Errorf("linear qf: negative matching cap")
	}
	prec := uint(256 + decimals*4)

	tallies, err := tally(contributions, opts.MinimumAmount)
	if err != nil {
		return nil, err
	}
	if len(tallies) == 0 {
		return []Calculation{}, nil
	}

	total := newFloat(prec)
	for _, t := range tallies {
		t.sumSqrt = newFloat(prec)
		for _, amount := range t.byDonor {
			root := newFloat(prec).Sqrt(newFloat(prec).SetInt(amount))
			t.sumSqrt.Add(t.sumSqrt, root)
		}
		subsidy := newFloat(prec).Mul(t.sumSqrt, t.sumSqrt)
		subsidy.Sub(subsidy, newFloat(prec).SetInt(t.total))
		if subsidy.Sign() < 0 {
			subsidy.SetInt64(0)
		}
		t.value = subsidy
		total.Add(total, subsidy)
	}

	poolF := newFloat(prec).SetInt(pool)
	saturated := !opts.IgnoreSaturation && total.Cmp(poolF) > 0
	if saturated {
		factor := newFloat(prec).Quo(poolF, total)
		for _, t := range tallies {
			t.value.Mul(t.value, factor)
		}
	}

	for _, t := range tallies {
		t.withoutCap = newFloat(prec).Set(t.value)
	}
	if opts.MatchingCapAmount != nil {
		redistributeCapped(tallies, newFloat(prec).SetInt(opts.MatchingCapAmount), prec)
	}

	var limit *big.Int
	if saturated {
		limit = pool
	}
	integerize(tallies, opts.MatchingCapAmount, limit, prec)

	out := make([]Calculation, len(tallies))
	for i, t := range tallies {
		withoutCap, _ := t.withoutCap.Int(nil)
		overflow := new(big.Int).Sub(withoutCap, t.floor)
		if overflow.Sign() < 0 {
			overflow.SetInt64(0)
		}
		sumSqrt, _ := t.sumSqrt.Int(nil)
		out[i] = Calculation{
			Recipient:          t.id,
			ContributionsCount: t.count,
			TotalReceived:      model.AmountFromBig(t.total),
			SumOfSqrt:          model.AmountFromBig(sumSqrt),
			Matched:            model.AmountFromBig(t.floor),
			MatchedWithoutCap:  model.AmountFromBig(withoutCap),
			CapOverflow:        model.AmountFromBig(overflow),
		}
	}
	return out, nil
}

// tally groups counted contributions by recipient, sorted by recipient id.
func tally(contributions []Contribution, minimum *big.Int) ([]*recipientTally, error) {
	byRecipient := make(map[string]*recipientTally)
	for _, c := range contributions {
		if c.Amount == nil || c.Amount.Sign() < 0 {
			return nil, fmt.Errorf("linear qf: contribution %q: amount must be non-negative", c.ID)
		}
		if minimum != nil && c.Amount.Cmp(minimum) < 0 {
			continue
		}
		t, ok := byRecipient[c.Recipient]
		if !ok {
			t = &recipientTally{id: c.Recipient, byDonor: make(map[string]*big.Int), total: new(big.Int)}
			byRecipient[c.Recipient] = t
		}
		donor := strings.ToLower(c.Contributor)
		sum, ok := t.byDonor[donor]
		if !ok {
			sum = new(big.Int)
			t.byDonor[donor] = sum
		}
		sum.Add(sum, c.Amount)
		t.total.Add(t.total, c.Amount)
		t.count++
	}

	out := make([]*recipientTally, 0, len(byRecipient))
	for _, t := range byRecipient {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// redistributeCapped water-fills the cap. Every pass with excess caps at least
// one more recipient, so it settles within len(tallies)+1 passes. Excess left
// once everyone is capped is not paid out.
func redistributeCapped(tallies []*recipientTally, limit *big.Float, prec uint) {
	for pass := 0; pass <= len(tallies); pass++ {
		excess := newFloat(prec)
		for _, t := range tallies {
			if t.capped || t.value.Cmp(limit) <= 0 {
				continue
			}
			excess.Add(excess, newFloat(prec).Sub(t.value, limit))
			t.value.Set(limit)
			t.capped = true
		}
		if excess.Sign() == 0 {
			return
		}

		uncapped := newFloat(prec)
		for _, t := range tallies {
			if !t.capped {
				uncapped.Add(uncapped, t.value)
			}
		}
		if uncapped.Sign() == 0 {
			return
		}
		for _, t := range tallies {
			if t.capped {
				continue
			}
			share := newFloat(prec).Mul(excess, t.value)
			t.value.Add(t.value, share.Quo(share, uncapped))
		}
	}
}

// integerize floors every value, then hands out the units the floors lost so
// the integer total matches the fractional one (never above limit when set).
// Units go to the largest fractional parts first, ties by recipient id, and
// never lift a recipient above the cap.
func integerize(tallies []*recipientTally, matchingCap, limit *big.Int, prec uint) {
	exact := newFloat(prec)
	floored := new(big.Int)
	for _, t := range tallies {
		exact.Add(exact, t.value)
		t.floor, _ = t.value.Int(nil)
		t.fraction = newFloat(prec).Sub(t.value, newFloat(prec).SetInt(t.floor))
		floored.Add(floored, t.floor)
	}

	target, _ := exact.Add(exact, newFloat(prec).SetFloat64(1e-9)).Int(nil)
	if limit != nil && target.Cmp(limit) > 0 {
		target.Set(limit)
	}
	remaining := new(big.Int).Sub(target, floored)
	if remaining.Sign() <= 0 {
		return
	}

	order := make([]*recipientTally, len(tallies))
	copy(order, tallies)
	sort.SliceStable(order, func(i, j int) bool {
		if c := order[i].fraction.Cmp(order[j].fraction); c != 0 {
			return c > 0
		}
		return order[i].id < order[j].id
	})

	one := big.NewInt(1)
	for _, t := range order {
		if remaining.Sign() == 0 {
			return
		}
		if t.fraction.Sign() == 0 {
			continue
		}
		next := new(big.Int).Add(t.floor, one)
		if matchingCap != nil && next.Cmp(matchingCap) > 0 {
			continue
		}
		t.floor = next
		remaining.Sub(remaining, one)
	}
}

func newFloat(prec uint) *big.Float {
	return new(big.Float).SetPrec(prec)
}
