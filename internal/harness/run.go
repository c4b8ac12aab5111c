package harness

import (
	"fmt"
	"math/big"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
)

// Result is the outcome of running one vector.
type Result struct {
	Name         string
	Pool         *big.Int
	Calculations []calculator.Calculation
	Total        *big.Int
	Pass         bool
	Errors       []string
}

// Run executes v on the matching engine and checks its expectations and
// the engine's conservation limits. An engine error is returned as err;
// failed checks are reported in Result.Errors.
func Run(v *Vector) (*Result, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	contributions, pool, opts := v.inputs()

	calcs, err := calculator.LinearQF(contributions, pool, v.Decimals, opts)
	if err != nil {
		return nil, fmt.Errorf("vector %s: %w", v.Name, err)
	}

	res := &Result{Name: v.Name, Pool: pool, Calculations: calcs, Total: new(big.Int)}
	byRecipient := make(map[string]*big.Int, len(calcs))
	for _, c := range calcs {
		m := c.Matched.Big()
		byRecipient[c.Recipient] = m
		res.Total.Add(res.Total, m)
		if opts.MatchingCapAmount != nil && m.Cmp(opts.MatchingCapAmount) > 0 {
			res.fail("%s matched %s above cap %s", c.Recipient, m, opts.MatchingCapAmount)
		}
	}
	if !opts.IgnoreSaturation && res.Total.Cmp(pool) > 0 {
		res.fail("total matched %s exceeds pool %s", res.Total, pool)
	}

	if exp := v.Expect; exp != nil {
		for recipient, want := range exp.Matched {
			got, ok := byRecipient[recipient]
			if !ok {
				res.fail("expected recipient %s not in results", recipient)
				continue
			}
			if got.String() != want {
				res.fail("%s: expected matched %s, got %s", recipient, want, got)
			}
		}
		if exp.Total != "" && res.Total.String() != exp.Total {
			res.fail("expected total %s, got %s", exp.Total, res.Total)
		}
	}

	res.Pass = len(res.Errors) == 0
	return res, nil
}

func (r *Result) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}
