package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/price"
	"github.com/shuoer86/grants-stack-indexer/internal/source"
)

// CalculateOptions holds flags for the calculate command.
type CalculateOptions struct {
	*RootOptions
	Source           string
	Prefix           string
	ChainID          int64
	RoundID          string
	OverridesFile    string
	IgnoreSaturation bool
	Workers          int
	SybilThreshold   string

	// Pricing: either a fixed USD price per match token or a store's quotes.
	TokenPrice string
	Store      storeFlags
	PriceBlock int64
}

// NewCalculateCommand creates the calculate command.
func NewCalculateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalculateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute quadratic funding matches for a round",
		Long: `Compute the quadratic funding matches of one round from its votes,
applications and (when sybil defense is on) passport scores.

Inputs are read from a bucket URL (file://, mem://, s3://, gs://). Match
amounts are valued in USD either at a fixed --token-price or from the price
quotes of a namespace store (--db, --namespace, optionally --price-block).

Exit codes:
  0 - Matches computed
  2 - Bad flags, missing round data or invalid round configuration

Examples:
  grants-indexer calculate --source file:///srv/inputs --chain 10 --round 0xabc --token-price 1
  grants-indexer calculate --source s3://inputs?region=us-east-1 --chain 10 --round 0xabc \
      --db ./data --namespace production --overrides overrides.csv --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalculate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "bucket URL holding round inputs (required)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().Int64Var(&opts.ChainID, "chain", 0, "chain id (required)")
	cmd.Flags().StringVar(&opts.RoundID, "round", "", "round id (required)")
	cmd.Flags().StringVar(&opts.OverridesFile, "overrides", "", "CSV file of contribution coefficient overrides")
	cmd.Flags().BoolVar(&opts.IgnoreSaturation, "ignore-saturation", false, "do not scale matches down to the pool")
	cmd.Flags().IntVar(&opts.Workers, "workers", calculator.DefaultOracleWorkers, "concurrent price lookups")
	cmd.Flags().StringVar(&opts.SybilThreshold, "sybil-threshold", "", "minimum passport score when sybil defense is on")
	cmd.Flags().StringVar(&opts.TokenPrice, "token-price", "", "fixed USD price of one match token")
	cmd.Flags().StringVar(&opts.Store.DataDir, "db", "", "data directory of the price store")
	cmd.Flags().StringVar(&opts.Store.Namespace, "namespace", "production", "namespace of the price store")
	cmd.Flags().Int64Var(&opts.PriceBlock, "price-block", 0, "price at or before this block instead of the latest quote")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("round")
	cmd.MarkFlagsMutuallyExclusive("token-price", "db")
	cmd.MarkFlagsOneRequired("token-price", "db")

	return cmd
}

func runCalculate(opts *CalculateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	calcOpts := []calculator.Option{calculator.WithOracleWorkers(opts.Workers)}
	if opts.SybilThreshold != "" {
		th, err := decimal.NewFromString(opts.SybilThreshold)
		if err != nil {
			return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeBadRequest, Message: "invalid --sybil-threshold", Err: err}, nil)
		}
		calcOpts = append(calcOpts, calculator.WithSybilThreshold(th))
	}

	var oracle calculator.PriceOracle
	if opts.TokenPrice != "" {
		p, err := decimal.NewFromString(opts.TokenPrice)
		if err != nil {
			return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeBadRequest, Message: "invalid --token-price", Err: err}, nil)
		}
		oracle = price.Fixed{USDPerToken: p}
	} else {
		st, err := opts.Store.open()
		if err != nil {
			return f.Fail(err, nil)
		}
		defer closeStore(st)
		so := price.NewStoreOracle(st)
		if opts.PriceBlock > 0 {
			so = so.AtBlock(opts.PriceBlock)
		}
		oracle = so
	}

	var overrides calculator.Overrides
	if opts.OverridesFile != "" {
		file, err := os.Open(opts.OverridesFile)
		if err != nil {
			return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to open overrides", Err: err}, nil)
		}
		overrides, err = calculator.ParseOverrides(file)
		file.Close()
		if err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "failed to parse overrides", err), nil)
		}
		f.VerboseLog("Loaded %d override(s) from %s", len(overrides), opts.OverridesFile)
	}

	src, err := source.Open(ctx, opts.Source, opts.Prefix)
	if err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to open source", Err: err}, nil)
	}
	defer src.Close()

	res, err := calculator.New(src, oracle, calcOpts...).Calculate(ctx, calculator.Request{
		ChainID:          opts.ChainID,
		RoundID:          opts.RoundID,
		Overrides:        overrides,
		IgnoreSaturation: opts.IgnoreSaturation,
	})
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "calculation failed", err), nil)
	}

	return f.Success(res, func(w io.Writer) { renderMatches(w, res) })
}

func renderMatches(w io.Writer, res calculator.Result) {
	fmt.Fprintf(w, "Round %s on chain %d: pool %s of %s (run %s)\n\n",
		res.RoundID, res.ChainID, res.MatchPool, res.MatchToken, res.RunID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "APPLICATION\tPROJECT\tCONTRIBUTIONS\tRECEIVED\tMATCHED\tMATCHED USD\tCAP OVERFLOW")
	for _, m := range res.Matches {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			m.ApplicationID, m.ProjectName, m.ContributionsCount,
			m.TotalReceived, m.Matched, m.MatchedUSD.StringFixed(2), m.CapOverflow)
	}
	tw.Flush()
}
