package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RecomputeStatsOptions holds flags for the recompute-stats command.
type RecomputeStatsOptions struct {
	*RootOptions
	Store storeFlags
}

// RecomputeStatsResult reports the rows a recompute rewrote.
type RecomputeStatsResult struct {
	Namespace    string `json:"namespace"`
	Rounds       int64  `json:"rounds"`
	Applications int64  `json:"applications"`
}

// NewRecomputeStatsCommand creates the recompute-stats command.
func NewRecomputeStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeStatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recompute-stats",
		Short: "Rebuild round and application donation totals from donations",
		Long: `Rebuild the donation aggregates (USD total, donation count, unique donors)
of every round and application from the donations table. The result
replaces the incrementally maintained counters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecomputeStats(opts, cmd)
		},
	}

	opts.Store.bind(cmd)
	return cmd
}

func runRecomputeStats(opts *RecomputeStatsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.Store.open()
	if err != nil {
		return f.Fail(err, nil)
	}
	defer closeStore(st)

	res, err := st.RecomputeDonationStats(cmd.Context())
	if err != nil {
		return f.Fail(&ExitError{Code: ExitFailure, ErrCode: ErrCodeStore, Message: "recompute failed", Err: err}, nil)
	}

	out := RecomputeStatsResult{Namespace: st.Namespace(), Rounds: res.Rounds, Applications: res.Applications}
	return f.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "Recomputed %s: %d round(s), %d application(s)\n", out.Namespace, out.Rounds, out.Applications)
	})
}
