package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	DataDir   string
	From      string
	To        string
	BatchSize int
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Logged     int64  `json:"logged"`
	Applied    int    `json:"applied"`
	LastSeq    int64  `json:"last_seq"`
	Consistent bool   `json:"consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a namespace by re-applying another namespace's change log",
		Long: `Re-apply every logged change of one namespace into another, in log order
and with the original sequence numbers. Changes the target already holds
are skipped, so an interrupted replay can simply be run again.

Exit codes:
  0 - Target holds every logged change of the source
  1 - Replay failed part way, or the target log ends behind the source
  2 - Command error (bad namespace, unreadable store, etc.)

Examples:
  grants-indexer replay --db ./data --from production --to rebuild
  grants-indexer replay --db ./data --from production --to rebuild --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "db", "", "data directory holding namespace databases (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "namespace to read the change log from (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "namespace to apply the changes to (required)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 500, "changes read per batch")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	if opts.From == opts.To {
		return f.Fail(NewExitError(ExitCommandError, "--from and --to must name different namespaces"), nil)
	}

	src, err := (&storeFlags{DataDir: opts.DataDir, Namespace: opts.From}).open()
	if err != nil {
		return f.Fail(err, nil)
	}
	defer closeStore(src)
	dst, err := (&storeFlags{DataDir: opts.DataDir, Namespace: opts.To}).open()
	if err != nil {
		return f.Fail(err, nil)
	}
	defer closeStore(dst)

	result := ReplayResult{From: opts.From, To: opts.To}
	if result.Logged, err = src.CountChanges(ctx); err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeStore, Message: "failed to read source log", Err: err}, nil)
	}

	result.Applied, err = dst.Replay(ctx, src, opts.BatchSize)
	if err != nil {
		return f.Fail(&ExitError{Code: ExitFailure, ErrCode: ErrCodePartial, Message: fmt.Sprintf("replay stopped after %d change(s)", result.Applied), Err: err}, result)
	}
	f.VerboseLog("Replayed %d change(s) from %s into %s", result.Applied, opts.From, opts.To)

	srcSeq, err := src.LastChangeSeq(ctx)
	if err != nil {
		return f.Fail(WrapExitError(ExitFailure, "failed to read source log", err), nil)
	}
	if result.LastSeq, err = dst.LastChangeSeq(ctx); err != nil {
		return f.Fail(WrapExitError(ExitFailure, "failed to read target log", err), nil)
	}
	result.Consistent = result.LastSeq >= srcSeq

	if !result.Consistent {
		return f.Fail(&ExitError{Code: ExitFailure, ErrCode: ErrCodePartial,
			Message: fmt.Sprintf("target log ends at seq %d, source at %d", result.LastSeq, srcSeq)}, result)
	}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Replayed %s into %s: %d new of %d logged change(s), last seq %d\n",
			result.From, result.To, result.Applied, result.Logged, result.LastSeq)
	})
}
