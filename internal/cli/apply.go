package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shuoer86/grants-stack-indexer/internal/indexer"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// maxChangeLine bounds one JSONL line; NewDonations batches can be large.
const maxChangeLine = 16 << 20

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Store     storeFlags
	ChunkSize int
}

// ApplyResult summarizes an apply run.
type ApplyResult struct {
	Namespace        string `json:"namespace"`
	Changes          int    `json:"changes"`
	DonationsFlushed int    `json:"donations_flushed"`
	FlushChunks      int    `json:"flush_chunks"`
	FailedDonations  int    `json:"failed_donations"`
	LastSeq          int64  `json:"last_seq"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <changes.jsonl|->",
		Short: "Apply a file of changes to a namespace store",
		Long: `Apply a JSON-lines file of tagged changes, one per line, in order.

InsertDonation changes are buffered and written in chunks once every line
has been applied. Blank lines are ignored. Reading "-" uses stdin.

Exit codes:
  0 - Every change applied and every donation chunk written
  1 - A change failed to apply or a donation chunk failed to write
  2 - Bad flags, unreadable input or an undecodable line`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	opts.Store.bind(cmd)
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", store.MaxDonationChunk, "donations per insert")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to open changes", Err: err}, nil)
		}
		defer file.Close()
		in = file
	}

	changes, err := readChanges(in)
	if err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to read changes", Err: err}, nil)
	}
	f.VerboseLog("Read %d change(s) from %s", len(changes), path)

	st, err := opts.Store.open()
	if err != nil {
		return f.Fail(err, nil)
	}
	defer closeStore(st)

	seq, err := indexer.NewSequencer(ctx, st, indexer.Options{})
	if err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeStore, Message: "failed to resume change log", Err: err}, nil)
	}
	queue := indexer.NewDonationQueue(seq, opts.ChunkSize, indexer.Options{})
	applier := indexer.NewApplier(seq, queue, indexer.Options{})

	result := ApplyResult{Namespace: st.Namespace()}
	result.Changes, err = applier.ApplyAll(ctx, changes)
	applyErr := err

	// Buffered donations are flushed even when a later change failed.
	flushed, flushErr := queue.Flush(ctx)
	result.DonationsFlushed = flushed.Donations
	result.FlushChunks = flushed.Chunks
	result.FailedDonations = flushed.Failed
	if err := queue.Close(ctx); err != nil && flushErr == nil {
		flushErr = err
	}
	result.LastSeq = seq.LastSeq()

	switch {
	case applyErr != nil:
		return f.Fail(WrapExitError(ExitFailure, fmt.Sprintf("applied %d of %d changes", result.Changes, len(changes)), applyErr), result)
	case flushErr != nil:
		return f.Fail(&ExitError{Code: ExitFailure, ErrCode: ErrCodePartial, Message: "donation flush incomplete", Err: flushErr}, result)
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Applied %d change(s) to %s (last seq %d)\n", result.Changes, result.Namespace, result.LastSeq)
		fmt.Fprintf(w, "Flushed %d donation(s) in %d chunk(s)\n", result.DonationsFlushed, result.FlushChunks)
	})
}

// readChanges decodes one tagged change per non-blank line.
func readChanges(r io.Reader) ([]model.DataChange, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChangeLine)

	var changes []model.DataChange
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		c, err := model.UnmarshalChange(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		changes = append(changes, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan changes: %w", err)
	}
	return changes, nil
}
