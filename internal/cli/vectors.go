package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shuoer86/grants-stack-indexer/internal/harness"
)

// VectorsOptions holds flags for the vectors command.
type VectorsOptions struct {
	*RootOptions
	GoldenDir string
	Update    bool   // regenerate golden files
	Filter    string // vector filter (glob pattern)
}

// VectorResult is the outcome of one vector.
type VectorResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// VectorsResult holds the overall result.
type VectorsResult struct {
	Vectors []VectorResult `json:"vectors"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Total   int            `json:"total"`
}

// NewVectorsCommand creates the vectors command.
func NewVectorsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VectorsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vectors <vectors-dir>",
		Short: "Run matching vectors against the engine",
		Long: `Run every YAML matching vector in a directory through the quadratic
funding engine. Each vector's expectations and the engine's limits (cap,
pool) are checked, and the result is compared with its golden snapshot
when --golden is set.

Exit codes:
  0 - All vectors passed
  1 - One or more vectors failed
  2 - Command error (invalid paths, unparsable vector)

Examples:
  grants-indexer vectors ./testdata/vectors
  grants-indexer vectors ./testdata/vectors --golden ./testdata/golden --update
  grants-indexer vectors ./testdata/vectors --filter "cap_*" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVectors(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden snapshots to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter vectors by glob pattern")

	return cmd
}

func runVectors(opts *VectorsOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(dir); err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: fmt.Sprintf("vectors directory not found: %s", dir), Err: err}, nil)
	}
	if opts.Update && opts.GoldenDir == "" {
		return f.Fail(NewExitError(ExitCommandError, "--update requires --golden"), nil)
	}

	vectors, err := harness.LoadVectors(dir, opts.Filter)
	if err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to load vectors", Err: err}, nil)
	}

	result := VectorsResult{Vectors: make([]VectorResult, 0, len(vectors)), Total: len(vectors)}
	for _, v := range vectors {
		vr := runVector(opts, v)
		result.Vectors = append(result.Vectors, vr)
		if vr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if result.Failed > 0 {
		return f.Fail(&ExitError{Code: ExitFailure, ErrCode: ErrCodeGeneric,
			Message: fmt.Sprintf("%d of %d vector(s) failed", result.Failed, result.Total)}, result)
	}
	return f.Success(result, func(w io.Writer) { renderVectors(w, result) })
}

func runVector(opts *VectorsOptions, v *harness.Vector) VectorResult {
	res, err := harness.Run(v)
	if err != nil {
		return VectorResult{Name: v.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	out := VectorResult{Name: v.Name, Pass: res.Pass, Errors: res.Errors}

	if opts.GoldenDir == "" {
		return out
	}
	snap, err := harness.Snapshot(res)
	if err != nil {
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("snapshot failed: %v", err))
		return out
	}
	match, err := harness.CompareGolden(opts.GoldenDir, v.Name, snap, opts.Update)
	switch {
	case err != nil:
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("golden file: %v", err))
	case !match:
		out.Pass = false
		out.Errors = append(out.Errors, "snapshot differs from golden file (run with --update to regenerate)")
	}
	return out
}

func renderVectors(w io.Writer, result VectorsResult) {
	for _, v := range result.Vectors {
		mark := "✓"
		if !v.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, v.Name)
		for _, e := range v.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
