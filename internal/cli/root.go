package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the grants-indexer command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "grants-indexer",
		Short: "Quadratic funding matches and indexed grants data",
		Long: `grants-indexer computes quadratic funding matches for grant rounds and
persists the indexer's change stream (projects, rounds, applications,
donations and prices) into per-namespace SQLite stores.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				f := &OutputFormatter{Format: "text", Writer: cmd.OutOrStdout()}
				return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)), nil)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			logger, _ := logging.New(logging.Config{Level: level}, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCalculateCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRecomputeStatsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewVectorsCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// storeFlags selects a namespace database.
type storeFlags struct {
	DataDir   string
	Namespace string
}

func (s *storeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.DataDir, "db", "", "data directory holding namespace databases (required)")
	cmd.Flags().StringVar(&s.Namespace, "namespace", "production", "namespace to open")
	_ = cmd.MarkFlagRequired("db")
}

func (s *storeFlags) open() (*store.Store, error) {
	st, err := store.OpenNamespace(s.DataDir, s.Namespace)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeStore, Message: "failed to open store", Err: err}
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing store", "namespace", st.Namespace(), "error", err)
	}
}
