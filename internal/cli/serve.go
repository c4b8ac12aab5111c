package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuoer86/grants-stack-indexer/internal/api"
	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/config"
	"github.com/shuoer86/grants-stack-indexer/internal/indexer"
	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/price"
	"github.com/shuoer86/grants-stack-indexer/internal/scheduler"
	"github.com/shuoer86/grants-stack-indexer/internal/source"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigFile string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background flush and recompute jobs",
		Long: `Open the configured namespace store, start the periodic donation flush
and stats recompute jobs, and serve the HTTP API until SIGINT or SIGTERM.

On shutdown the server stops accepting requests, the jobs stop, and the
remaining queued donations are flushed before the store closes.

Configuration is read from --config (YAML) and GRANTS_* environment
variables, e.g. GRANTS_SERVER_ADDRESS=:8080.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "failed to load config", Err: err}, nil)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logCloser := logging.Setup(cfg.Logging())
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg)
	if err != nil {
		return f.Fail(err, nil)
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		_ = srv.close(context.Background())
		return f.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeGeneric, Message: "failed to listen", Err: err}, nil)
	}

	if err := srv.serve(ctx, ln); err != nil {
		return f.Fail(err, nil)
	}
	return nil
}

// server is the running form of a Config: one namespace store, its indexer
// service and the HTTP API over them.
type server struct {
	store   *store.Store
	service *indexer.Service
	source  *source.BlobSource
	router  http.Handler
	logger  *slog.Logger
	started bool
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	logger := logging.Component("server")
	m := metrics.New(cfg.Metrics.Namespace)

	st, err := store.OpenNamespace(cfg.DataDir, cfg.Namespace)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeStore, Message: "failed to open store", Err: err}
	}

	sched, err := scheduler.New(scheduler.WithLogger(logging.Component("scheduler")), scheduler.WithMetrics(m))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitFailure, "failed to create scheduler", err)
	}
	svc, err := indexer.NewService(ctx, st, sched, cfg.IndexerSettings(), indexer.Options{Metrics: m})
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitFailure, "failed to start indexer", err)
	}

	s := &server{store: st, service: svc, logger: logger}
	deps := api.Deps{
		Changes: svc.Applier,
		Tokens:  svc.Tokens,
		Health:  st,
		Metrics: m,
	}

	if cfg.Calculator.SourceURL != "" {
		matcher, err := s.newCalculator(ctx, cfg, m)
		if err != nil {
			_ = s.close(context.Background())
			return nil, err
		}
		deps.Matcher = matcher
	}

	s.router = api.NewRouter(deps, cfg.Server.Mode)
	return s, nil
}

func (s *server) newCalculator(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*calculator.Calculator, error) {
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "invalid calculator config", Err: err}
	}
	src, err := source.Open(ctx, cfg.Calculator.SourceURL, cfg.Calculator.SourcePrefix)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeInput, Message: "failed to open source", Err: err}
	}
	s.source = src

	oracle := price.NewStoreOracle(s.store)
	if cfg.Calculator.PriceBlock > 0 {
		oracle = oracle.AtBlock(cfg.Calculator.PriceBlock)
	}
	opts := []calculator.Option{
		calculator.WithOracleWorkers(cfg.Calculator.OracleWorkers),
		calculator.WithMetrics(m),
	}
	if threshold != nil {
		opts = append(opts, calculator.WithSybilThreshold(*threshold))
	}
	return calculator.New(src, oracle, opts...), nil
}

// serve runs the jobs and the HTTP API on ln until ctx is cancelled or the
// listener fails, then shuts everything down in order.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.service.Start()
	s.started = true
	s.logger.Info("serving", "address", ln.Addr().String(), "namespace", s.store.Namespace())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "http server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown", "error", err)
	}
	if err := s.close(shutdownCtx); err != nil && runErr == nil {
		runErr = WrapExitError(ExitFailure, "shutdown incomplete", err)
	}
	return runErr
}

// close stops the jobs, runs the final donation flush and releases the
// source and store. A server that never started only closes its queue.
func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.started {
		errs = append(errs, s.service.Shutdown(ctx))
	} else {
		errs = append(errs, s.service.Queue.Close(ctx))
	}
	if s.source != nil {
		errs = append(errs, s.source.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
