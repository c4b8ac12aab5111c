// Package api serves matches, change ingestion and round token lookups over
// HTTP with gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Matcher computes the matches of a round. *calculator.Calculator
// implements it.
type Matcher interface {
	Calculate(ctx context.Context, req calculator.Request) (calculator.Result, error)
}

// ChangeApplier applies changes in order. *indexer.Applier implements it.
type ChangeApplier interface {
	ApplyAll(ctx context.Context, changes []model.DataChange) (int, error)
}

// TokenLookup resolves a round's match token. *indexer.RoundTokenCache
// implements it.
type TokenLookup interface {
	Get(ctx context.Context, chainID int64, roundID string) (string, error)
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers' collaborators. A nil Matcher disables the matches
// routes (503); Metrics may be nil.
type Deps struct {
	Matcher Matcher
	Changes ChangeApplier
	Tokens  TokenLookup
	Health  Pinger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter builds the gin engine. mode is a gin mode ("debug", "release",
// "test"); empty keeps the current one.
func NewRouter(d Deps, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	if d.Logger == nil {
		d.Logger = logging.Component("api")
	}
	h := &handler{deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/health", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/changes", h.applyChanges)

	round := v1.Group("/chains/:chainId/rounds/:roundId")
	round.GET("/matches", h.matches)
	round.POST("/matches", h.matches)
	round.GET("/token", h.roundToken)

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
