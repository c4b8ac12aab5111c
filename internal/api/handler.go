package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// OverridesField is the multipart field carrying the overrides CSV.
const OverridesField = "overrides"

type handler struct {
	deps Deps
}

type errorResponse struct {
	Error string `json:"error"`
}

type applyResponse struct {
	Applied int    `json:"applied"`
	Error   string `json:"error,omitempty"`
}

type tokenResponse struct {
	ChainID int64  `json:"chainId"`
	RoundID string `json:"roundId"`
	Token   string `json:"matchTokenAddress"`
}

// statusOf maps an error to its HTTP status: missing entities are 404,
// caller mistakes 400, everything else 500.
func statusOf(err error) int {
	switch {
	case model.IsNotFound(err):
		return http.StatusNotFound
	case calculator.IsConfiguration(err), model.IsUnknownChangeKind(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.deps.Logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *handler) health(c *gin.Context) {
	if h.deps.Health != nil {
		if err := h.deps.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func roundParams(c *gin.Context) (int64, string, bool) {
	chainID, err := strconv.ParseInt(c.Param("chainId"), 10, 64)
	if err != nil {
		badRequest(c, "invalid chain id: "+c.Param("chainId"))
		return 0, "", false
	}
	return chainID, c.Param("roundId"), true
}

// matches serves GET (no overrides) and POST (multipart overrides file).
func (h *handler) matches(c *gin.Context) {
	if h.deps.Matcher == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "matching is not configured"})
		return
	}
	chainID, roundID, ok := roundParams(c)
	if !ok {
		return
	}

	req := calculator.Request{ChainID: chainID, RoundID: roundID}
	if raw := c.Query("ignoreSaturation"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid ignoreSaturation: "+raw)
			return
		}
		req.IgnoreSaturation = v
	}

	if c.Request.Method == http.MethodPost {
		overrides, err := readOverrides(c)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.Overrides = overrides
	}

	res, err := h.deps.Matcher.Calculate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// readOverrides parses the optional overrides upload. A request without the
// file has no overrides.
func readOverrides(c *gin.Context) (calculator.Overrides, error) {
	fh, err := c.FormFile(OverridesField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return calculator.ParseOverrides(f)
}

// applyChanges decodes a JSON array of tagged changes and applies them in
// order. Decoding is all-or-nothing; application stops at the first failure
// and reports how many were applied.
func (h *handler) applyChanges(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	changes, err := model.UnmarshalChanges(body)
	if err != nil {
		if model.IsUnknownChangeKind(err) {
			h.fail(c, err)
			return
		}
		badRequest(c, err.Error())
		return
	}

	n, err := h.deps.Changes.ApplyAll(c.Request.Context(), changes)
	if err != nil {
		h.deps.Logger.Error("apply changes", "applied", n, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, applyResponse{Applied: n, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, applyResponse{Applied: n})
}

func (h *handler) roundToken(c *gin.Context) {
	chainID, roundID, ok := roundParams(c)
	if !ok {
		return
	}
	token, err := h.deps.Tokens.Get(c.Request.Context(), chainID, roundID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{ChainID: chainID, RoundID: roundID, Token: token})
}
