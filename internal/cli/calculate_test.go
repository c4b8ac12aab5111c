package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/testutil"
)

type matchRow struct {
	ApplicationID string `json:"applicationId"`
	ProjectName   string `json:"projectName"`
	Matched       string `json:"matched"`
	MatchedUSD    string `json:"matchedUSD"`
}

type calculateData struct {
	RoundID   string     `json:"roundId"`
	MatchPool string     `json:"matchPool"`
	Matches   []matchRow `json:"matches"`
}

// writeRoundInputs lays out one round's documents under a temp dir and
// returns its file:// URL. Application "0" gets donors d1 and d2, "1" gets
// d1 twice.
func writeRoundInputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := map[string]string{
		"10/rounds.json": `[{"id":"` + testutil.RoundID + `","matchTokenAddress":"` + testutil.Token + `",
			"matchTokenDecimals":0,"matchAmount":"1000","metadata":{"quadraticFundingConfig":{}}}]`,
		"10/rounds/" + testutil.RoundID + "/applications.json": `[
			{"id":"0","projectId":"p0","roundId":"0xround","payoutAddress":"` + testutil.Payout + `","projectTitle":"Zero"},
			{"id":"1","projectId":"p1","roundId":"0xround","payoutAddress":"` + testutil.Payout + `","projectTitle":"One"}]`,
		"10/rounds/" + testutil.RoundID + "/votes.json": `[
			{"id":"v1","voter":"0xd1","applicationId":"0","amountRoundToken":"1","amountUSD":1},
			{"id":"v2","voter":"0xd2","applicationId":"0","amountRoundToken":"1","amountUSD":1},
			{"id":"v3","voter":"0xd1","applicationId":"1","amountRoundToken":"2","amountUSD":2}]`,
	}
	for key, body := range docs {
		path := filepath.Join(dir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return "file://" + filepath.ToSlash(dir)
}

func TestCalculate_FixedPrice(t *testing.T) {
	src := writeRoundInputs(t)

	out, _, err := execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", testutil.RoundID,
		"--token-price", "2", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse[calculateData](t, out)
	require.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1000", resp.Data.MatchPool)
	require.Len(t, resp.Data.Matches, 2)

	// (1+1)^2 - 2 = 2 for "0"; a single donor earns nothing for "1".
	assert.Equal(t, matchRow{ApplicationID: "0", ProjectName: "Zero", Matched: "2", MatchedUSD: "4"}, resp.Data.Matches[0])
	assert.Equal(t, "0", resp.Data.Matches[1].Matched)
}

func TestCalculate_Overrides(t *testing.T) {
	src := writeRoundInputs(t)
	overrides := filepath.Join(t.TempDir(), "overrides.csv")
	require.NoError(t, os.WriteFile(overrides, []byte("contributionId,coefficient\nv2,0\n"), 0o644))

	out, _, err := execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", testutil.RoundID,
		"--token-price", "1", "--overrides", overrides, "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse[calculateData](t, out)
	for _, m := range resp.Data.Matches {
		assert.Equal(t, "0", m.Matched, m.ApplicationID)
	}
}

func TestCalculate_StorePrices(t *testing.T) {
	src := writeRoundInputs(t)
	st, dir := testutil.NewStore(t, "production")
	testutil.Seed(t, st, model.NewPrices{Prices: []model.Price{
		{ChainID: testutil.ChainID, TokenAddress: testutil.Token, PriceInUSD: decimalOf(t, "3"), BlockNumber: 100},
	}})
	require.NoError(t, st.Close())

	out, _, err := execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", testutil.RoundID,
		"--db", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Round 0xround on chain 10")
	assert.Contains(t, out, "APPLICATION")
	assert.Contains(t, out, "6.00")
}

func TestCalculate_Errors(t *testing.T) {
	src := writeRoundInputs(t)
	base := []string{"calculate", "--source", src, "--chain", "10"}

	tests := []struct {
		name    string
		args    []string
		errCode string
	}{
		{"unknown round", append(append([]string{}, base...), "--round", "0xnope", "--token-price", "1"), ErrCodeNotFound},
		{"unknown chain", []string{"calculate", "--source", src, "--chain", "1", "--round", "0xround", "--token-price", "1"}, ErrCodeNotFound},
		{"bad price", append(append([]string{}, base...), "--round", "0xround", "--token-price", "abc"), ErrCodeBadRequest},
		{"bad threshold", append(append([]string{}, base...), "--round", "0xround", "--token-price", "1", "--sybil-threshold", "x"), ErrCodeBadRequest},
		{"missing overrides", append(append([]string{}, base...), "--round", "0xround", "--token-price", "1", "--overrides", "/nonexistent.csv"), ErrCodeInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "", append(tt.args, "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decodeResponse[any](t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.errCode, resp.Error.Code)
		})
	}
}

func TestCalculate_PricingFlagsExclusive(t *testing.T) {
	src := writeRoundInputs(t)

	_, _, err := execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", "0xround")
	require.Error(t, err, "one of --token-price and --db is required")

	_, _, err = execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", "0xround",
		"--token-price", "1", "--db", t.TempDir())
	require.Error(t, err)
}

func TestCalculate_OverridesMissingColumn(t *testing.T) {
	src := writeRoundInputs(t)
	overrides := filepath.Join(t.TempDir(), "overrides.csv")
	require.NoError(t, os.WriteFile(overrides, []byte("id,coefficient\nv2,0\n"), 0o644))

	out, _, err := execute(t, "", "calculate", "--source", src, "--chain", "10", "--round", "0xround",
		"--token-price", "1", "--overrides", overrides, "--format", "json")
	require.Error(t, err)
	resp := decodeResponse[any](t, out)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}
