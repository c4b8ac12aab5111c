// Package calculator computes quadratic funding matches for a round.
//
// The pipeline filters contributions through overrides and sybil defense,
// runs the linear QF engine (per-recipient subsidy, saturation scaling to the
// pool, cap water-filling), then joins each result with its application and
// values it in USD through a PriceOracle. The engine is pure; only the
// InputSource and PriceOracle boundaries block.
package calculator
