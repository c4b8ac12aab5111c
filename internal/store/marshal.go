package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// usdScale is the number of fractional digits kept for USD columns.
const usdScale = 6

// usdToMicros converts a USD value to integer micro-USD, rounding half away
// from zero. Both the incremental and the recompute path go through this
// function, so their totals agree exactly.
func usdToMicros(d decimal.Decimal) int64 {
	return d.Shift(usdScale).Round(0).IntPart()
}

func microsToUSD(micros int64) decimal.Decimal {
	return decimal.New(micros, -usdScale)
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// marshalObject stores metadata as JSON TEXT with sorted keys; nil maps to NULL.
func marshalObject(obj model.Object) (sql.NullString, error) {
	if obj == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalObject parses metadata TEXT. Numbers decode through json.Number,
// so large integers keep their exact value.
func unmarshalObject(data sql.NullString) (model.Object, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}
	var obj model.Object
	if err := json.Unmarshal([]byte(data.String), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return obj, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

func unmarshalTags(data string) ([]string, error) {
	tags := []string{}
	if data == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}

// marshalSnapshots encodes status history. Block numbers are Amounts and
// encode as strings, which keeps values beyond 2^53 intact.
func marshalSnapshots(snaps []model.StatusSnapshot) (string, error) {
	if snaps == nil {
		snaps = []model.StatusSnapshot{}
	}
	data, err := json.Marshal(snaps)
	if err != nil {
		return "", fmt.Errorf("marshal status snapshots: %w", err)
	}
	return string(data), nil
}

func unmarshalSnapshots(data string) ([]model.StatusSnapshot, error) {
	snaps := []model.StatusSnapshot{}
	if data == "" {
		return snaps, nil
	}
	if err := json.Unmarshal([]byte(data), &snaps); err != nil {
		return nil, fmt.Errorf("unmarshal status snapshots: %w", err)
	}
	return snaps, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// normalizeAddress validates a required address.
func normalizeAddress(field, addr string) (string, error) {
	n, err := model.NormalizeAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return n, nil
}

// normalizeOptionalAddress is normalizeAddress that lets an empty value
// through unchanged.
func normalizeOptionalAddress(field, addr string) (string, error) {
	if addr == "" {
		return "", nil
	}
	return normalizeAddress(field, addr)
}

func parseAmountColumn(field, s string) (model.Amount, error) {
	if s == "" {
		return model.Amount{}, nil
	}
	a, err := model.ParseAmount(s)
	if err != nil {
		return model.Amount{}, fmt.Errorf("%s: %w", field, err)
	}
	return a, nil
}

func parseDecimalColumn(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// amountColumn encodes a token amount; unset amounts store as "".
func amountColumn(a model.Amount) string {
	if !a.IsSet() {
		return ""
	}
	return a.String()
}
