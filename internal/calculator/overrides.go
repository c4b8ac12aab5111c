package calculator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Override columns.
const (
	ColumnContributionID = "contributionId"
	ColumnCoefficient    = "coefficient"
)

// KeepCoefficient is the only coefficient that keeps a contribution.
const KeepCoefficient = "1"

// Overrides maps contribution ids to coefficients.
type Overrides map[string]string

// Excludes reports whether an override removes the contribution: it has an
// entry whose coefficient is anything but "1".
func (o Overrides) Excludes(contributionID string) bool {
	coefficient, ok := o[contributionID]
	return ok && coefficient != KeepCoefficient
}

// ParseOverrides reads an overrides table in CSV form. The header must name
// both the contributionId and coefficient columns, in any order, alongside
// any other columns; a missing column is a ConfigurationError. Values are
// trimmed, blank ids are skipped and a later row for the same id wins.
func ParseOverrides(r io.Reader) (Overrides, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, configErrorf("overrides: empty file, missing columns %q and %q", ColumnContributionID, ColumnCoefficient)
	}
	if err != nil {
		return nil, fmt.Errorf("parse overrides: header: %w", err)
	}

	idCol, coefCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnContributionID:
			idCol = i
		case ColumnCoefficient:
			coefCol = i
		}
	}
	if idCol < 0 {
		return nil, configErrorf("overrides: missing column %q", ColumnContributionID)
	}
	if coefCol < 0 {
		return nil, configErrorf("overrides: missing column %q", ColumnCoefficient)
	}

	out := make(Overrides)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse overrides: %w", err)
		}
		if idCol >= len(rec) || coefCol >= len(rec) {
			return nil, fmt.Errorf("parse overrides: line %d: expected at least %d fields, got %d",
				line, max(idCol, coefCol)+1, len(rec))
		}
		id := strings.TrimSpace(rec[idCol])
		if id == "" {
			continue
		}
		out[id] = strings.TrimSpace(rec[coefCol])
	}
}
