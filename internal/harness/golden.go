package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// GoldenDir is where snapshots live relative to the package under test.
const GoldenDir = "testdata/golden"

const goldenSuffix = ".golden"

// Snapshot renders a result as canonical JSON followed by a newline.
// Amounts are strings; keys are sorted.
func Snapshot(r *Result) ([]byte, error) {
	matches := make(model.Array, len(r.Calculations))
	for i, c := range r.Calculations {
		matches[i] = model.Object{
			"recipient":         model.String(c.Recipient),
			"contributions":     model.Int(c.ContributionsCount),
			"totalReceived":     model.String(c.TotalReceived.String()),
			"sumOfSqrt":         model.String(c.SumOfSqrt.String()),
			"matched":           model.String(c.Matched.String()),
			"matchedWithoutCap": model.String(c.MatchedWithoutCap.String()),
			"capOverflow":       model.String(c.CapOverflow.String()),
		}
	}
	data, err := model.MarshalCanonical(model.Object{
		"name":         model.String(r.Name),
		"pool":         model.String(r.Pool.String()),
		"totalMatched": model.String(r.Total.String()),
		"matches":      matches,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.Name, err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs v, fails t on any check error and compares the
// snapshot with testdata/golden/{v.Name}.golden.
func RunWithGolden(t *testing.T, v *Vector) *Result {
	t.Helper()

	res, err := Run(v)
	if err != nil {
		t.Fatalf("run vector %s: %v", v.Name, err)
	}
	for _, e := range res.Errors {
		t.Errorf("vector %s: %s", v.Name, e)
	}

	snap, err := Snapshot(res)
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(goldenSuffix),
	)
	g.Assert(t, v.Name, snap)
	return res
}

// CompareGolden checks a snapshot against {dir}/{name}.golden outside of
// go test. With update set the file is (re)written and the comparison
// passes. A missing golden file is reported as a mismatch.
func CompareGolden(dir, name string, snapshot []byte, update bool) (bool, error) {
	path := filepath.Join(dir, name+goldenSuffix)
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return false, fmt.Errorf("write golden %s: %w", name, err)
		}
		return true, nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read golden %s: %w", name, err)
	}
	return bytes.Equal(want, snapshot), nil
}
