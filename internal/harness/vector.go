package harness

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
)

// Vector is one matching scenario with its expected outcome.
type Vector struct {
	Name          string               `yaml:"name"`
	Description   string               `yaml:"description"`
	Pool          string               `yaml:"pool"`
	Decimals      int                  `yaml:"decimals"`
	Options       VectorOptions        `yaml:"options"`
	Contributions []VectorContribution `yaml:"contributions"`
	Expect        *Expectation         `yaml:"expect,omitempty"`
}

type VectorOptions struct {
	Minimum          string `yaml:"minimum,omitempty"`
	Cap              string `yaml:"cap,omitempty"`
	IgnoreSaturation bool   `yaml:"ignore_saturation,omitempty"`
}

type VectorContribution struct {
	ID          string `yaml:"id,omitempty"`
	Recipient   string `yaml:"recipient"`
	Contributor string `yaml:"contributor"`
	Amount      string `yaml:"amount"`
}

// Expectation lists matched amounts by recipient and, optionally, the total.
type Expectation struct {
	Matched map[string]string `yaml:"matched,omitempty"`
	Total   string            `yaml:"total,omitempty"`
}

// LoadVector reads and validates a vector file. Unknown fields are errors.
func LoadVector(path string) (*Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var v Vector
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse vector %s: %w", filepath.Base(path), err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vector %s: %w", filepath.Base(path), err)
	}
	return &v, nil
}

// LoadVectors loads every *.yaml vector in dir whose name matches filter (a
// filepath.Match pattern, empty for all), sorted by name.
func LoadVectors(dir, filter string) ([]*Vector, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []*Vector
	for _, p := range paths {
		v, err := LoadVector(p)
		if err != nil {
			return nil, err
		}
		if filter != "" {
			ok, err := filepath.Match(filter, v.Name)
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Validate checks required fields and that every amount parses.
func (v *Vector) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := parseAmount("pool", v.Pool); err != nil {
		return err
	}
	if v.Decimals < 0 {
		return fmt.Errorf("decimals must be non-negative")
	}
	if _, err := parseOptional("options.minimum", v.Options.Minimum); err != nil {
		return err
	}
	if _, err := parseOptional("options.cap", v.Options.Cap); err != nil {
		return err
	}
	for i, c := range v.Contributions {
		if c.Recipient == "" || c.Contributor == "" {
			return fmt.Errorf("contributions[%d]: recipient and contributor are required", i)
		}
		if _, err := parseAmount(fmt.Sprintf("contributions[%d].amount", i), c.Amount); err != nil {
			return err
		}
	}
	if v.Expect != nil {
		for r, m := range v.Expect.Matched {
			if _, err := parseAmount("expect.matched."+r, m); err != nil {
				return err
			}
		}
		if _, err := parseOptional("expect.total", v.Expect.Total); err != nil {
			return err
		}
	}
	return nil
}

// inputs converts the vector into engine arguments. Validate must have
// passed.
func (v *Vector) inputs() ([]calculator.Contribution, *big.Int, calculator.Options) {
	pool, _ := parseAmount("pool", v.Pool)
	minimum, _ := parseOptional("minimum", v.Options.Minimum)
	capAmount, _ := parseOptional("cap", v.Options.Cap)

	contributions := make([]calculator.Contribution, len(v.Contributions))
	for i, c := range v.Contributions {
		amount, _ := parseAmount("amount", c.Amount)
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", v.Name, i)
		}
		contributions[i] = calculator.Contribution{
			ID:          id,
			Contributor: c.Contributor,
			Recipient:   c.Recipient,
			Amount:      amount,
		}
	}
	return contributions, pool, calculator.Options{
		MinimumAmount:     minimum,
		MatchingCapAmount: capAmount,
		IgnoreSaturation:  v.Options.IgnoreSaturation,
	}
}

func parseAmount(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: %q is not a non-negative integer", field, s)
	}
	return n, nil
}

func parseOptional(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(field, s)
}
