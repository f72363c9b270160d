// SPDX-License-Identifier: MIT

package logreg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tallsorts/tallsorts/internal/tabular"
	"github.com/tallsorts/tallsorts/internal/validate"
)

// Penalty and class weight values understood by Fit.
const (
	PenaltyL1   = "l1"
	PenaltyL2   = "l2"
	PenaltyNone = "none"

	ClassWeightBalanced = "balanced"
	ClassWeightNone     = "none"
)

// ErrUnknownParam is returned for a training parameter column Fit does not know.
var ErrUnknownParam = errors.New("unknown training parameter")

// Params configures a single logistic regression fit.
type Params struct {
	C           float64 `json:"C" yaml:"C"`
	Tol         float64 `json:"tol" yaml:"tol"`
	MaxIter     int     `json:"max_iter" yaml:"max_iter"`
	Penalty     string  `json:"penalty" yaml:"penalty"`
	ClassWeight string  `json:"class_weight" yaml:"class_weight"`
	// Solver and RandomState are recorded for provenance; Fit always runs the
	// deterministic proximal gradient solver.
	Solver      string `json:"solver" yaml:"solver"`
	RandomState int    `json:"random_state" yaml:"random_state"`
}

// DefaultParams returns the settings used for every label unless overridden.
func DefaultParams() Params {
	return Params{
		C:           0.2,
		Tol:         1e-4,
		MaxIter:     10000,
		Penalty:     PenaltyL1,
		ClassWeight: ClassWeightBalanced,
		Solver:      "saga",
		RandomState: 0,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	v := validate.New()
	if p.C <= 0 {
		v.AddError("C", "must be positive", p.C)
	}
	if p.Tol <= 0 {
		v.AddError("tol", "must be positive", p.Tol)
	}
	v.Positive("max_iter", p.MaxIter)
	v.OneOf("penalty", p.Penalty, []string{PenaltyL1, PenaltyL2, PenaltyNone})
	v.OneOf("class_weight", p.ClassWeight, []string{ClassWeightBalanced, ClassWeightNone})
	return v.Err()
}

// set applies a single textual override. Empty values keep the current setting.
func (p *Params) set(name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var err error
	switch name {
	case "C":
		p.C, err = strconv.ParseFloat(value, 64)
	case "tol":
		p.Tol, err = strconv.ParseFloat(value, 64)
	case "max_iter":
		p.MaxIter, err = parseInt(value)
	case "random_state":
		p.RandomState, err = parseInt(value)
	case "penalty":
		p.Penalty = strings.ToLower(value)
	case "solver":
		p.Solver = value
	case "class_weight":
		p.ClassWeight = strings.ToLower(value)
		if p.ClassWeight == "null" {
			p.ClassWeight = ClassWeightNone
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	if err != nil {
		return fmt.Errorf("parameter %s: invalid value %q", name, value)
	}
	return nil
}

// parseInt accepts "10000" as well as "10000.0", which spreadsheets tend to write.
func parseInt(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// ParamsTable builds per-label parameters from an override table whose first
// column is the label and whose other columns name parameters. Labels absent
// from the table get DefaultParams.
func ParamsTable(t *tabular.Table, labels []string) (map[string]Params, error) {
	out := make(map[string]Params, len(labels))
	for _, l := range labels {
		out[l] = DefaultParams()
	}
	if t == nil {
		return out, nil
	}
	for _, name := range t.Header[1:] {
		if !knownParam(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
	}
	for _, rec := range t.Rows {
		p, ok := out[rec[0]]
		if !ok {
			continue
		}
		for j, name := range t.Header[1:] {
			if err := p.set(name, rec[j+1]); err != nil {
				return nil, fmt.Errorf("label %q: %w", rec[0], err)
			}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("label %q: %w", rec[0], err)
		}
		out[rec[0]] = p
	}
	return out, nil
}

func knownParam(name string) bool {
	switch name {
	case "C", "tol", "max_iter", "random_state", "penalty", "solver", "class_weight":
		return true
	}
	return false
}

// LoadParams reads a training parameter file for labels.
func LoadParams(path string, labels []string) (map[string]Params, error) {
	if path == "" {
		return ParamsTable(nil, labels)
	}
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	params, err := ParamsTable(t, labels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return params, nil
}
