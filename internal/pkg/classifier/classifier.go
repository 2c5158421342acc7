// Copyright 2026 LatticeQ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package classifier labels solver output with a known failure category or
// healthy. Classification is a pure function of the log text: identical
// input always yields the identical category.
package classifier

import (
	"strconv"
	"strings"
)

// Category is the classification result.
type Category string

const (
	// Healthy means the stage converged and produced the completion marker.
	Healthy Category = "HEALTHY"

	// Unknown means no rule matched and no convergence marker was present.
	// Unknown is escalation-worthy; it is never folded into Healthy.
	Unknown Category = "UNKNOWN"

	CategoryDiagonalization     Category = "DIAGONALIZATION"
	CategorySubspaceGradient    Category = "SUBSPACE_GRADIENT"
	CategoryExchangeCorrelation Category = "EXCHANGE_CORRELATION"
	CategoryIonRelaxation       Category = "ION_RELAXATION"
	CategoryBandCount           Category = "BAND_COUNT"
	CategorySlowConvergence     Category = "SLOW_CONVERGENCE"
)

// convergedMarker is printed by the solver when the stage reaches the
// requested accuracy.
const convergedMarker = "reached required accuracy"

// Rule maps a log signature to a category. Rules are checked in order;
// first match wins.
type Rule struct {
	Pattern  string
	Category Category
	Hint     string
}

// DefaultRules covers the known hard solver crashes, most specific first.
var DefaultRules = []Rule{
	{Pattern: "ZHEGV", Category: CategoryDiagonalization, Hint: "diagonalization failed in the iterative matrix solver"},
	{Pattern: "EDDDAV", Category: CategorySubspaceGradient, Hint: "error in subspace rotation gradient"},
	{Pattern: "FEXCP", Category: CategoryExchangeCorrelation, Hint: "exchange-correlation table overflow"},
	{Pattern: "FEXCF", Category: CategoryExchangeCorrelation, Hint: "exchange-correlation table overflow"},
	{Pattern: "ZBRENT: fatal error", Category: CategoryIonRelaxation, Hint: "bracketing failure in ionic line search"},
	{Pattern: "TOO FEW BANDS", Category: CategoryBandCount, Hint: "insufficient bands for the electron count"},
}

// Classifier applies an ordered rule table over solver logs.
type Classifier struct {
	rules []Rule

	// scfStepLimit is the electronic step count above which an unconverged
	// run counts as slow convergence rather than still-in-progress.
	scfStepLimit int
}

// New builds a classifier with the default rule table.
func New() *Classifier {
	return NewWithRules(DefaultRules, 60)
}

// NewWithRules builds a classifier with a custom rule table; used by tests
// and by deployments that patch the table for site-specific solver builds.
func NewWithRules(rules []Rule, scfStepLimit int) *Classifier {
	if scfStepLimit <= 0 {
		scfStepLimit = 60
	}
	return &Classifier{rules: rules, scfStepLimit: scfStepLimit}
}

// Classify labels the log text. Order of checks: hard crash signatures,
// then the convergence marker, then the slow-convergence heuristic, then
// Unknown.
func (c *Classifier) Classify(logText string) Category {
	if logText == "" {
		return Unknown
	}
	for _, r := range c.rules {
		if strings.Contains(logText, r.Pattern) {
			return r.Category
		}
	}
	if strings.Contains(logText, convergedMarker) {
		return Healthy
	}
	if c.isSlowConvergence(logText) {
		return CategorySlowConvergence
	}
	return Unknown
}

// Hint returns the human-readable description for a category's rule, or
// empty for categories without one.
func (c *Classifier) Hint(cat Category) string {
	for _, r := range c.rules {
		if r.Category == cat {
			return r.Hint
		}
	}
	return ""
}

// isSlowConvergence detects a run with many electronic steps whose energy
// change is still shrinking: stuck, not diverging. Electronic steps appear
// as "DAV:" or "RMM:" lines; the third numeric column is dE.
func (c *Classifier) isSlowConvergence(logText string) bool {
	var deltas []float64
	steps := 0
	for _, line := range strings.Split(logText, "\n") {
		if !strings.Contains(line, "DAV:") && !strings.Contains(line, "RMM:") {
			continue
		}
		steps++
		if d, ok := parseEnergyDelta(line); ok {
			deltas = append(deltas, d)
		}
	}
	if steps <= c.scfStepLimit {
		return false
	}
	if len(deltas) < 2 {
		// Many steps but unparseable energies: flag it anyway, the step
		// count alone says the stage is not finishing.
		return true
	}
	first, last := abs(deltas[0]), abs(deltas[len(deltas)-1])
	return last < first
}

// parseEnergyDelta extracts the dE column from an electronic step line,
// e.g. "DAV:  10    -0.12345E+02    0.58E-03   -0.12E-04  ...".
func parseEnergyDelta(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
