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

package classifier

import (
	"fmt"
	"strings"
	"testing"
)

func TestClassify_KnownCrashSignatures(t *testing.T) {
	c := New()
	tests := []struct {
		name string
		log  string
		want Category
	}{
		{"zhegv", "LAPACK: Routine ZHEGV failed!", CategoryDiagonalization},
		{"edddav", "Error EDDDAV: Call to ZHEGV failed", CategoryDiagonalization}, // first rule wins
		{"edddav only", "WARNING in EDDDAV: call to seclr2 failed", CategorySubspaceGradient},
		{"fexcp", "ERROR FEXCP: supplied exchange-correlation table", CategoryExchangeCorrelation},
		{"zbrent", "ZBRENT: fatal error in bracketing", CategoryIonRelaxation},
		{"bands", "TOO FEW BANDS!! CHANGE NBANDS", CategoryBandCount},
		{"healthy", "aborting loop because EDIFF is reached\n reached required accuracy - stopping structural energy minimisation", Healthy},
		{"unknown", "segmentation fault (core dumped)", Unknown},
		{"empty", "", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.log); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_CrashBeatsConvergenceMarker(t *testing.T) {
	// A crash after a converged ionic step must not be labeled healthy.
	c := New()
	log := "reached required accuracy\nLAPACK: Routine ZHEGV failed!"
	if got := c.Classify(log); got != CategoryDiagonalization {
		t.Fatalf("Classify() = %s, want %s", got, CategoryDiagonalization)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := New()
	log := "WARNING in EDDDAV: call to seclr2 failed"
	first := c.Classify(log)
	for i := 0; i < 5; i++ {
		if got := c.Classify(log); got != first {
			t.Fatalf("classification not stable: %s then %s", first, got)
		}
	}
}

func scfLog(steps int, firstDelta, lastDelta string) string {
	var b strings.Builder
	for i := 1; i <= steps; i++ {
		delta := firstDelta
		if i == steps {
			delta = lastDelta
		}
		fmt.Fprintf(&b, "DAV:  %2d    -0.58432E+02    %s   -0.12E-04  4544   0.23E-01\n", i, delta)
	}
	return b.String()
}

func TestClassify_SlowConvergence(t *testing.T) {
	c := New()

	// Many steps, shrinking dE, no convergence marker: stuck.
	log := scfLog(80, "0.52E-01", "0.38E-03")
	if got := c.Classify(log); got != CategorySlowConvergence {
		t.Fatalf("shrinking residual = %s, want %s", got, CategorySlowConvergence)
	}

	// Many steps with growing dE is divergence, not slow convergence.
	log = scfLog(80, "0.52E-03", "0.38E+01")
	if got := c.Classify(log); got != Unknown {
		t.Fatalf("growing residual = %s, want %s", got, Unknown)
	}

	// Few steps: still in progress, nothing to flag.
	log = scfLog(12, "0.52E-01", "0.38E-03")
	if got := c.Classify(log); got != Unknown {
		t.Fatalf("short run = %s, want %s", got, Unknown)
	}

	// Converged runs are healthy regardless of step count.
	log = scfLog(80, "0.52E-01", "0.38E-05") + "reached required accuracy\n"
	if got := c.Classify(log); got != Healthy {
		t.Fatalf("converged long run = %s, want %s", got, Healthy)
	}
}

func TestClassify_CustomRuleTable(t *testing.T) {
	rules := []Rule{{Pattern: "SITE_SPECIFIC", Category: Category("SITE"), Hint: "site build quirk"}}
	c := NewWithRules(rules, 10)
	if got := c.Classify("SITE_SPECIFIC failure"); got != Category("SITE") {
		t.Fatalf("custom rule not applied: %s", got)
	}
	// Default signatures are gone with a replaced table.
	if got := c.Classify("ZHEGV"); got != Unknown {
		t.Fatalf("default rule leaked into custom table: %s", got)
	}
}

func TestHint(t *testing.T) {
	c := New()
	if h := c.Hint(CategoryDiagonalization); h == "" {
		t.Fatal("expected hint for diagonalization")
	}
	if h := c.Hint(Unknown); h != "" {
		t.Fatalf("unexpected hint for unknown: %q", h)
	}
}
