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

package policy

import (
	"testing"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/pkg/classifier"
)

func TestDecide_KnownCategoriesPatch(t *testing.T) {
	p := New(Config{MaxRetriesPerStage: 3})
	rec := &model.JobRecord{}

	tests := []struct {
		cat  classifier.Category
		key  string
		want string
	}{
		{classifier.CategoryDiagonalization, "ALGO", "Normal"},
		{classifier.CategorySubspaceGradient, "ALGO", "All"},
		{classifier.CategoryExchangeCorrelation, "ISMEAR", "0"},
		{classifier.CategoryIonRelaxation, "IBRION", "1"},
	}
	for _, tt := range tests {
		action := p.Decide(tt.cat, rec)
		if action.Kind != PatchAndResubmit {
			t.Errorf("Decide(%s) kind = %s, want patch-and-resubmit", tt.cat, action.Kind)
			continue
		}
		if action.Delta[tt.key] != tt.want {
			t.Errorf("Decide(%s) delta[%s] = %q, want %q", tt.cat, tt.key, action.Delta[tt.key], tt.want)
		}
		if action.Rationale == "" {
			t.Errorf("Decide(%s) has no rationale", tt.cat)
		}
	}
}

func TestDecide_UnknownAlwaysEscalates(t *testing.T) {
	p := New(Config{MaxRetriesPerStage: 3})
	for _, retries := range []int{0, 1, 3, 10} {
		rec := &model.JobRecord{RetryCount: retries}
		action := p.Decide(classifier.Unknown, rec)
		if action.Kind != Escalate {
			t.Fatalf("Unknown at retry %d = %s, want escalate", retries, action.Kind)
		}
	}
}

func TestDecide_RetryBudgetForcesEscalation(t *testing.T) {
	p := New(Config{MaxRetriesPerStage: 3})

	rec := &model.JobRecord{RetryCount: 2}
	if action := p.Decide(classifier.CategoryDiagonalization, rec); action.Kind != PatchAndResubmit {
		t.Fatalf("retry 2 of 3 = %s, want patch-and-resubmit", action.Kind)
	}

	rec.RetryCount = 3
	if action := p.Decide(classifier.CategoryDiagonalization, rec); action.Kind != Escalate {
		t.Fatalf("retry 3 of 3 = %s, want escalate", action.Kind)
	}
}

func TestDecide_SlowConvergenceLadder(t *testing.T) {
	p := New(Config{MaxRetriesPerStage: 3})

	first := p.Decide(classifier.CategorySlowConvergence, &model.JobRecord{RetryCount: 0})
	if first.Kind != PatchAndResubmit || first.Delta["NELM"] != "200" {
		t.Fatalf("first slow-convergence action = %+v", first)
	}

	second := p.Decide(classifier.CategorySlowConvergence, &model.JobRecord{RetryCount: 1})
	if second.Kind != PatchAndResubmit || second.Delta["AMIX"] != "0.2" {
		t.Fatalf("second slow-convergence action = %+v", second)
	}
}

func TestDecide_BandCountScalesExisting(t *testing.T) {
	p := New(Config{})

	rec := &model.JobRecord{Parameters: model.ParameterSet{"NBANDS": "64"}}
	action := p.Decide(classifier.CategoryBandCount, rec)
	if action.Delta["NBANDS"] != "96" {
		t.Fatalf("NBANDS bump from 64 = %q, want 96", action.Delta["NBANDS"])
	}

	rec = &model.JobRecord{}
	action = p.Decide(classifier.CategoryBandCount, rec)
	if action.Delta["NBANDS"] != "96" {
		t.Fatalf("NBANDS default = %q, want 96", action.Delta["NBANDS"])
	}
}

func TestDecide_Deterministic(t *testing.T) {
	p := New(Config{MaxRetriesPerStage: 3})
	rec := &model.JobRecord{RetryCount: 1}
	first := p.Decide(classifier.CategoryDiagonalization, rec)
	for i := 0; i < 5; i++ {
		again := p.Decide(classifier.CategoryDiagonalization, rec)
		if again.Kind != first.Kind || again.Delta["ALGO"] != first.Delta["ALGO"] {
			t.Fatal("policy decision is not deterministic")
		}
	}
}
