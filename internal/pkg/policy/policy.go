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

// Package policy maps a classified failure to a remediation action. The
// mapping is deterministic over (category, record), and the retry budget
// bounds every automatic resubmission.
package policy

import (
	"fmt"
	"strconv"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/pkg/classifier"
)

// ActionKind discriminates remediation actions.
type ActionKind string

const (
	// PatchAndResubmit adjusts solver parameters and re-queues the stage.
	PatchAndResubmit ActionKind = "patch-and-resubmit"

	// ResubmitUnchanged re-queues the stage without parameter changes.
	ResubmitUnchanged ActionKind = "resubmit-unchanged"

	// Escalate gives up: the job fails terminally with the category as the
	// recorded reason, for a human to look at.
	Escalate ActionKind = "escalate"
)

// Action is the policy decision for one classified failure.
type Action struct {
	Kind      ActionKind
	Delta     map[string]string
	Rationale string
}

// Config defines policy limits.
type Config struct {
	MaxRetriesPerStage int `mapstructure:"maxRetriesPerStage"`
}

// SetDefaults fills unset fields with defaults.
func (c *Config) SetDefaults() {
	if c.MaxRetriesPerStage <= 0 {
		c.MaxRetriesPerStage = 3
	}
}

// Policy decides remediation for classified solver failures.
type Policy struct {
	maxRetries int
}

// New creates a policy from configuration.
func New(cfg Config) *Policy {
	cfg.SetDefaults()
	return &Policy{maxRetries: cfg.MaxRetriesPerStage}
}

// MaxRetriesPerStage returns the configured per-stage retry budget.
func (p *Policy) MaxRetriesPerStage() int {
	return p.maxRetries
}

// Decide maps a failure category and job history to an action.
//
// Unknown categories always escalate: auto-retrying an unrecognized failure
// would mask novel failure modes. An exhausted retry budget always
// escalates regardless of category.
func (p *Policy) Decide(cat classifier.Category, rec *model.JobRecord) Action {
	if cat == classifier.Unknown {
		return Action{
			Kind:      Escalate,
			Rationale: "unrecognized failure signature, requires human inspection",
		}
	}
	if rec.RetryCount >= p.maxRetries {
		return Action{
			Kind:      Escalate,
			Rationale: fmt.Sprintf("retry budget exhausted (%d/%d) for category %s", rec.RetryCount, p.maxRetries, cat),
		}
	}

	switch cat {
	case classifier.CategoryDiagonalization:
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"ALGO": "Normal"},
			Rationale: "ZHEGV diagonalization failure, switch to the blocked Davidson algorithm",
		}
	case classifier.CategorySubspaceGradient:
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"ALGO": "All"},
			Rationale: "EDDDAV subspace gradient error, fall back to conjugate-gradient optimization",
		}
	case classifier.CategoryExchangeCorrelation:
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"ISMEAR": "0", "SIGMA": "0.05"},
			Rationale: "exchange-correlation table overflow, tighten smearing",
		}
	case classifier.CategoryIonRelaxation:
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"IBRION": "1", "POTIM": "0.3"},
			Rationale: "ZBRENT bracketing failure, use quasi-Newton ionic updates with a smaller step",
		}
	case classifier.CategoryBandCount:
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"NBANDS": bumpBands(rec.Parameters)},
			Rationale: "too few bands for the electron count, raise NBANDS by half",
		}
	case classifier.CategorySlowConvergence:
		return p.decideSlowConvergence(rec)
	default:
		// A category present in the rule table but absent here is a
		// programming error; treat it like an unknown failure.
		return Action{
			Kind:      Escalate,
			Rationale: fmt.Sprintf("no remediation defined for category %s", cat),
		}
	}
}

// decideSlowConvergence walks a two-step ladder: first give the run more
// electronic steps, then damp the charge-density mixing.
func (p *Policy) decideSlowConvergence(rec *model.JobRecord) Action {
	if rec.RetryCount == 0 {
		return Action{
			Kind:      PatchAndResubmit,
			Delta:     map[string]string{"NELM": "200"},
			Rationale: "slow convergence, extend the electronic step limit",
		}
	}
	return Action{
		Kind:      PatchAndResubmit,
		Delta:     map[string]string{"AMIX": "0.2", "BMIX": "0.0001"},
		Rationale: "still converging slowly, damp linear charge-density mixing",
	}
}

// bumpBands raises NBANDS by 50%, defaulting when the current value is
// unset or unparseable.
func bumpBands(params model.ParameterSet) string {
	if cur, err := strconv.Atoi(params["NBANDS"]); err == nil && cur > 0 {
		return strconv.Itoa(cur + cur/2)
	}
	return "96"
}
