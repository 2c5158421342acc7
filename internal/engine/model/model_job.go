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

package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job. Transitions follow a fixed graph;
// see CanTransition.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusAnalyzed  Status = "ANALYZED"
	StatusFailed    Status = "FAILED"
)

// statusGraph lists the legal transitions. COMPLETED -> PENDING covers the
// stage advance on multi-stage pipelines; RUNNING -> PENDING covers a
// self-correction resubmit of the same stage.
var statusGraph = map[Status][]Status{
	StatusCreated:   {StatusPending},
	StatusPending:   {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusPending, StatusFailed},
	StatusCompleted: {StatusPending, StatusAnalyzed},
	StatusAnalyzed:  {},
	StatusFailed:    {},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range statusGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAnalyzed || s == StatusFailed
}

// ActionableStatuses are the states the daemon acts on.
var ActionableStatuses = []Status{StatusCreated, StatusPending, StatusSubmitted, StatusRunning}

// Pipeline stage names form a closed set. Unknown names are rejected at
// record creation, not discovered at runtime.
const (
	StageRelaxation = "relaxation"
	StageTransition = "transition"
	StageStatic     = "static"
	StageBands      = "bands"
)

var knownStages = map[string]bool{
	StageRelaxation: true,
	StageTransition: true,
	StageStatic:     true,
	StageBands:      true,
}

// ValidateStages checks a pipeline definition against the closed stage set.
func ValidateStages(stages []string) error {
	if len(stages) == 0 {
		return fmt.Errorf("pipeline must contain at least one stage")
	}
	for _, s := range stages {
		if !knownStages[s] {
			return fmt.Errorf("unknown pipeline stage %q", s)
		}
	}
	return nil
}

// CorrectionEntry is one append-only audit record of a parameter mutation or
// escalation decision.
type CorrectionEntry struct {
	Time      time.Time         `json:"time"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Rationale string            `json:"rationale"`
	Delta     map[string]string `json:"delta,omitempty"`
}

// JobRecord is the persistent unit of work: one simulation job driven
// through its pipeline stages.
type JobRecord struct {
	ID          string `gorm:"column:id;type:VARCHAR(64);primaryKey" json:"id"`
	MaterialKey string `gorm:"column:material_key;type:VARCHAR(64)" json:"material_key"`
	Formula     string `gorm:"column:formula;type:VARCHAR(64)" json:"formula"`

	// DirectoryPath is the absolute staged job directory on the cluster.
	DirectoryPath string `gorm:"column:directory_path;type:TEXT" json:"directory_path"`

	// Pipeline is immutable once created. CurrentStageIndex is a cursor into
	// it and never decreases.
	Pipeline          StageList `gorm:"column:pipeline;type:JSON" json:"pipeline"`
	CurrentStageIndex int       `gorm:"column:current_stage_index;type:INT" json:"current_stage_index"`

	Status      Status `gorm:"column:status;type:VARCHAR(16);index" json:"status"`
	RemoteJobID string `gorm:"column:remote_job_id;type:VARCHAR(64)" json:"remote_job_id,omitempty"`

	// RetryCount is per-stage and resets when the stage advances.
	RetryCount int `gorm:"column:retry_count;type:INT" json:"retry_count"`

	// Parameters are mutated only by the self-correction policy; every
	// mutation appends to CorrectionLog.
	Parameters    ParameterSet  `gorm:"column:parameters;type:JSON" json:"parameters"`
	CorrectionLog CorrectionLog `gorm:"column:correction_log;type:JSON" json:"correction_log"`

	FailureReason string   `gorm:"column:failure_reason;type:TEXT" json:"failure_reason,omitempty"`
	Metadata      MetaData `gorm:"column:metadata;type:JSON" json:"metadata"`

	// Version backs compare-and-swap updates.
	Version    int64     `gorm:"column:version;type:BIGINT" json:"version"`
	CreateTime time.Time `gorm:"column:create_time;type:DATETIME" json:"create_time"`
	UpdateTime time.Time `gorm:"column:update_time;type:DATETIME" json:"update_time"`
}

// TableName returns the table name.
func (JobRecord) TableName() string {
	return "t_job"
}

// CurrentStage returns the stage the cursor points at, or false when the
// pipeline is exhausted.
func (j *JobRecord) CurrentStage() (string, bool) {
	if j.CurrentStageIndex < 0 || j.CurrentStageIndex >= len(j.Pipeline) {
		return "", false
	}
	return j.Pipeline[j.CurrentStageIndex], true
}

// LastStage reports whether the cursor is on the final pipeline stage.
func (j *JobRecord) LastStage() bool {
	return j.CurrentStageIndex == len(j.Pipeline)-1
}

// AppendCorrection appends one audit entry and applies its delta to the
// parameter set, keeping the two in lockstep.
func (j *JobRecord) AppendCorrection(entry CorrectionEntry) {
	if j.Parameters == nil {
		j.Parameters = ParameterSet{}
	}
	for k, v := range entry.Delta {
		j.Parameters[k] = v
	}
	j.CorrectionLog = append(j.CorrectionLog, entry)
}
