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

// Package workflow drives one job record through its pipeline stages. Each
// Step performs at most one status transition and persists it with a
// compare-and-swap, so a job observed by two workers advances exactly once.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/internal/pkg/classifier"
	"github.com/latticeq/latticeq/internal/pkg/cluster"
	"github.com/latticeq/latticeq/internal/pkg/policy"
	"github.com/latticeq/latticeq/pkg/event"
	"github.com/latticeq/latticeq/pkg/log"
	"github.com/latticeq/latticeq/pkg/metrics"
	"github.com/latticeq/latticeq/pkg/serde"
)

const (
	defaultScriptName  = "run.sh"
	defaultLogFileName = "run.log"

	// paramsFileName is the audit artifact written next to the batch script
	// before each submission, so the staged inputs always reflect the
	// corrected parameter set.
	paramsFileName = "parameters.json"
)

// Machine advances job records through the stage lifecycle.
type Machine struct {
	repo       repo.IJobRepository
	sched      cluster.Scheduler
	classifier *classifier.Classifier
	policy     *policy.Policy

	hooks      []TransitionHook
	bus        *event.Bus
	collectors *metrics.Collectors

	scriptName  string
	logFileName string
}

// Option customizes a Machine.
type Option func(*Machine)

// WithHooks sets the transition hooks run on stage advance.
func WithHooks(hooks ...TransitionHook) Option {
	return func(m *Machine) { m.hooks = hooks }
}

// WithBus publishes a TransitionEvent for every persisted status change.
func WithBus(bus *event.Bus) Option {
	return func(m *Machine) { m.bus = bus }
}

// WithCollectors wires step outcome counters.
func WithCollectors(c *metrics.Collectors) Option {
	return func(m *Machine) { m.collectors = c }
}

// WithScript overrides the batch script and solver log file names.
func WithScript(scriptName, logFileName string) Option {
	return func(m *Machine) {
		if scriptName != "" {
			m.scriptName = scriptName
		}
		if logFileName != "" {
			m.logFileName = logFileName
		}
	}
}

// NewMachine builds a state machine over the given collaborators.
func NewMachine(r repo.IJobRepository, sched cluster.Scheduler, cls *classifier.Classifier, pol *policy.Policy, opts ...Option) *Machine {
	m := &Machine{
		repo:        r,
		sched:       sched,
		classifier:  cls,
		policy:      pol,
		hooks:       DefaultHooks(),
		scriptName:  defaultScriptName,
		logFileName: defaultLogFileName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step advances the record by at most one transition and persists the
// result. A nil return means the step either committed or had nothing to do.
//
// A non-nil error is always an infrastructure problem (scheduler
// unreachable, store conflict): nothing was persisted, the record is
// untouched in the store and the caller reschedules it. Solver-level
// failures never surface as errors; they are persisted as status changes
// with an audit trail.
func (m *Machine) Step(ctx context.Context, rec *model.JobRecord) error {
	if rec.Status.IsTerminal() {
		return nil
	}

	prev := rec.Status
	expected := rec.Version
	corrections := len(rec.CorrectionLog)
	var (
		changed bool
		err     error
	)
	switch rec.Status {
	case model.StatusCreated:
		rec.Status = model.StatusPending
		changed = true
	case model.StatusPending:
		changed, err = m.submit(ctx, rec)
	case model.StatusSubmitted:
		changed, err = m.pollSubmitted(ctx, rec)
	case model.StatusRunning:
		changed, err = m.pollRunning(ctx, rec)
	default:
		return fmt.Errorf("job %s in unexpected status %s", rec.ID, rec.Status)
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if !model.CanTransition(prev, rec.Status) && prev != rec.Status {
		// The handlers only produce graph-legal transitions; anything else
		// is a bug worth failing loudly on.
		return fmt.Errorf("illegal transition %s -> %s for job %s", prev, rec.Status, rec.ID)
	}
	if err := m.repo.CompareAndSwap(ctx, expected, rec); err != nil {
		return err
	}

	stage, _ := rec.CurrentStage()
	log.Infow("job transitioned",
		"job", rec.ID, "from", prev, "to", rec.Status,
		"stage", stage, "stage_index", rec.CurrentStageIndex,
		"retry_count", rec.RetryCount)

	// The transition carries a failure category when this step recorded a
	// correction or escalation.
	category := ""
	if len(rec.CorrectionLog) > corrections {
		category = rec.CorrectionLog[len(rec.CorrectionLog)-1].Category
	}
	m.publish(rec, prev, category)
	return nil
}

// submit queues the current stage's batch script.
func (m *Machine) submit(ctx context.Context, rec *model.JobRecord) (bool, error) {
	stage, ok := rec.CurrentStage()
	if !ok {
		// Cursor past the pipeline with a non-terminal status should not
		// happen; record it rather than spinning on it.
		rec.Status = model.StatusFailed
		rec.FailureReason = "stage cursor past end of pipeline"
		return true, nil
	}
	dir := remoteJoin(rec.DirectoryPath, stage)

	if err := m.writeParameters(ctx, dir, rec); err != nil {
		return false, errors.Wrap(err, "write parameter file")
	}

	remoteID, err := m.sched.Submit(ctx, dir, m.scriptName)
	if err != nil {
		if cluster.IsPermanentSubmission(err) {
			rec.Status = model.StatusFailed
			rec.FailureReason = err.Error()
			rec.RemoteJobID = ""
			m.countFailure("SUBMISSION")
			log.Warnw("submission permanently rejected", "job", rec.ID, "stage", stage, "error", err)
			return true, nil
		}
		return false, errors.Wrapf(err, "submit stage %s", stage)
	}

	rec.Status = model.StatusSubmitted
	rec.RemoteJobID = remoteID
	return true, nil
}

// pollSubmitted waits for the scheduler to start the job. Any sighting of
// the job past the queue, including an already-finished one, moves the
// record to RUNNING; the outcome is read on the next step.
func (m *Machine) pollSubmitted(ctx context.Context, rec *model.JobRecord) (bool, error) {
	qs, err := m.sched.PollStatus(ctx, rec.RemoteJobID)
	if err != nil {
		return false, errors.Wrapf(err, "poll remote job %s", rec.RemoteJobID)
	}
	switch qs {
	case cluster.StatusRunning, cluster.StatusCompleted, cluster.StatusFailed:
		rec.Status = model.StatusRunning
		return true, nil
	default:
		// Still queued, or the scheduler has not registered the id yet.
		return false, nil
	}
}

// pollRunning watches the executing job and handles its outcome.
func (m *Machine) pollRunning(ctx context.Context, rec *model.JobRecord) (bool, error) {
	qs, err := m.sched.PollStatus(ctx, rec.RemoteJobID)
	if err != nil {
		return false, errors.Wrapf(err, "poll remote job %s", rec.RemoteJobID)
	}
	switch qs {
	case cluster.StatusCompleted:
		return m.finishStage(ctx, rec)
	case cluster.StatusFailed:
		cat, err := m.classifyLog(ctx, rec)
		if err != nil {
			return false, err
		}
		m.applyPolicy(rec, cat)
		return true, nil
	default:
		// Running, requeued, or momentarily unknown: check again next tick.
		return false, nil
	}
}

// finishStage classifies a completed run and either advances the pipeline or
// routes the failure through the correction policy. A completion report from
// the scheduler does not mean the solver succeeded.
func (m *Machine) finishStage(ctx context.Context, rec *model.JobRecord) (bool, error) {
	stage, _ := rec.CurrentStage()
	dir := remoteJoin(rec.DirectoryPath, stage)

	text, err := m.sched.FetchText(ctx, dir, m.logFileName)
	if err != nil && !errors.Is(err, cluster.ErrFileNotFound) {
		return false, errors.Wrapf(err, "fetch %s for stage %s", m.logFileName, stage)
	}

	cat := m.classifier.Classify(text)
	if cat != classifier.Healthy {
		m.applyPolicy(rec, cat)
		return true, nil
	}

	if rec.LastStage() {
		rec.CurrentStageIndex++
		rec.Status = model.StatusCompleted
		rec.RemoteJobID = ""
		log.Infow("pipeline complete", "job", rec.ID, "stages", len(rec.Pipeline))
		return true, nil
	}

	nextStage := rec.Pipeline[rec.CurrentStageIndex+1]
	for _, h := range m.hooks {
		if err := h.Apply(ctx, m.sched, rec, stage, nextStage); err != nil {
			if errors.Is(err, cluster.ErrFileNotFound) {
				// The finished stage is missing an output its successor
				// needs. That is a stage failure, not an infrastructure one.
				m.applyPolicy(rec, m.hookFailureCategory(stage, nextStage, h, err))
				return true, nil
			}
			return false, errors.Wrapf(err, "transition hook %s", h.Name())
		}
	}

	rec.CurrentStageIndex++
	rec.RetryCount = 0
	rec.RemoteJobID = ""
	rec.Status = model.StatusPending
	if m.collectors != nil {
		m.collectors.StageAdvances.Inc()
	}
	log.Infow("stage advanced", "job", rec.ID, "from", stage, "to", nextStage)
	return true, nil
}

// hookFailureCategory logs the broken handoff and maps it to Unknown so the
// policy escalates it; an incomplete output set has no automatic fix.
func (m *Machine) hookFailureCategory(from, to string, h TransitionHook, err error) classifier.Category {
	log.Warnw("transition hook failed on missing output",
		"hook", h.Name(), "from", from, "to", to, "error", err)
	return classifier.Unknown
}

// classifyLog fetches and classifies the solver log, tolerating a missing
// file: a crashed run may never have opened its log. Any other fetch error is
// an infrastructure problem and surfaces as a step error, so a transient
// blip never feeds an empty log into the policy.
func (m *Machine) classifyLog(ctx context.Context, rec *model.JobRecord) (classifier.Category, error) {
	stage, _ := rec.CurrentStage()
	dir := remoteJoin(rec.DirectoryPath, stage)
	text, err := m.sched.FetchText(ctx, dir, m.logFileName)
	if err != nil {
		if !errors.Is(err, cluster.ErrFileNotFound) {
			return "", errors.Wrapf(err, "fetch %s for stage %s", m.logFileName, stage)
		}
		text = ""
	}
	return m.classifier.Classify(text), nil
}

// applyPolicy turns a classified failure into a persisted decision: a
// corrected resubmission or a terminal escalation. Every decision lands in
// the correction log.
func (m *Machine) applyPolicy(rec *model.JobRecord, cat classifier.Category) {
	action := m.policy.Decide(cat, rec)
	entry := model.CorrectionEntry{
		Time:      time.Now(),
		Category:  string(cat),
		Action:    string(action.Kind),
		Rationale: action.Rationale,
		Delta:     action.Delta,
	}

	switch action.Kind {
	case policy.PatchAndResubmit, policy.ResubmitUnchanged:
		rec.AppendCorrection(entry)
		rec.RetryCount++
		rec.RemoteJobID = ""
		rec.Status = model.StatusPending
		m.countCorrection(string(cat))
		log.Infow("self-correction scheduled",
			"job", rec.ID, "category", cat, "action", action.Kind,
			"delta", action.Delta, "retry_count", rec.RetryCount)
	default:
		rec.AppendCorrection(entry)
		rec.Status = model.StatusFailed
		rec.RemoteJobID = ""
		rec.FailureReason = fmt.Sprintf("%s: %s", cat, action.Rationale)
		m.countFailure(string(cat))
		log.Warnw("job escalated",
			"job", rec.ID, "category", cat, "reason", action.Rationale)
	}
}

// writeParameters stages the effective parameter set next to the batch
// script. Adapters without write support skip it; the parameter history is
// still fully recorded on the job record.
func (m *Machine) writeParameters(ctx context.Context, dir string, rec *model.JobRecord) error {
	if len(rec.Parameters) == 0 {
		return nil
	}
	writer, ok := m.sched.(cluster.TextWriter)
	if !ok {
		return nil
	}
	return writer.WriteText(ctx, dir, paramsFileName, serde.MarshalStringMapIndent(rec.Parameters))
}

func (m *Machine) publish(rec *model.JobRecord, from model.Status, category string) {
	if m.bus == nil {
		return
	}
	stage, _ := rec.CurrentStage()
	m.bus.Publish(TransitionEvent{
		JobID:    rec.ID,
		Stage:    stage,
		From:     from,
		To:       rec.Status,
		Category: category,
	})
}

func (m *Machine) countCorrection(category string) {
	if m.collectors != nil {
		m.collectors.Corrections.WithLabelValues(category).Inc()
	}
}

func (m *Machine) countFailure(category string) {
	if m.collectors != nil {
		m.collectors.Failures.WithLabelValues(category).Inc()
	}
}
