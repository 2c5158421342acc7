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

// Package daemon runs the polling control loop: each tick lists actionable
// jobs and steps them concurrently through the state machine, one worker per
// job, never two workers on the same job.
package daemon

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/internal/pkg/workflow"
	"github.com/latticeq/latticeq/pkg/log"
	"github.com/latticeq/latticeq/pkg/metrics"
)

// Config defines the control loop parameters.
type Config struct {
	// Interval between polling ticks.
	Interval time.Duration `mapstructure:"interval"`

	// PoolSize bounds the number of jobs stepped concurrently.
	PoolSize int `mapstructure:"poolSize"`

	// MaxStepAttempts bounds the in-tick retries of one job step against
	// transient infrastructure errors. A step still failing after this many
	// attempts waits for the next tick.
	MaxStepAttempts int `mapstructure:"maxStepAttempts"`
}

// SetDefaults fills unset fields with defaults.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.MaxStepAttempts <= 0 {
		c.MaxStepAttempts = 3
	}
}

// Daemon is the orchestration loop.
type Daemon struct {
	cfg        Config
	repo       repo.IJobRepository
	machine    *workflow.Machine
	locks      *keyedMutex
	collectors *metrics.Collectors
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithCollectors wires tick and step outcome counters.
func WithCollectors(c *metrics.Collectors) Option {
	return func(d *Daemon) { d.collectors = c }
}

// New builds the daemon over the store and state machine.
func New(cfg Config, r repo.IJobRepository, m *workflow.Machine, opts ...Option) *Daemon {
	cfg.SetDefaults()
	d := &Daemon{
		cfg:     cfg,
		repo:    r,
		machine: m,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run ticks until the context is canceled. The first tick fires immediately
// so a restart picks up in-flight jobs without waiting a full interval.
func (d *Daemon) Run(ctx context.Context) error {
	log.Infow("daemon started",
		"interval", d.cfg.Interval, "pool_size", d.cfg.PoolSize)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Infow("daemon stopped")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick lists actionable jobs and steps each one on the worker pool. Jobs
// already being stepped by a previous, still-running worker are skipped.
func (d *Daemon) tick(ctx context.Context) {
	if d.collectors != nil {
		d.collectors.Ticks.Inc()
	}

	recs, err := d.repo.ListActionable(ctx)
	if err != nil {
		log.Errorw("could not list actionable jobs", "error", err)
		return
	}
	if d.collectors != nil {
		d.collectors.Actionable.Set(float64(len(recs)))
	}
	if len(recs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.PoolSize)
	for _, rec := range recs {
		id := rec.ID
		if !d.locks.TryAcquire(id) {
			continue
		}
		g.Go(func() error {
			defer d.locks.Release(id)
			d.stepJob(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// stepJob re-reads the record and steps it, retrying transient
// infrastructure errors with exponential backoff inside the tick. A version
// conflict means another writer won; the loser waits for a fresh read on the
// next tick.
func (d *Daemon) stepJob(ctx context.Context, id string) {
	op := func() (struct{}, error) {
		rec, err := d.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		if rec.Status.IsTerminal() {
			return struct{}{}, nil
		}
		if err := d.machine.Step(ctx, rec); err != nil {
			// A record that turned terminal under another writer is done.
			if errors.Is(err, repo.ErrVersionConflict) || errors.Is(err, repo.ErrImmutable) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(d.cfg.MaxStepAttempts)),
	)
	switch {
	case err == nil:
		d.countStep("ok")
	case errors.Is(err, repo.ErrVersionConflict), errors.Is(err, repo.ErrImmutable):
		d.countStep("conflict")
		log.Debugw("lost step race, deferring to next tick", "job", id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		d.countStep("canceled")
	default:
		d.countStep("error")
		log.Warnw("job step failed, will retry next tick", "job", id, "error", err)
	}
}

func (d *Daemon) countStep(result string) {
	if d.collectors != nil {
		d.collectors.Steps.WithLabelValues(result).Inc()
	}
}
