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

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latticeq/latticeq/pkg/log"
)

// MetricsConfig defines the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// SetDefaults fills unset fields with defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 9190
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

// Orchestrator metrics. Registered once per Server.
type Collectors struct {
	Ticks         prometheus.Counter
	Steps         *prometheus.CounterVec
	Corrections   *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Actionable    prometheus.Gauge
	StageAdvances prometheus.Counter
}

func newCollectors() *Collectors {
	return &Collectors{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticeq_daemon_ticks_total",
			Help: "Number of daemon polling ticks executed.",
		}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latticeq_job_steps_total",
			Help: "Number of state machine steps, by result.",
		}, []string{"result"}),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latticeq_corrections_total",
			Help: "Number of self-correction actions applied, by category.",
		}, []string{"category"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latticeq_job_failures_total",
			Help: "Number of terminally failed jobs, by category.",
		}, []string{"category"}),
		Actionable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latticeq_actionable_jobs",
			Help: "Number of non-terminal jobs seen on the last tick.",
		}),
		StageAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticeq_stage_advances_total",
			Help: "Number of completed pipeline stages.",
		}),
	}
}

func (c *Collectors) register(reg *prometheus.Registry) {
	reg.MustRegister(c.Ticks, c.Steps, c.Corrections, c.Failures, c.Actionable, c.StageAdvances)
}

// Server exposes the prometheus registry over HTTP on a dedicated port.
type Server struct {
	cfg        MetricsConfig
	registry   *prometheus.Registry
	collectors *Collectors
	httpSrv    *http.Server
}

// NewServer builds a metrics server with the orchestrator collectors and
// standard Go runtime collectors registered.
func NewServer(cfg MetricsConfig) *Server {
	cfg.SetDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := newCollectors()
	c.register(reg)

	return &Server{cfg: cfg, registry: reg, collectors: c}
}

// Collectors returns the orchestrator collectors for instrumentation.
func (s *Server) Collectors() *Collectors {
	return s.collectors
}

// Registry returns the underlying registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start serves the metrics endpoint in a background goroutine. No-op when
// disabled.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The daemon keeps running without metrics rather than dying.
			log.Errorw("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Stop shuts the metrics endpoint down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
