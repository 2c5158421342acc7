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

// Package router exposes the read-only inspection API. Nothing here mutates
// job records; all writes go through the daemon or the operator CLI.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/internal/pkg/workflow"
	"github.com/latticeq/latticeq/pkg/http/middleware"
	"github.com/latticeq/latticeq/pkg/ringbuffer"
)

// Router builds the inspection API over the job repository.
type Router struct {
	jobRepo repo.IJobRepository

	// transitions is the recent transition history; nil disables the
	// endpoint.
	transitions *ringbuffer.History[workflow.TransitionEvent]
}

// NewRouter creates a router over the given repository.
func NewRouter(jobRepo repo.IJobRepository, transitions *ringbuffer.History[workflow.TransitionEvent]) *Router {
	return &Router{jobRepo: jobRepo, transitions: transitions}
}

// Router assembles the fiber app with middleware and routes. The optional
// registry receives the HTTP collectors.
func (rt *Router) Router(registry *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "latticeq",
		DisableStartupMessage: true,
	})

	app.Use(middleware.AccessLogMiddleware())
	app.Use(middleware.CorsMiddleware())
	if registry != nil {
		if err := middleware.RegisterHttpMetrics(registry); err == nil {
			app.Use(middleware.HttpMetricsMiddleware())
		}
	}

	app.Get("/healthz", rt.healthz)

	v1 := app.Group("/api/v1")
	rt.jobRouter(v1)

	return app
}

func (rt *Router) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
