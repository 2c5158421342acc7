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

// Package bootstrap wires the orchestrator components and owns process
// lifecycle: construction order on the way up, reverse order on the way
// down.
package bootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/latticeq/latticeq/internal/engine/config"
	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/internal/engine/router"
	"github.com/latticeq/latticeq/internal/pkg/classifier"
	"github.com/latticeq/latticeq/internal/pkg/daemon"
	"github.com/latticeq/latticeq/internal/pkg/notify"
	"github.com/latticeq/latticeq/internal/pkg/policy"
	"github.com/latticeq/latticeq/internal/pkg/workflow"
	"github.com/latticeq/latticeq/pkg/database"
	"github.com/latticeq/latticeq/pkg/event"
	"github.com/latticeq/latticeq/pkg/log"
	"github.com/latticeq/latticeq/pkg/metrics"
	"github.com/latticeq/latticeq/pkg/ringbuffer"
)

// App holds the wired orchestrator.
type App struct {
	HttpApp       *fiber.App
	MetricsServer *metrics.Server
	Daemon        *daemon.Daemon
	JobRepo       repo.IJobRepository
	Bus           *event.Bus
	DB            database.Manager
	AppConf       *config.AppConfig
}

// NewApp loads configuration and builds every component. The returned
// cleanup releases resources in reverse construction order.
func NewApp(configFile string) (*App, func(), error) {
	conf := config.NewConf(configFile)

	if err := log.Init(&conf.Log); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}

	db, err := database.NewManager(conf.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open job store: %w", err)
	}
	if err := repo.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate job store: %w", err)
	}
	jobRepo := repo.NewJobRepo(db)

	sched, err := config.BuildScheduler(conf.Cluster)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	metricsServer := metrics.NewServer(conf.Metrics)
	bus := event.NewBus()

	// Recent transitions stay in memory for the inspection API; escalations
	// additionally go out through the notifier.
	history := ringbuffer.NewHistory[workflow.TransitionEvent](256)
	bus.Subscribe(workflow.EventJobTransition, event.HandlerFunc(func(e event.Event) {
		if te, ok := e.(workflow.TransitionEvent); ok {
			history.Append(te)
		}
	}))
	notify.New(conf.Notify).Register(bus)

	machine := workflow.NewMachine(
		jobRepo, sched,
		classifier.NewWithRules(classifier.DefaultRules, conf.Classifier.ScfStepLimit),
		policy.New(conf.Policy),
		workflow.WithBus(bus),
		workflow.WithCollectors(metricsServer.Collectors()),
		workflow.WithScript(conf.Cluster.ScriptName, conf.Cluster.LogFileName),
	)
	dmn := daemon.New(conf.Daemon, jobRepo, machine,
		daemon.WithCollectors(metricsServer.Collectors()))

	httpApp := router.NewRouter(jobRepo, history).Router(metricsServer.Registry())

	app := &App{
		HttpApp:       httpApp,
		MetricsServer: metricsServer,
		Daemon:        dmn,
		JobRepo:       jobRepo,
		Bus:           bus,
		DB:            db,
		AppConf:       conf,
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Errorw("failed to stop metrics server", "error", err)
		}
		if err := db.Close(); err != nil {
			log.Errorw("failed to close job store", "error", err)
		}
		_ = log.Sync()
	}
	return app, cleanup, nil
}

// Run starts the servers and the control loop, then blocks until an exit
// signal arrives and everything has shut down.
func Run(app *App, cleanup func()) {
	conf := app.AppConf

	if err := app.MetricsServer.Start(); err != nil {
		log.Errorw("metrics server failed to start", "error", err)
	}

	if conf.Http.Enabled {
		go func() {
			addr := fmt.Sprintf("%s:%d", conf.Http.Host, conf.Http.Port)
			log.Infow("HTTP listener started", "address", addr)
			if err := app.HttpApp.Listen(addr); err != nil {
				log.Errorw("HTTP listener failed", "address", addr, "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// The daemon blocks until the signal context is canceled.
	if err := app.Daemon.Run(ctx); err != nil {
		log.Errorw("daemon exited with error", "error", err)
	}

	if conf.Http.Enabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
			log.Errorw("HTTP server shutdown error", "error", err)
		} else {
			log.Info("HTTP server shut down gracefully")
		}
	}

	cleanup()
	log.Info("shutdown complete")
}
