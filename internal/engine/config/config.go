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

package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/latticeq/latticeq/internal/pkg/cluster"
	"github.com/latticeq/latticeq/internal/pkg/daemon"
	"github.com/latticeq/latticeq/internal/pkg/notify"
	"github.com/latticeq/latticeq/internal/pkg/policy"
	"github.com/latticeq/latticeq/pkg/database"
	"github.com/latticeq/latticeq/pkg/log"
	"github.com/latticeq/latticeq/pkg/metrics"
)

// HttpConfig configures the read-only inspection API.
type HttpConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// SetDefaults fills unset fields with defaults.
func (c *HttpConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8480
	}
}

// ClusterConfig selects and configures the remote execution adapter.
type ClusterConfig struct {
	// Type is "ssh", "http" or "fake".
	Type string `mapstructure:"type"`

	// ScriptName is the batch script submitted for every stage; LogFileName
	// is the solver log classified after each run.
	ScriptName  string `mapstructure:"scriptName"`
	LogFileName string `mapstructure:"logFileName"`

	SSH  cluster.SSHConfig  `mapstructure:"ssh"`
	HTTP cluster.HTTPConfig `mapstructure:"http"`
}

// SetDefaults fills unset fields with defaults.
func (c *ClusterConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ssh"
	}
	c.SSH.SetDefaults()
	c.HTTP.SetDefaults()
}

// ClassifierConfig tunes the log classifier heuristics.
type ClassifierConfig struct {
	// ScfStepLimit is the electronic step count above which an unconverged
	// run counts as slow convergence.
	ScfStepLimit int `mapstructure:"scfStepLimit"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Log        log.Conf              `mapstructure:"log"`
	Http       HttpConfig            `mapstructure:"http"`
	Database   database.Config       `mapstructure:"database"`
	Metrics    metrics.MetricsConfig `mapstructure:"metrics"`
	Daemon     daemon.Config         `mapstructure:"daemon"`
	Policy     policy.Config         `mapstructure:"policy"`
	Classifier ClassifierConfig      `mapstructure:"classifier"`
	Cluster    ClusterConfig         `mapstructure:"cluster"`
	Notify     notify.Config         `mapstructure:"notify"`
}

func (c *AppConfig) setDefaults() {
	c.Log.SetDefaults()
	c.Http.SetDefaults()
	c.Database.SetDefaults()
	c.Metrics.SetDefaults()
	c.Daemon.SetDefaults()
	c.Policy.SetDefaults()
	c.Cluster.SetDefaults()
}

var (
	cfg  AppConfig
	mu   sync.RWMutex // guards cfg across hot reloads
	once sync.Once
)

// NewConf loads the configuration file once and returns the shared config.
func NewConf(confFile string) *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confFile)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return &cfg
}

// GetConfig returns a snapshot of the current configuration; callers that
// must see hot-reloaded values read through here.
func GetConfig() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile reads the configuration and watches it for changes.
// Structural settings (database path, adapter type) only take effect on
// restart; tunables like the retry budget are re-read on reload.
func LoadConfigFile(confFile string) (AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(confFile)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("The configuration changes, re-analyze the configuration file", "file", e.Name)
		if err := config.ReadInConfig(); err != nil {
			log.Errorw("failed to re-read configuration file", "error", err, "file", e.Name)
			return
		}
		mu.Lock()
		if err := config.Unmarshal(&cfg); err != nil {
			mu.Unlock()
			log.Errorw("failed to unmarshal configuration file", "error", err, "file", e.Name)
			return
		}
		cfg.setDefaults()
		mu.Unlock()
		log.Infow("configuration reloaded successfully", "file", e.Name)
	})
	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	cfg.setDefaults()
	log.Infow("config file loaded",
		"path", confFile,
	)

	return cfg, nil
}

// BuildScheduler constructs the configured remote execution adapter.
func BuildScheduler(c ClusterConfig) (cluster.Scheduler, error) {
	switch c.Type {
	case "ssh":
		return cluster.NewSSHScheduler(c.SSH), nil
	case "http":
		return cluster.NewHTTPScheduler(c.HTTP), nil
	case "fake":
		return cluster.NewFakeScheduler(), nil
	default:
		return nil, fmt.Errorf("unknown cluster adapter type %q", c.Type)
	}
}
