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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Conf defines logger configuration.
type Conf struct {
	Output     string `mapstructure:"output"` // stdout | file
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	Level      string `mapstructure:"level"`
	RotateSize int    `mapstructure:"rotateSize"` // MB per rotated file
	RotateNum  int    `mapstructure:"rotateNum"`  // retained rotated files
	KeepDays   int    `mapstructure:"keepDays"`
}

// SetDefaults fills unset fields with defaults.
func (c *Conf) SetDefaults() {
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.Output == "file" {
		if c.Filename == "" {
			c.Filename = "latticeq.log"
		}
		if c.RotateSize <= 0 {
			c.RotateSize = 100
		}
		if c.RotateNum <= 0 {
			c.RotateNum = 10
		}
		if c.KeepDays <= 0 {
			c.KeepDays = 7
		}
	}
}

// Validate checks the configuration for usability.
func (c *Conf) Validate() error {
	if c == nil {
		return fmt.Errorf("logger config is nil")
	}
	switch c.Output {
	case "", "stdout", "file":
	default:
		return fmt.Errorf("unsupported log output %q", c.Output)
	}
	if c.Output == "file" && c.Path == "" {
		return fmt.Errorf("log path is required when output is 'file'")
	}
	return nil
}

var (
	mu     sync.RWMutex
	global = zap.NewNop().Sugar()
)

// Init builds the global logger from configuration. Safe to call more than
// once; the last successful call wins.
func Init(conf *Conf) error {
	if conf == nil {
		conf = &Conf{}
	}
	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid logger config: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var sink zapcore.WriteSyncer
	if conf.Output == "file" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(conf.Path, conf.Filename),
			MaxSize:    conf.RotateSize,
			MaxBackups: conf.RotateNum,
			MaxAge:     conf.KeepDays,
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, parseLevel(conf.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	global = logger.Sugar()
	mu.Unlock()
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the current global sugared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries.
func Sync() error {
	return L().Sync()
}
