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

// Package notify pushes escalation alerts to operators. Failed jobs need a
// human; everything else is visible through the inspection API.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/pkg/notify/channel"
	"github.com/latticeq/latticeq/internal/pkg/workflow"
	"github.com/latticeq/latticeq/pkg/event"
	"github.com/latticeq/latticeq/pkg/log"
)

// Channel delivers one text notification.
type Channel interface {
	Send(ctx context.Context, message string) error
}

// Config defines the notification settings.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Webhook string `mapstructure:"webhook"`
	Secret  string `mapstructure:"secret"`

	// OnCompleted also announces finished pipelines, not only escalations.
	OnCompleted bool `mapstructure:"onCompleted"`
}

// Notifier turns job transition events into operator notifications.
type Notifier struct {
	cfg Config
	ch  Channel
}

// New builds a notifier from configuration.
func New(cfg Config) *Notifier {
	var ch Channel
	if cfg.Secret != "" {
		ch = channel.NewWebhookChannelWithSecret(cfg.Webhook, cfg.Secret)
	} else {
		ch = channel.NewWebhookChannel(cfg.Webhook)
	}
	return &Notifier{cfg: cfg, ch: ch}
}

// NewWithChannel builds a notifier over a custom channel; used by tests.
func NewWithChannel(cfg Config, ch Channel) *Notifier {
	return &Notifier{cfg: cfg, ch: ch}
}

// Register subscribes the notifier to job transition events on the bus.
func (n *Notifier) Register(bus *event.Bus) {
	if !n.cfg.Enabled {
		return
	}
	bus.Subscribe(workflow.EventJobTransition, event.HandlerFunc(n.handle))
}

// handle filters and dispatches asynchronously; the bus is synchronous and
// the control loop must not wait on a webhook.
func (n *Notifier) handle(e event.Event) {
	te, ok := e.(workflow.TransitionEvent)
	if !ok {
		return
	}

	var message string
	switch te.To {
	case model.StatusFailed:
		message = fmt.Sprintf("job %s failed at stage %q (%s), operator attention needed",
			te.JobID, te.Stage, te.Category)
	case model.StatusCompleted:
		if !n.cfg.OnCompleted {
			return
		}
		message = fmt.Sprintf("job %s completed all pipeline stages", te.JobID)
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.ch.Send(ctx, message); err != nil {
			log.Warnw("notification delivery failed", "job", te.JobID, "error", err)
		}
	}()
}
