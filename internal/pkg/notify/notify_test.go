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

package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/pkg/workflow"
	"github.com/latticeq/latticeq/pkg/event"
)

type captureChannel struct {
	messages chan string
}

func (c *captureChannel) Send(ctx context.Context, message string) error {
	c.messages <- message
	return nil
}

func TestNotifier_AnnouncesEscalations(t *testing.T) {
	ch := &captureChannel{messages: make(chan string, 4)}
	bus := event.NewBus()
	NewWithChannel(Config{Enabled: true}, ch).Register(bus)

	bus.Publish(workflow.TransitionEvent{
		JobID:    "job-a",
		Stage:    model.StageStatic,
		From:     model.StatusRunning,
		To:       model.StatusFailed,
		Category: "UNKNOWN",
	})

	select {
	case msg := <-ch.messages:
		if !strings.Contains(msg, "job-a") || !strings.Contains(msg, "UNKNOWN") {
			t.Fatalf("unexpected message: %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestNotifier_CompletionOptIn(t *testing.T) {
	ch := &captureChannel{messages: make(chan string, 4)}
	bus := event.NewBus()
	NewWithChannel(Config{Enabled: true}, ch).Register(bus)

	bus.Publish(workflow.TransitionEvent{JobID: "job-b", To: model.StatusCompleted})
	select {
	case msg := <-ch.messages:
		t.Fatalf("completion announced without opt-in: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}

	NewWithChannel(Config{Enabled: true, OnCompleted: true}, ch).Register(bus)
	bus.Publish(workflow.TransitionEvent{JobID: "job-b", To: model.StatusCompleted})
	select {
	case msg := <-ch.messages:
		if !strings.Contains(msg, "job-b") {
			t.Fatalf("unexpected message: %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no completion notification delivered")
	}
}

func TestNotifier_DisabledDoesNotSubscribe(t *testing.T) {
	ch := &captureChannel{messages: make(chan string, 4)}
	bus := event.NewBus()
	NewWithChannel(Config{Enabled: false}, ch).Register(bus)

	bus.Publish(workflow.TransitionEvent{JobID: "job-c", To: model.StatusFailed})
	select {
	case msg := <-ch.messages:
		t.Fatalf("disabled notifier sent %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
