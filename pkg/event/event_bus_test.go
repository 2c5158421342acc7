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

package event

import (
	"sync"
	"testing"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBus_PublishRoutesByName(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe("job.transition", HandlerFunc(func(e Event) {
		got = append(got, e.EventName())
	}))

	bus.Publish(testEvent{name: "job.transition"})
	bus.Publish(testEvent{name: "other"})

	if len(got) != 1 || got[0] != "job.transition" {
		t.Fatalf("handler saw %v, want exactly one job.transition", got)
	}
}

func TestBus_MultipleHandlers(t *testing.T) {
	bus := NewBus()
	count := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe("tick", HandlerFunc(func(Event) { count++ }))
	}
	bus.Publish(testEvent{name: "tick"})
	if count != 3 {
		t.Fatalf("delivered to %d handlers, want 3", count)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe("tick", HandlerFunc(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(testEvent{name: "tick"})
		}()
	}
	wg.Wait()

	if count != 16 {
		t.Fatalf("delivered %d events, want 16", count)
	}
}
