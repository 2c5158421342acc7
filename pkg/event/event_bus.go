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

// Package event provides a synchronous in-process event bus. The
// orchestrator publishes job state transitions on it; presentation layers
// subscribe without coupling to the control loop.
package event

import "sync"

// Event is anything routable by name.
type Event interface {
	EventName() string
}

// Handler consumes events.
type Handler interface {
	Handle(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(e Event) { f(e) }

// Bus dispatches events to registered handlers. Publish is synchronous:
// handlers run on the publisher's goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish delivers the event to every handler registered for its name.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.EventName()]
	b.mu.RUnlock()
	for _, h := range handlers {
		h.Handle(e)
	}
}
