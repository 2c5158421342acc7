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

package workflow

import "github.com/latticeq/latticeq/internal/engine/model"

// EventJobTransition is published on every persisted status change.
const EventJobTransition = "job.transition"

// TransitionEvent describes one status change of one job.
type TransitionEvent struct {
	JobID string
	Stage string
	From  model.Status
	To    model.Status

	// Category is set when the transition was driven by a classified
	// failure.
	Category string
}

// EventName implements event.Event.
func (TransitionEvent) EventName() string { return EventJobTransition }
