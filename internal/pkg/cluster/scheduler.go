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

// Package cluster adapts the orchestrator to a remote batch scheduler. The
// adapter performs single attempts only; callers own retry and backoff.
package cluster

import "context"

// QueueStatus is the scheduler-reported state of a submitted job.
type QueueStatus string

const (
	StatusQueued    QueueStatus = "QUEUED"
	StatusRunning   QueueStatus = "RUNNING"
	StatusCompleted QueueStatus = "COMPLETED"
	StatusFailed    QueueStatus = "FAILED"
	StatusUnknown   QueueStatus = "UNKNOWN"
)

// Scheduler is the remote execution adapter. Implementations must not
// retry internally; every call is a single attempt that may fail
// transiently.
type Scheduler interface {
	// Submit queues the batch script found in dirPath and returns the
	// scheduler-assigned job id. A *SubmissionError means resubmitting the
	// same script cannot succeed; any other error is transient.
	Submit(ctx context.Context, dirPath, scriptName string) (string, error)

	// PollStatus reports the queue state of a previously submitted job.
	PollStatus(ctx context.Context, remoteJobID string) (QueueStatus, error)

	// FetchText reads a text file relative to the job directory.
	// Returns ErrFileNotFound when the file does not exist.
	FetchText(ctx context.Context, dirPath, relFile string) (string, error)
}

// TextWriter is an optional extension for adapters that can write files
// into the job directory. Transition hooks use it to carry outputs forward
// between stages; adapters without it simply skip those hooks.
type TextWriter interface {
	WriteText(ctx context.Context, dirPath, relFile, content string) error
}
