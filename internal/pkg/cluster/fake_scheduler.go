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

package cluster

import (
	"context"
	"fmt"
	"sync"
)

// FakeScheduler is an in-memory Scheduler for tests. Submissions get
// sequential ids; per-job status sequences and file contents are scripted
// by the test.
type FakeScheduler struct {
	mu sync.Mutex

	nextID  int
	submits int

	// SubmitErrs is consumed one error per Submit call; nil entries mean
	// success.
	SubmitErrs []error

	// statuses maps remote job id to a queue of poll results.
	statuses map[string][]QueueStatus
	// files maps "dir/rel" to content.
	files map[string]string

	// Submitted records every (dir, script) pair in order.
	Submitted []string
}

// NewFakeScheduler creates an empty fake.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{
		statuses: make(map[string][]QueueStatus),
		files:    make(map[string]string),
	}
}

// ScriptStatuses enqueues poll results for the next submitted job id.
func (f *FakeScheduler) ScriptStatuses(remoteJobID string, seq ...QueueStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[remoteJobID] = append(f.statuses[remoteJobID], seq...)
}

// PutFile seeds a file readable via FetchText.
func (f *FakeScheduler) PutFile(dirPath, relFile, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[dirPath+"/"+relFile] = content
}

// GetFile returns a file written via WriteText or PutFile.
func (f *FakeScheduler) GetFile(dirPath, relFile string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[dirPath+"/"+relFile]
	return content, ok
}

// SubmitCount returns the number of Submit calls observed.
func (f *FakeScheduler) SubmitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// Submit assigns the next sequential id, or pops a scripted error.
func (f *FakeScheduler) Submit(ctx context.Context, dirPath, scriptName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.Submitted = append(f.Submitted, dirPath+"/"+scriptName)
	if len(f.SubmitErrs) > 0 {
		err := f.SubmitErrs[0]
		f.SubmitErrs = f.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.nextID++
	return fmt.Sprintf("fake-%d", f.nextID), nil
}

// PollStatus pops the next scripted status, repeating the last one once the
// queue drains. Unscripted jobs report UNKNOWN.
func (f *FakeScheduler) PollStatus(ctx context.Context, remoteJobID string) (QueueStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, ok := f.statuses[remoteJobID]
	if !ok || len(seq) == 0 {
		return StatusUnknown, nil
	}
	st := seq[0]
	if len(seq) > 1 {
		f.statuses[remoteJobID] = seq[1:]
	}
	return st, nil
}

// FetchText reads a seeded file.
func (f *FakeScheduler) FetchText(ctx context.Context, dirPath, relFile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[dirPath+"/"+relFile]
	if !ok {
		return "", ErrFileNotFound
	}
	return content, nil
}

// WriteText stores a file like a real adapter would.
func (f *FakeScheduler) WriteText(ctx context.Context, dirPath, relFile, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[dirPath+"/"+relFile] = content
	return nil
}
