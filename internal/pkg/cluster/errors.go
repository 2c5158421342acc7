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
	"errors"
	"fmt"
)

// ErrFileNotFound is returned by FetchText when the requested file does not
// exist in the job directory.
var ErrFileNotFound = errors.New("remote file not found")

// SubmissionError marks a submit failure that retrying cannot fix: a bad
// script, missing permissions, an invalid account. The state machine fails
// the job immediately instead of burning ticks.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Reason)
}

// IsPermanentSubmission reports whether err is a non-retryable submit
// failure.
func IsPermanentSubmission(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}
