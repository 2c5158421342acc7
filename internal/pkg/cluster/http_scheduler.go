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
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// HTTPConfig defines a REST batch-scheduler gateway.
type HTTPConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
	Token   string `mapstructure:"token"`
	Timeout int    `mapstructure:"timeout"` // seconds per request
}

// SetDefaults fills unset fields with defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
}

// HTTPScheduler talks to a scheduler gateway exposing submit/status/file
// endpoints over HTTP.
type HTTPScheduler struct {
	client *resty.Client
}

// NewHTTPScheduler creates the adapter.
func NewHTTPScheduler(cfg HTTPConfig) *HTTPScheduler {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPScheduler{client: client}
}

type submitRequest struct {
	Directory string `json:"directory"`
	Script    string `json:"script"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	State string `json:"state"`
}

// Submit posts the job directory and script to the gateway.
func (h *HTTPScheduler) Submit(ctx context.Context, dirPath, scriptName string) (string, error) {
	body, err := sonic.Marshal(submitRequest{Directory: dirPath, Script: scriptName})
	if err != nil {
		return "", err
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/v1/batch/jobs")
	if err != nil {
		return "", errors.Wrap(err, "submit request")
	}

	var parsed submitResponse
	if uerr := sonic.Unmarshal(resp.Body(), &parsed); uerr != nil && resp.IsSuccess() {
		return "", errors.Wrap(uerr, "decode submit response")
	}
	switch {
	case resp.IsSuccess():
		if parsed.JobID == "" {
			return "", fmt.Errorf("gateway returned no job id")
		}
		return parsed.JobID, nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		// 4xx means the submission itself is bad; retrying cannot help.
		reason := parsed.Error
		if reason == "" {
			reason = resp.Status()
		}
		return "", &SubmissionError{Reason: reason}
	default:
		return "", fmt.Errorf("gateway submit failed: %s", resp.Status())
	}
}

// PollStatus fetches the queue state from the gateway.
func (h *HTTPScheduler) PollStatus(ctx context.Context, remoteJobID string) (QueueStatus, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Get("/api/v1/batch/jobs/" + remoteJobID)
	if err != nil {
		return StatusUnknown, errors.Wrap(err, "poll request")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return StatusUnknown, nil
	}
	if !resp.IsSuccess() {
		return StatusUnknown, fmt.Errorf("gateway poll failed: %s", resp.Status())
	}
	var parsed statusResponse
	if err := sonic.Unmarshal(resp.Body(), &parsed); err != nil {
		return StatusUnknown, errors.Wrap(err, "decode poll response")
	}
	switch strings.ToUpper(parsed.State) {
	case "QUEUED", "PENDING":
		return StatusQueued, nil
	case "RUNNING":
		return StatusRunning, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "FAILED", "CANCELLED", "TIMEOUT":
		return StatusFailed, nil
	default:
		return StatusUnknown, nil
	}
}

// FetchText downloads a file from the job directory through the gateway.
func (h *HTTPScheduler) FetchText(ctx context.Context, dirPath, relFile string) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("dir", dirPath).
		SetQueryParam("path", relFile).
		Get("/api/v1/batch/files")
	if err != nil {
		return "", errors.Wrap(err, "fetch request")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrFileNotFound
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("gateway fetch failed: %s", resp.Status())
	}
	return string(resp.Body()), nil
}

// WriteText uploads a file into the job directory through the gateway.
func (h *HTTPScheduler) WriteText(ctx context.Context, dirPath, relFile, content string) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("dir", dirPath).
		SetQueryParam("path", relFile).
		SetBody(content).
		Put("/api/v1/batch/files")
	if err != nil {
		return errors.Wrap(err, "write request")
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("gateway write failed: %s", resp.Status())
	}
	return nil
}
