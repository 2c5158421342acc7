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

package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookChannel posts text notifications to a webhook endpoint, optionally
// signing each message with an HMAC-SHA256 secret.
type WebhookChannel struct {
	webhookURL string
	secret     string // empty disables signing
	client     *resty.Client
}

// NewWebhookChannel creates an unsigned webhook channel.
func NewWebhookChannel(webhookURL string) *WebhookChannel {
	return &WebhookChannel{
		webhookURL: webhookURL,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

// NewWebhookChannelWithSecret creates a webhook channel that signs every
// message.
func NewWebhookChannelWithSecret(webhookURL, secret string) *WebhookChannel {
	c := NewWebhookChannel(webhookURL)
	c.secret = secret
	return c
}

// generateSign signs timestamp + "\n" + secret with HMAC-SHA256 and encodes
// it base64, the verification scheme common webhook receivers expect. Nil
// when signing is disabled.
func (c *WebhookChannel) generateSign() map[string]any {
	if c.secret == "" {
		return nil
	}
	timestamp := time.Now().Unix()
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, c.secret)

	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(stringToSign))
	signature := h.Sum(nil)

	return map[string]any{
		"timestamp": strconv.FormatInt(timestamp, 10),
		"sign":      base64.StdEncoding.EncodeToString(signature),
	}
}

// Validate checks that the channel can send.
func (c *WebhookChannel) Validate() error {
	if c.webhookURL == "" {
		return fmt.Errorf("webhook url is required")
	}
	return nil
}

// Send posts one text message.
func (c *WebhookChannel) Send(ctx context.Context, message string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	payload := map[string]any{
		"msg_type": "text",
		"content": map[string]string{
			"text": message,
		},
	}
	for k, v := range c.generateSign() {
		payload[k] = v
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status())
	}
	return nil
}
