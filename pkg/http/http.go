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

// Package http carries the response envelope and small helpers shared by
// every inspection API handler.
package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Response is the uniform JSON envelope of the inspection API.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// ListData wraps paged list payloads.
type ListData struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}

// Error codes of the inspection API. Zero is success.
type Errno struct {
	Code int
	Msg  string
}

var (
	OK                            = Errno{Code: 0, Msg: "ok"}
	Failed                        = Errno{Code: 10001, Msg: "internal error"}
	BadRequest                    = Errno{Code: 10002, Msg: "bad request"}
	NotFound                      = Errno{Code: 10004, Msg: "not found"}
	RequestParameterParsingFailed = Errno{Code: 10005, Msg: "request parameter parsing failed"}
)

// WithRepOK writes a success envelope.
func WithRepOK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Code: OK.Code, Msg: OK.Msg, Data: data})
}

// WithRepList writes a success envelope with a paged list payload.
func WithRepList(c *fiber.Ctx, items any, total int64) error {
	return c.JSON(Response{Code: OK.Code, Msg: OK.Msg, Data: ListData{Items: items, Total: total}})
}

// WithRepErrMsg writes an error envelope. The HTTP status stays 200; clients
// switch on the envelope code like the rest of the API surface.
func WithRepErrMsg(c *fiber.Ctx, code int, msg, path string) error {
	return c.JSON(Response{Code: code, Msg: msg, Path: path})
}

// QueryInt reads an integer query parameter, zero when absent or malformed.
func QueryInt(c *fiber.Ctx, key string) int {
	value := c.Query(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}
