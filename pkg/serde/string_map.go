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

// Package serde holds small serialization helpers shared across layers.
package serde

import (
	"github.com/bytedance/sonic"
)

// MarshalStringMapIndent serializes map[string]string to indented JSON.
// Parameter files staged next to batch scripts use it; empty input yields
// an empty string.
func MarshalStringMapIndent(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := sonic.MarshalIndent(data, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}
