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

package serde

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalStringMapIndent(t *testing.T) {
	out := MarshalStringMapIndent(map[string]string{"ALGO": "Normal", "NELM": "200"})

	var back map[string]string
	require.NoError(t, sonic.UnmarshalString(out, &back))
	assert.Equal(t, map[string]string{"ALGO": "Normal", "NELM": "200"}, back)
	assert.Contains(t, out, "\n  ")
}

func TestMarshalStringMapIndent_Empty(t *testing.T) {
	assert.Equal(t, "", MarshalStringMapIndent(nil))
	assert.Equal(t, "", MarshalStringMapIndent(map[string]string{}))
}
