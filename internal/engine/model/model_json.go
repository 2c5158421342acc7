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

package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/bytedance/sonic"
)

// JSON column types. Each serializes through sonic so records stay readable
// by inspection tooling while the orchestrator is down.

// StageList is the ordered pipeline stage names.
type StageList []string

// ParameterSet holds solver parameters (INCAR-style tag -> value).
type ParameterSet map[string]string

// CorrectionLog is the append-only audit trail of corrections.
type CorrectionLog []CorrectionEntry

// MetaData holds free-form annotations written by downstream analysis.
type MetaData map[string]any

func jsonValue(v any) (driver.Value, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(dst any, src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("unsupported JSON column source type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, dst)
}

func (l StageList) Value() (driver.Value, error) { return jsonValue([]string(l)) }
func (l *StageList) Scan(src any) error          { return jsonScan(l, src) }

func (p ParameterSet) Value() (driver.Value, error) { return jsonValue(map[string]string(p)) }
func (p *ParameterSet) Scan(src any) error          { return jsonScan(p, src) }

func (c CorrectionLog) Value() (driver.Value, error) { return jsonValue([]CorrectionEntry(c)) }
func (c *CorrectionLog) Scan(src any) error          { return jsonScan(c, src) }

func (m MetaData) Value() (driver.Value, error) { return jsonValue(map[string]any(m)) }
func (m *MetaData) Scan(src any) error          { return jsonScan(m, src) }
