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

package env

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("LATTICEQ_TEST_STR", "cluster-a")
	if got := GetEnvString("LATTICEQ_TEST_STR", "def"); got != "cluster-a" {
		t.Fatalf("GetEnvString = %q, want cluster-a", got)
	}
	t.Setenv("LATTICEQ_TEST_STR", "")
	if got := GetEnvString("LATTICEQ_TEST_STR", "def"); got != "def" {
		t.Fatalf("GetEnvString empty = %q, want def", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LATTICEQ_TEST_INT", "8")
	if got := GetEnvInt("LATTICEQ_TEST_INT", 4); got != 8 {
		t.Fatalf("GetEnvInt valid = %d, want 8", got)
	}
	t.Setenv("LATTICEQ_TEST_INT", "not-int")
	if got := GetEnvInt("LATTICEQ_TEST_INT", 4); got != 4 {
		t.Fatalf("GetEnvInt invalid = %d, want 4", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("LATTICEQ_TEST_BOOL", "TRUE")
	if !GetEnvBool("LATTICEQ_TEST_BOOL", false) {
		t.Fatal("GetEnvBool TRUE = false, want true")
	}
	t.Setenv("LATTICEQ_TEST_BOOL", "nope")
	if !GetEnvBool("LATTICEQ_TEST_BOOL", true) {
		t.Fatal("GetEnvBool invalid should return default true")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("LATTICEQ_TEST_DUR", "45s")
	if got := GetEnvDuration("LATTICEQ_TEST_DUR", time.Minute); got != 45*time.Second {
		t.Fatalf("GetEnvDuration = %v, want 45s", got)
	}
	t.Setenv("LATTICEQ_TEST_DUR", "bogus")
	if got := GetEnvDuration("LATTICEQ_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("GetEnvDuration invalid = %v, want 1m", got)
	}
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("LATTICEQ_TEST_SLICE", "relaxation, static ,bands")
	got := GetEnvStringSlice("LATTICEQ_TEST_SLICE", nil)
	want := []string{"relaxation", "static", "bands"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetEnvStringSlice = %v, want %v", got, want)
	}
	t.Setenv("LATTICEQ_TEST_SLICE", " , ")
	if got := GetEnvStringSlice("LATTICEQ_TEST_SLICE", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("GetEnvStringSlice blank = %v, want default", got)
	}
}
