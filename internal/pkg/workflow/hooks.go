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

package workflow

import (
	"context"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/pkg/cluster"
	"github.com/latticeq/latticeq/pkg/log"
)

// TransitionHook runs between a completed stage and the next one, before the
// next stage becomes eligible for submission. A hook error fails the
// transition; the failure is handled like any other stage failure.
type TransitionHook interface {
	Name() string
	Apply(ctx context.Context, sched cluster.Scheduler, rec *model.JobRecord, fromStage, toStage string) error
}

// FileCopy moves one output of the finished stage into the input slot of the
// next stage. Empty FromStage or ToStage matches any stage.
type FileCopy struct {
	FromStage string
	ToStage   string
	SrcFile   string
	DstFile   string
}

func (c FileCopy) matches(from, to string) bool {
	if c.FromStage != "" && c.FromStage != from {
		return false
	}
	if c.ToStage != "" && c.ToStage != to {
		return false
	}
	return true
}

// CopyForwardHook carries solver outputs across stage boundaries. Copies go
// through the scheduler adapter; adapters without write support skip the
// hook entirely.
type CopyForwardHook struct {
	Copies []FileCopy
}

// DefaultHooks is the standard stage chaining: the relaxed structure feeds
// every following stage, and the band-structure stage additionally reuses
// the charge density from the static run.
func DefaultHooks() []TransitionHook {
	return []TransitionHook{
		&CopyForwardHook{Copies: []FileCopy{
			{SrcFile: "CONTCAR", DstFile: "POSCAR"},
			{FromStage: model.StageStatic, ToStage: model.StageBands, SrcFile: "CHGCAR", DstFile: "CHGCAR"},
		}},
	}
}

// Name implements TransitionHook.
func (h *CopyForwardHook) Name() string { return "copy-forward" }

// Apply copies each matching file from the finished stage directory into the
// next stage directory. A missing source file is a stage failure: the
// finished stage did not produce the output its successor needs.
func (h *CopyForwardHook) Apply(ctx context.Context, sched cluster.Scheduler, rec *model.JobRecord, fromStage, toStage string) error {
	writer, ok := sched.(cluster.TextWriter)
	if !ok {
		log.Debugw("scheduler adapter cannot write files, skipping copy-forward",
			"job", rec.ID, "from", fromStage, "to", toStage)
		return nil
	}
	srcDir := remoteJoin(rec.DirectoryPath, fromStage)
	dstDir := remoteJoin(rec.DirectoryPath, toStage)
	for _, c := range h.Copies {
		if !c.matches(fromStage, toStage) {
			continue
		}
		content, err := sched.FetchText(ctx, srcDir, c.SrcFile)
		if err != nil {
			return err
		}
		if err := writer.WriteText(ctx, dstDir, c.DstFile, content); err != nil {
			return err
		}
		log.Debugw("carried stage output forward",
			"job", rec.ID, "src", c.SrcFile, "dst", c.DstFile, "from", fromStage, "to", toStage)
	}
	return nil
}

// remoteJoin joins remote paths with forward slashes regardless of the local
// platform.
func remoteJoin(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}
