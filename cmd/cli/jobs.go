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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/pkg/database"
)

var (
	dbPath string

	listStatus string

	enqueueID       string
	enqueueMaterial string
	enqueueFormula  string
	enqueueDir      string
	enqueuePipeline string
	enqueueParams   []string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage simulation job records",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job records",
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one job record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Register a staged job directory for orchestration",
	RunE:  runJobsEnqueue,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-queue a failed job's current stage with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

func init() {
	jobsCmd.PersistentFlags().StringVar(&dbPath, "db", "jobs.db", "path to the job store")

	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status, e.g. FAILED")

	jobsEnqueueCmd.Flags().StringVar(&enqueueID, "id", "", "job id (generated when empty)")
	jobsEnqueueCmd.Flags().StringVar(&enqueueMaterial, "material", "", "material key, e.g. mp-149")
	jobsEnqueueCmd.Flags().StringVar(&enqueueFormula, "formula", "", "chemical formula")
	jobsEnqueueCmd.Flags().StringVar(&enqueueDir, "dir", "", "absolute staged job directory on the cluster")
	jobsEnqueueCmd.Flags().StringVar(&enqueuePipeline, "pipeline", "relaxation,static,bands", "comma-separated stage names")
	jobsEnqueueCmd.Flags().StringArrayVar(&enqueueParams, "param", nil, "initial solver parameter, KEY=VALUE, repeatable")
	_ = jobsEnqueueCmd.MarkFlagRequired("dir")
	_ = jobsEnqueueCmd.MarkFlagRequired("formula")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsEnqueueCmd, jobsRetryCmd)
}

func openJobRepo() (repo.IJobRepository, func(), error) {
	mgr, err := database.NewManager(database.Config{Path: dbPath})
	if err != nil {
		return nil, nil, fmt.Errorf("open job store %s: %w", dbPath, err)
	}
	if err := repo.Migrate(mgr); err != nil {
		_ = mgr.Close()
		return nil, nil, err
	}
	return repo.NewJobRepo(mgr), func() { _ = mgr.Close() }, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	r, closer, err := openJobRepo()
	if err != nil {
		return err
	}
	defer closer()

	query := &repo.JobQuery{Status: model.Status(strings.ToUpper(strings.TrimSpace(listStatus)))}
	recs, total, err := r.List(context.Background(), query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFORMULA\tSTAGE\tSTATUS\tRETRIES\tUPDATED")
	for _, rec := range recs {
		stage, ok := rec.CurrentStage()
		if !ok {
			stage = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.Formula, stage, rec.Status, rec.RetryCount,
			rec.UpdateTime.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d record(s)\n", total)
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	r, closer, err := openJobRepo()
	if err != nil {
		return err
	}
	defer closer()

	rec, err := r.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	raw, err := sonic.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func runJobsEnqueue(cmd *cobra.Command, args []string) error {
	r, closer, err := openJobRepo()
	if err != nil {
		return err
	}
	defer closer()

	id := strings.TrimSpace(enqueueID)
	if id == "" {
		id = uuid.NewString()
	}

	var stages model.StageList
	for _, s := range strings.Split(enqueuePipeline, ",") {
		if s = strings.TrimSpace(s); s != "" {
			stages = append(stages, s)
		}
	}

	params := model.ParameterSet{}
	for _, p := range enqueueParams {
		key, value, found := strings.Cut(p, "=")
		if !found || strings.TrimSpace(key) == "" {
			return fmt.Errorf("malformed --param %q, expected KEY=VALUE", p)
		}
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	rec := &model.JobRecord{
		ID:            id,
		MaterialKey:   strings.TrimSpace(enqueueMaterial),
		Formula:       strings.TrimSpace(enqueueFormula),
		DirectoryPath: strings.TrimSpace(enqueueDir),
		Pipeline:      stages,
		Parameters:    params,
		Status:        model.StatusCreated,
	}
	if err := r.Create(context.Background(), rec); err != nil {
		return err
	}
	fmt.Printf("enqueued job %s (%d stages)\n", rec.ID, len(stages))
	return nil
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	r, closer, err := openJobRepo()
	if err != nil {
		return err
	}
	defer closer()

	ctx := context.Background()
	rec, err := r.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if rec.Status != model.StatusFailed {
		return fmt.Errorf("job %s is %s, only FAILED jobs can be retried", rec.ID, rec.Status)
	}

	rec.AppendCorrection(model.CorrectionEntry{
		Time:      time.Now(),
		Category:  rec.FailureReason,
		Action:    "manual-retry",
		Rationale: "operator override, stage re-queued with a fresh retry budget",
	})
	rec.Status = model.StatusPending
	rec.RetryCount = 0
	rec.RemoteJobID = ""
	rec.FailureReason = ""
	if err := r.Requeue(ctx, rec.Version, rec); err != nil {
		return err
	}
	fmt.Printf("job %s re-queued\n", rec.ID)
	return nil
}
