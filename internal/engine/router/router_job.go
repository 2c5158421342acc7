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

package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/internal/engine/repo"
	"github.com/latticeq/latticeq/pkg/http"
)

func (rt *Router) jobRouter(r fiber.Router) {
	jobs := r.Group("/jobs")
	{
		jobs.Get("/", rt.listJobs)
		jobs.Get("/:jobId", rt.getJob)
	}
	r.Get("/transitions", rt.listTransitions)
}

// listTransitions returns the recent transition history, newest first. The
// history is in-memory only and resets on restart.
func (rt *Router) listTransitions(c *fiber.Ctx) error {
	if rt.transitions == nil {
		return http.WithRepList(c, []any{}, 0)
	}
	events := rt.transitions.Snapshot()
	return http.WithRepList(c, events, int64(len(events)))
}

func (rt *Router) listJobs(c *fiber.Ctx) error {
	query := &repo.JobQuery{
		Status:   model.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Page:     http.QueryInt(c, "page"),
		PageSize: http.QueryInt(c, "pageSize"),
	}
	if query.PageSize <= 0 {
		query.PageSize = 50
	}

	recs, total, err := rt.jobRepo.List(c.Context(), query)
	if err != nil {
		return http.WithRepErrMsg(c, http.Failed.Code, err.Error(), c.Path())
	}
	return http.WithRepList(c, recs, total)
}

func (rt *Router) getJob(c *fiber.Ctx) error {
	jobId := strings.TrimSpace(c.Params("jobId"))
	if jobId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "job id is required", c.Path())
	}

	rec, err := rt.jobRepo.Get(c.Context(), jobId)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return http.WithRepErrMsg(c, http.NotFound.Code, http.NotFound.Msg, c.Path())
		}
		return http.WithRepErrMsg(c, http.Failed.Code, err.Error(), c.Path())
	}
	return http.WithRepOK(c, rec)
}
