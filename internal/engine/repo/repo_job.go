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

package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/pkg/database"
)

var (
	// ErrNotFound is returned when no record exists for the id.
	ErrNotFound = errors.New("job record not found")

	// ErrVersionConflict is returned by CompareAndSwap when another writer
	// updated the record first. The loser retries on a fresh read.
	ErrVersionConflict = errors.New("job record version conflict")

	// ErrImmutable is returned by CompareAndSwap when the stored record is
	// terminal. Requeue is the operator override past it.
	ErrImmutable = errors.New("job record is terminal and immutable")
)

// JobQuery defines query parameters for listing job records.
type JobQuery struct {
	Status   model.Status
	Page     int
	PageSize int
}

// IJobRepository defines persistence for job records. All mutation after
// creation goes through CompareAndSwap, keyed on the version field.
type IJobRepository interface {
	Create(ctx context.Context, rec *model.JobRecord) error
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	ListActionable(ctx context.Context) ([]*model.JobRecord, error)
	List(ctx context.Context, query *JobQuery) ([]*model.JobRecord, int64, error)
	CompareAndSwap(ctx context.Context, expectedVersion int64, rec *model.JobRecord) error
	Requeue(ctx context.Context, expectedVersion int64, rec *model.JobRecord) error
	AppendMetadata(ctx context.Context, id string, kv map[string]any) error
}

// JobRepo is the gorm-backed job repository.
type JobRepo struct {
	database.Manager
}

// NewJobRepo creates a job repository over the store connection.
func NewJobRepo(db database.Manager) IJobRepository {
	return &JobRepo{Manager: db}
}

// Migrate creates or updates the job table schema.
func Migrate(db database.Manager) error {
	return db.DB().AutoMigrate(&model.JobRecord{})
}

// Create validates and inserts a new record. The record enters the store
// with status CREATED and version 1.
func (r *JobRepo) Create(ctx context.Context, rec *model.JobRecord) error {
	if err := model.ValidateStages(rec.Pipeline); err != nil {
		return err
	}
	if rec.Status == "" {
		rec.Status = model.StatusCreated
	}
	if rec.Status != model.StatusCreated {
		return errors.New("new job records must have status CREATED")
	}
	now := time.Now()
	rec.Version = 1
	rec.CreateTime = now
	rec.UpdateTime = now
	return r.DB().WithContext(ctx).Create(rec).Error
}

// Get fetches one record by id.
func (r *JobRepo) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	var rec model.JobRecord
	err := r.DB().WithContext(ctx).
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListActionable returns every record in a non-terminal status, oldest
// update first so starved records get serviced.
func (r *JobRepo) ListActionable(ctx context.Context) ([]*model.JobRecord, error) {
	var recs []*model.JobRecord
	err := r.DB().WithContext(ctx).
		Where("status IN ?", model.ActionableStatuses).
		Order("update_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// List returns records matching the query with a total count.
func (r *JobRepo) List(ctx context.Context, query *JobQuery) ([]*model.JobRecord, int64, error) {
	db := r.DB().WithContext(ctx).Model(&model.JobRecord{})
	if query != nil && query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query != nil && query.PageSize > 0 {
		page := query.Page
		if page < 1 {
			page = 1
		}
		db = db.Offset((page - 1) * query.PageSize).Limit(query.PageSize)
	}

	var recs []*model.JobRecord
	if err := db.Order("create_time DESC").Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// CompareAndSwap writes the record only if the stored version still equals
// expectedVersion, bumping the version by one. Exactly one of two concurrent
// writers wins; the other observes ErrVersionConflict. A stored terminal
// record is immutable through this path and yields ErrImmutable.
func (r *JobRepo) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *model.JobRecord) error {
	return r.guardedWrite(ctx, expectedVersion, rec, false)
}

// Requeue is the operator override of the terminal-immutability guard: the
// same versioned write, but allowed to move a terminal record. Manual retry
// of FAILED jobs goes through here.
func (r *JobRepo) Requeue(ctx context.Context, expectedVersion int64, rec *model.JobRecord) error {
	return r.guardedWrite(ctx, expectedVersion, rec, true)
}

func (r *JobRepo) guardedWrite(ctx context.Context, expectedVersion int64, rec *model.JobRecord, allowTerminal bool) error {
	rec.UpdateTime = time.Now()
	db := r.DB().WithContext(ctx).
		Model(&model.JobRecord{}).
		Where("id = ? AND version = ?", rec.ID, expectedVersion)
	if !allowTerminal {
		db = db.Where("status IN ?", model.ActionableStatuses)
	}
	res := db.Updates(map[string]any{
			"status":              rec.Status,
			"current_stage_index": rec.CurrentStageIndex,
			"remote_job_id":       rec.RemoteJobID,
			"retry_count":         rec.RetryCount,
			"parameters":          rec.Parameters,
			"correction_log":      rec.CorrectionLog,
			"failure_reason":      rec.FailureReason,
			"version":             expectedVersion + 1,
			"update_time":         rec.UpdateTime,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing record from a terminal one from a lost race.
		cur, err := r.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		if !allowTerminal && cur.Status.IsTerminal() {
			return ErrImmutable
		}
		return ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

// AppendMetadata merges annotations into a record's metadata. This is the
// only mutation permitted on terminal records; downstream analysis uses it.
func (r *JobRepo) AppendMetadata(ctx context.Context, id string, kv map[string]any) error {
	return r.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.JobRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if rec.Metadata == nil {
			rec.Metadata = model.MetaData{}
		}
		for k, v := range kv {
			rec.Metadata[k] = v
		}
		return tx.Model(&model.JobRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"metadata":    rec.Metadata,
				"update_time": time.Now(),
			}).Error
	})
}
