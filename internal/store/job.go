package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/auditkit/website-audit/internal/store/model"
)

// Job groups the job-related database operations.
type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Update(ctx context.Context, job model.Job) (*model.Job, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if result := s.getDB(ctx).Create(&job); result.Error != nil {
		return nil, errors.Wrap(result.Error, "creating job")
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := model.NewJobFromID(id)
	result := s.getDB(ctx).First(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(result.Error, "querying job")
	}
	return job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobList model.JobList
	tx := s.getDB(ctx).Model(&model.Job{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&jobList); result.Error != nil {
		return nil, errors.Wrap(result.Error, "listing jobs")
	}
	return jobList, nil
}

func (s *JobStore) Update(ctx context.Context, job model.Job) (*model.Job, error) {
	result := s.getDB(ctx).
		Model(&job).
		Clauses(clause.Returning{}).
		Select("status", "progress", "current_step", "error_message", "sections", "failed_sections", "report", "started_at", "completed_at", "status_updated_at").
		Updates(&job)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "updating job")
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return &job, nil
}

// UpdateProgress writes the progress counter and step label only. The
// counter never moves backwards within a run; the guard in the WHERE
// clause keeps late writers from undoing newer progress.
func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, currentStep string) error {
	result := s.getDB(ctx).
		Model(&model.Job{}).
		Where("id = ? AND progress <= ?", id, progress).
		Updates(map[string]any{"progress": progress, "current_step": currentStep})
	if result.Error != nil {
		return errors.Wrap(result.Error, "updating job progress")
	}
	return nil
}

func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	job := model.NewJobFromID(id)
	result := s.getDB(ctx).Unscoped().Delete(job)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return errors.Wrap(result.Error, "deleting job")
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
