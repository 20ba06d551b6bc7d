package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/auditkit/website-audit/internal/config"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/internal/store/model"
)

const (
	insertJobStm = "INSERT INTO jobs (id, type, status, progress) VALUES ('%s', '%s', '%s', %d);"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	Context("create", func() {
		It("persists a new pending job", func() {
			job := model.NewJob(jobs.TypeDeepScan, "https://example.com")

			created, err := s.Job().Create(context.TODO(), *job)
			Expect(err).To(BeNil())
			Expect(created.Status).To(Equal(jobs.StatusPending))

			count := int64(0)
			Expect(gormdb.Model(&model.Job{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Context("get", func() {
		It("returns a job by id", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, jobs.TypeDeepScan, jobs.StatusPending, 0))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(id))
			Expect(job.Status).To(Equal(jobs.StatusPending))
		})

		It("returns ErrRecordNotFound for a missing job", func() {
			_, err := s.Job().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("lists all the jobs", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.New(), jobs.TypeDeepScan, jobs.StatusPending, 0))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.New(), jobs.TypeCleanup, jobs.StatusRunning, 40))
			Expect(tx.Error).To(BeNil())

			jobList, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobList).To(HaveLen(2))
		})

		It("filters by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.New(), jobs.TypeDeepScan, jobs.StatusPending, 0))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, uuid.New(), jobs.TypeDeepScan, jobs.StatusRunning, 10))
			Expect(tx.Error).To(BeNil())

			jobList, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByStatus(jobs.StatusRunning), nil)
			Expect(err).To(BeNil())
			Expect(jobList).To(HaveLen(1))
			Expect(jobList[0].Status).To(Equal(jobs.StatusRunning))
		})
	})

	Context("update", func() {
		It("persists status and section outcomes", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, jobs.TypeDeepScan, jobs.StatusPending, 0))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())

			Expect(job.TransitionTo(jobs.StatusRunning)).To(BeNil())
			Expect(job.SetSectionOutcomes([]model.SectionOutcome{
				{SectionID: "technology", Success: true, Attempts: 1},
				{SectionID: "seo", Success: false, Attempts: 3, Error: "agent failed"},
			})).To(BeNil())

			updated, err := s.Job().Update(context.TODO(), *job)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(jobs.StatusRunning))

			failed, err := updated.FailedSectionIDs()
			Expect(err).To(BeNil())
			Expect(failed).To(Equal([]string{"seo"}))
		})
	})

	Context("update progress", func() {
		It("advances progress and step", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, jobs.TypeDeepScan, jobs.StatusRunning, 10))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().UpdateProgress(context.TODO(), id, 40, "auditing sections")).To(BeNil())

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.Progress).To(Equal(40))
			Expect(job.CurrentStep).To(Equal("auditing sections"))
		})

		It("never moves progress backwards", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, jobs.TypeDeepScan, jobs.StatusRunning, 60))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().UpdateProgress(context.TODO(), id, 30, "late writer")).To(BeNil())

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.Progress).To(Equal(60))
		})
	})

	Context("delete", func() {
		It("removes the job", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, jobs.TypeCleanup, jobs.StatusCompleted, 100))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().Delete(context.TODO(), id)).To(BeNil())

			_, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("is a no-op for a missing job", func() {
			Expect(s.Job().Delete(context.TODO(), uuid.New())).To(BeNil())
		})
	})
})
