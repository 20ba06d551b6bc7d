package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	apiv1 "github.com/auditkit/website-audit/api/v1alpha1"
	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/config"
	"github.com/auditkit/website-audit/internal/events"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/orchestrator"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/service"
	"github.com/auditkit/website-audit/internal/service/mappers"
	"github.com/auditkit/website-audit/internal/store"
)

var _ = Describe("audit job service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	newService := func(agent agents.SectionAgent, mutate func(cfg *config.Config)) *service.AuditJobService {
		cfg := config.NewDefault()
		cfg.Orchestrator.MaxRetries = 1
		cfg.Orchestrator.MaxConcurrency = 2
		if mutate != nil {
			mutate(cfg)
		}

		stream := progress.NewStream()
		producer := events.NewEventProducer(newTestWriter())
		orch := orchestrator.New(s, stream, producer, agent, nil, orchestrator.Config{
			SkipPlanning:     cfg.Orchestrator.SkipPlanning,
			EnableEvaluation: cfg.Orchestrator.EnableEvaluation,
			MaxRetries:       cfg.Orchestrator.MaxRetries,
			MaxConcurrency:   cfg.Orchestrator.MaxConcurrency,
			ActivityLogCap:   cfg.Orchestrator.ActivityLogCap,
		})
		return service.NewAuditJobService(s, stream, producer, orch, cfg)
	}

	createForm := func(sections ...string) mappers.JobCreateForm {
		return mappers.JobCreateFormFromApi(apiv1.CreateJobRequest{
			TargetUrl: "https://example.com",
			Sections:  sections,
		})
	}

	waitForStatus := func(srv *service.AuditJobService, id uuid.UUID, status jobs.Status) {
		Eventually(func() jobs.Status {
			job, err := srv.GetJob(context.TODO(), id)
			if err != nil {
				return ""
			}
			return job.Status
		}, 5*time.Second, 10*time.Millisecond).Should(Equal(status))
	}

	Context("create", func() {
		It("runs a job through to completion", func() {
			srv := newService(newScriptedAgent(), nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo", "performance"))
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(jobs.StatusPending))

			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			final, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(final.Progress).To(Equal(100))
			Expect(final.CompletedAt).NotTo(BeNil())
			Expect(final.Report).NotTo(BeEmpty())

			outcomes, err := final.SectionOutcomes()
			Expect(err).To(BeNil())
			Expect(outcomes).To(HaveLen(2))
			for _, o := range outcomes {
				Expect(o.Success).To(BeTrue())
				Expect(o.Attempts).To(Equal(1))
			}
		})

		It("rejects unknown sections", func() {
			srv := newService(newScriptedAgent(), nil)

			_, err := srv.CreateJob(context.TODO(), createForm("seo", "astrology"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidSections{}))
		})

		It("fails the job when a section keeps failing", func() {
			agent := newScriptedAgent("seo")
			srv := newService(agent, nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo", "performance", "content"))
			Expect(err).To(BeNil())

			waitForStatus(srv, job.ID, jobs.StatusFailed)

			final, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(final.ErrorMessage).NotTo(BeNil())
			Expect(*final.ErrorMessage).To(ContainSubstring("seo"))

			failed, err := final.FailedSectionIDs()
			Expect(err).To(BeNil())
			Expect(failed).To(ConsistOf("seo"))

			// one initial round plus one retry round for the failed section
			Expect(agent.callCount("seo")).To(Equal(2))
			Expect(agent.callCount("performance")).To(Equal(1))
		})
	})

	Context("retry", func() {
		It("re-runs only the failed subset and keeps earlier successes", func() {
			agent := newScriptedAgent("seo")
			srv := newService(agent, nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo", "performance"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusFailed)
			performanceCalls := agent.callCount("performance")

			agent.heal()
			retried, err := srv.RetryJob(context.TODO(), job.ID, "")
			Expect(err).To(BeNil())
			Expect(retried.Status).To(Equal(jobs.StatusPending))
			Expect(retried.ErrorMessage).To(BeNil())

			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			final, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			outcomes, err := final.SectionOutcomes()
			Expect(err).To(BeNil())
			Expect(outcomes).To(HaveLen(2))
			for _, o := range outcomes {
				Expect(o.Success).To(BeTrue())
			}

			// the successful section was not re-executed
			Expect(agent.callCount("performance")).To(Equal(performanceCalls))
		})

		It("rejects retrying a job that did not fail", func() {
			srv := newService(newScriptedAgent(), nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			_, err = srv.RetryJob(context.TODO(), job.ID, "")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotRetryable{}))
		})
	})

	Context("cancel", func() {
		It("cancels a running job at the round boundary", func() {
			agent := newScriptedAgent()
			agent.block = make(chan struct{})
			srv := newService(agent, nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusRunning)

			cancelled, err := srv.CancelJob(context.TODO(), job.ID, "user changed their mind")
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(jobs.StatusCancelled))
			Expect(*cancelled.ErrorMessage).To(ContainSubstring("user changed their mind"))
			Expect(cancelled.CompletedAt).NotTo(BeNil())

			close(agent.block)

			// the released run must not resurrect the job
			Consistently(func() jobs.Status {
				final, _ := srv.GetJob(context.TODO(), job.ID)
				return final.Status
			}, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(jobs.StatusCancelled))
		})

		It("rejects cancelling a finished job", func() {
			srv := newService(newScriptedAgent(), nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			_, err = srv.CancelJob(context.TODO(), job.ID, "")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobAlreadyFinal{}))
		})

		It("rejects cancelling a failed job", func() {
			agent := newScriptedAgent("seo")
			srv := newService(agent, nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusFailed)

			_, err = srv.CancelJob(context.TODO(), job.ID, "")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotCancellable{}))
		})
	})

	Context("planning gate", func() {
		It("parks the job until the user resumes it", func() {
			srv := newService(newScriptedAgent(), func(cfg *config.Config) {
				cfg.Orchestrator.SkipPlanning = false
			})

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusWaitingForUser)

			resumed, err := srv.ResumeJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(resumed.Status).To(Equal(jobs.StatusRunning))

			waitForStatus(srv, job.ID, jobs.StatusCompleted)
		})

		It("rejects resuming a job that is not parked", func() {
			srv := newService(newScriptedAgent(), nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			_, err = srv.ResumeJob(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotResumable{}))
		})
	})

	Context("evaluation", func() {
		It("holds the report in review until approved", func() {
			srv := newService(newScriptedAgent(), func(cfg *config.Config) {
				cfg.Orchestrator.EnableEvaluation = true
			})

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusReview)

			inReview, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(inReview.Report).NotTo(BeEmpty())

			approved, err := srv.ApproveJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(approved.Status).To(Equal(jobs.StatusCompleted))
			Expect(approved.Progress).To(Equal(100))
		})

		It("rejects approving a job that is not in review", func() {
			srv := newService(newScriptedAgent(), nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusCompleted)

			_, err = srv.ApproveJob(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotApprovable{}))
		})
	})

	Context("progress stream", func() {
		It("hands out a snapshot and live events", func() {
			agent := newScriptedAgent()
			agent.block = make(chan struct{})
			srv := newService(agent, nil)

			job, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())
			waitForStatus(srv, job.ID, jobs.StatusRunning)

			snapshot, sub, err := srv.SubscribeProgress(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			defer srv.UnsubscribeProgress(sub)
			Expect(snapshot.Status).To(Equal(jobs.StatusRunning))

			close(agent.block)

			Eventually(sub.Events(), 5*time.Second).Should(Receive(WithTransform(
				func(ev progress.Event) progress.EventKind { return ev.Kind },
				Equal(progress.KindComplete),
			)))
		})

		It("returns not found for an unknown job", func() {
			srv := newService(newScriptedAgent(), nil)

			_, _, err := srv.SubscribeProgress(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotFound{}))
		})
	})

	Context("list", func() {
		It("filters by status", func() {
			failingAgent := newScriptedAgent("seo")
			srv := newService(failingAgent, nil)

			okJob, err := newService(newScriptedAgent(), nil).CreateJob(context.TODO(), createForm("performance"))
			Expect(err).To(BeNil())
			failedJob, err := srv.CreateJob(context.TODO(), createForm("seo"))
			Expect(err).To(BeNil())

			waitForStatus(srv, okJob.ID, jobs.StatusCompleted)
			waitForStatus(srv, failedJob.ID, jobs.StatusFailed)

			failedList, err := srv.ListJobs(context.TODO(), &service.JobFilter{Status: jobs.StatusFailed})
			Expect(err).To(BeNil())
			Expect(failedList).To(HaveLen(1))
			Expect(failedList[0].ID).To(Equal(failedJob.ID))

			all, err := srv.ListJobs(context.TODO(), nil)
			Expect(err).To(BeNil())
			Expect(all).To(HaveLen(2))
		})
	})
})
