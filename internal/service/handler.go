package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditkit/website-audit/internal/config"
	"github.com/auditkit/website-audit/internal/events"
	"github.com/auditkit/website-audit/internal/orchestrator"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store"
)

// AuditJobService owns the job lifecycle: it persists state changes,
// drives the orchestrator in the background and keeps the cancel handle
// of every in-flight run so a cancel request can reach it.
type AuditJobService struct {
	store    store.Store
	stream   *progress.Stream
	producer *events.EventProducer
	orch     *orchestrator.Orchestrator
	cfg      *config.Config
	logger   *zap.SugaredLogger

	lock    sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewAuditJobService(s store.Store, stream *progress.Stream, producer *events.EventProducer, orch *orchestrator.Orchestrator, cfg *config.Config) *AuditJobService {
	return &AuditJobService{
		store:    s,
		stream:   stream,
		producer: producer,
		orch:     orch,
		cfg:      cfg,
		logger:   zap.S().Named("job_service"),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// registerRun creates the run context for a job. The context is
// detached from the request that triggered the run.
func (s *AuditJobService) registerRun(id uuid.UUID) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	s.lock.Lock()
	s.cancels[id] = cancel
	s.lock.Unlock()

	return ctx, func() {
		cancel()
		s.lock.Lock()
		delete(s.cancels, id)
		s.lock.Unlock()
	}
}

// cancelRun fires the cancel handle of an in-flight run, if any. The
// run observes it at the next round boundary.
func (s *AuditJobService) cancelRun(id uuid.UUID) {
	s.lock.Lock()
	cancel, ok := s.cancels[id]
	s.lock.Unlock()

	if ok {
		cancel()
	}
}
