package cronjob

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

// DefaultSchedule runs every 15 minutes. Specs have a leading seconds field.
const DefaultSchedule = "0 */15 * * * *"

// jobTimeout bounds a single reconcile pass.
const jobTimeout = time.Minute

type Reconciler interface {
	Reconcile(ctx context.Context) (domain.ReconcileResult, error)
}

type Scheduler struct {
	spec       string
	reconciler Reconciler
	cron       *cron.Cron
}

func NewScheduler(spec string, reconciler Reconciler) *Scheduler {
	return &Scheduler{spec: spec, reconciler: reconciler}
}

// Start registers the reconcile job and starts the scheduler. An empty spec
// leaves the scheduler disabled.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		log.Println("[info] reconcile scheduler disabled")
		return nil
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.spec, s.RunOnce); err != nil {
		log.Printf("[error] failed to create reconcile job: %v", err)
		return err
	}

	s.cron = c
	c.Start()
	log.Printf("[info] reconcile scheduler started (spec %q)", s.spec)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Println("[info] reconcile scheduler stopped")
}

// RunOnce performs a single reconcile pass.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(logging.WithRequestID(context.Background(), "cron-reconcile"), jobTimeout)
	defer cancel()

	logger := logging.NewLogger(ctx)
	res, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		logger.LogError("reconcile", err)
		return
	}
	logger.LogInfof("reconcile", "action=%s vector_store_id=%s reason=%s at %s",
		res.Action, res.VectorStoreID, res.Reason, time.Now().Format(time.RFC1123))
}
